package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/policytracker/policy-tracker/internal/telemetry"
)

// Export formats recorded in report_exports_total.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// AuditCSVHeader is the header row of the audit export.
var AuditCSVHeader = []string{"Timestamp", "Action", "Entity Type", "Entity Name", "User", "IP Address", "Details"}

// AuditCSVFilename names an audit export taken at t.
func AuditCSVFilename(t time.Time) string {
	return fmt.Sprintf("audit-log-%s.csv", t.UTC().Format(time.DateOnly))
}

// WriteAuditCSV writes events as RFC 4180 CSV with a header row.
func WriteAuditCSV(w io.Writer, events []AuditEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AuditCSVHeader); err != nil {
		return err
	}
	for _, ev := range events {
		if err := cw.Write([]string{
			ev.Timestamp.Format(time.RFC3339),
			ev.Action,
			ev.EntityType,
			ev.EntityName,
			ev.User,
			ev.IPAddress,
			ev.Details,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportAuditCSV writes the company's audit trail in r to w.
func (e *Exporter) ExportAuditCSV(ctx context.Context, companyID int64, r Range, w io.Writer) error {
	events, err := e.AuditEvents(ctx, companyID, r)
	if err != nil {
		return err
	}
	if err := WriteAuditCSV(w, events); err != nil {
		return fmt.Errorf("write audit csv: %w", err)
	}
	telemetry.ReportExportsTotal.WithLabelValues(FormatCSV).Inc()
	return nil
}
