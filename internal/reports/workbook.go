package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/services"
	"github.com/policytracker/policy-tracker/internal/telemetry"
)

// Sheet names of the compliance workbook.
const (
	SheetAudit            = "Audit Log"
	SheetAcknowledgements = "Acknowledgements"
	SheetEscalations      = "Escalations"
)

// XLSXContentType is the media type of the workbook.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	ackHeader = []interface{}{
		"Request ID", "Employee", "Email", "Policy", "Version", "Trigger",
		"Due Date", "Completed At", "Status", "Severity", "Days Overdue", "Escalated",
	}
	escalationHeader = []interface{}{"Escalation ID", "Request ID", "Escalated To", "Escalated At", "Resolved At"}
)

// workbookData is everything one workbook needs, fetched up front.
type workbookData struct {
	events      []AuditEvent
	requests    []models.AcknowledgementRequestWithDetails
	escalations []models.AlertEscalation
}

func (e *Exporter) fetch(ctx context.Context, companyID int64, r Range) (*workbookData, error) {
	var d workbookData
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		d.events, err = e.AuditEvents(gctx, companyID, r)
		return err
	})
	g.Go(func() error {
		rows, err := e.acks.ListRequests(gctx, companyID, services.ListRequestsInput{})
		if err != nil {
			return fmt.Errorf("list acknowledgement requests: %w", err)
		}
		for _, row := range rows {
			if r.Contains(row.CreatedAt) {
				d.requests = append(d.requests, row)
			}
		}
		return nil
	})
	g.Go(func() error {
		rows, err := e.acks.ListEscalations(gctx, companyID)
		if err != nil {
			return fmt.Errorf("list escalations: %w", err)
		}
		for _, row := range rows {
			if r.Contains(row.EscalatedAt) {
				d.escalations = append(d.escalations, row)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Workbook builds the compliance workbook for r. The caller closes it.
func (e *Exporter) Workbook(ctx context.Context, companyID int64, r Range) (*excelize.File, error) {
	d, err := e.fetch(ctx, companyID, r)
	if err != nil {
		return nil, err
	}
	return buildWorkbook(d)
}

// WriteWorkbook streams the compliance workbook for r to w.
func (e *Exporter) WriteWorkbook(ctx context.Context, companyID int64, r Range, w io.Writer) error {
	f, err := e.Workbook(ctx, companyID, r)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	telemetry.ReportExportsTotal.WithLabelValues(FormatXLSX).Inc()
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildWorkbook(d *workbookData) (*excelize.File, error) {
	f := excelize.NewFile()
	fail := func(err error) (*excelize.File, error) {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fail(err)
	}

	// The default sheet becomes the audit log so no empty sheet is left over.
	if err := f.SetSheetName("Sheet1", SheetAudit); err != nil {
		return fail(err)
	}
	for _, name := range []string{SheetAcknowledgements, SheetEscalations} {
		if _, err := f.NewSheet(name); err != nil {
			return fail(err)
		}
	}

	auditRows := make([][]interface{}, 0, len(d.events))
	for _, ev := range d.events {
		auditRows = append(auditRows, []interface{}{
			ev.Timestamp.Format(time.RFC3339), ev.Action, ev.EntityType, ev.EntityName, ev.User, ev.IPAddress, ev.Details,
		})
	}
	header := make([]interface{}, len(AuditCSVHeader))
	for i, h := range AuditCSVHeader {
		header[i] = h
	}
	if err := writeSheet(f, SheetAudit, bold, header, auditRows); err != nil {
		return fail(err)
	}

	ackRows := make([][]interface{}, 0, len(d.requests))
	for _, req := range d.requests {
		due := req.DueDate
		ackRows = append(ackRows, []interface{}{
			req.ID,
			req.Employee.FullName(),
			req.Employee.Email,
			req.PolicyVersion.Policy.Title,
			req.PolicyVersion.Version,
			string(req.TriggerType),
			formatTime(&due),
			formatTime(req.CompletedAt),
			req.Status,
			req.Severity,
			req.DaysOverdue,
			strconv.FormatBool(req.Escalated),
		})
	}
	if err := writeSheet(f, SheetAcknowledgements, bold, ackHeader, ackRows); err != nil {
		return fail(err)
	}

	escRows := make([][]interface{}, 0, len(d.escalations))
	for _, esc := range d.escalations {
		at := esc.EscalatedAt
		escRows = append(escRows, []interface{}{
			esc.ID, esc.RequestID, esc.EscalatedTo, formatTime(&at), formatTime(esc.ResolvedAt),
		})
	}
	if err := writeSheet(f, SheetEscalations, bold, escalationHeader, escRows); err != nil {
		return fail(err)
	}

	f.SetActiveSheet(0)
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
