package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/services"
	"github.com/policytracker/policy-tracker/internal/telemetry"
)

const escalationBatchSize = 500

// EscalationStore is the slice of the acknowledgement repository the sweep uses.
type EscalationStore interface {
	CountOverdue(ctx context.Context, now time.Time) (int, error)
	ListUnescalatedOverdue(ctx context.Context, cutoff time.Time, limit int) ([]models.AcknowledgementRequest, error)
	Escalate(ctx context.Context, requestID int64, escalatedTo string, at time.Time) (*models.AlertEscalation, error)
}

// OverdueEscalator refreshes the overdue gauge and escalates requests that
// have been overdue for AfterDays without ever being escalated.
type OverdueEscalator struct {
	store  EscalationStore
	cfg    config.EscalationConfig
	now    func() time.Time
	runner *runner
}

// NewOverdueEscalator creates the sweep; IntervalMinutes defaults to 60.
func NewOverdueEscalator(store EscalationStore, cfg config.EscalationConfig) *OverdueEscalator {
	minutes := cfg.IntervalMinutes
	if minutes <= 0 {
		minutes = 60
	}
	if cfg.EscalateTo == "" {
		cfg.EscalateTo = "CTO"
	}
	e := &OverdueEscalator{store: store, cfg: cfg, now: time.Now}
	e.runner = newRunner("overdue_escalator", time.Duration(minutes)*time.Minute, func(ctx context.Context) {
		if _, err := e.RunOnce(ctx); err != nil {
			slog.Error("overdue escalation sweep failed", "error", err)
		}
	})
	return e
}

// Start launches the sweep loop. It is a no-op when escalation is disabled.
func (e *OverdueEscalator) Start(ctx context.Context) {
	if !e.cfg.Enabled {
		slog.Info("overdue escalator disabled (compliance.escalation.enabled=false)")
		return
	}
	e.runner.start(ctx)
}

// Stop waits for the loop to exit.
func (e *OverdueEscalator) Stop() {
	e.runner.stop()
}

// RunOnce performs one sweep and returns the number of escalations created.
// A failure on one request is logged and the sweep moves on.
func (e *OverdueEscalator) RunOnce(ctx context.Context) (int, error) {
	now := e.now().UTC()

	overdue, err := e.store.CountOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	telemetry.OverdueAcknowledgements.Set(float64(overdue))

	cutoff := now.AddDate(0, 0, -e.cfg.AfterDays)
	pending, err := e.store.ListUnescalatedOverdue(ctx, cutoff, escalationBatchSize)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, req := range pending {
		if _, err := e.store.Escalate(ctx, req.ID, e.cfg.EscalateTo, now); err != nil {
			slog.Error("failed to escalate overdue request", "request_id", req.ID, "error", err)
			continue
		}
		telemetry.AlertEscalationsTotal.WithLabelValues(services.EscalationSourceSweep).Inc()
		escalated++
	}
	if escalated > 0 {
		slog.Info("escalated overdue acknowledgement requests",
			"count", escalated, "escalated_to", e.cfg.EscalateTo, "overdue", overdue)
	}
	return escalated, nil
}
