package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/telemetry"
)

// RenewalStore issues PERIODIC acknowledgement requests.
type RenewalStore interface {
	CreatePeriodicRenewals(ctx context.Context, renewBefore, due time.Time) (int64, error)
}

// PeriodicScheduler asks employees to re-acknowledge approved policy versions
// once their last acknowledgement is older than RenewalDays.
type PeriodicScheduler struct {
	store   RenewalStore
	cfg     config.PeriodicConfig
	dueDays int
	now     func() time.Time
	runner  *runner
}

// NewPeriodicScheduler creates the scheduler. New requests fall due dueDays
// after issue; RenewalDays defaults to 365 and IntervalHours to 24.
func NewPeriodicScheduler(store RenewalStore, cfg config.PeriodicConfig, dueDays int) *PeriodicScheduler {
	if cfg.RenewalDays <= 0 {
		cfg.RenewalDays = 365
	}
	hours := cfg.IntervalHours
	if hours <= 0 {
		hours = 24
	}
	if dueDays <= 0 {
		dueDays = 14
	}
	s := &PeriodicScheduler{store: store, cfg: cfg, dueDays: dueDays, now: time.Now}
	s.runner = newRunner("periodic_scheduler", time.Duration(hours)*time.Hour, func(ctx context.Context) {
		if _, err := s.RunOnce(ctx); err != nil {
			slog.Error("periodic acknowledgement scheduling failed", "error", err)
		}
	})
	return s
}

func (s *PeriodicScheduler) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		slog.Info("periodic scheduler disabled (compliance.periodic.enabled=false)")
		return
	}
	s.runner.start(ctx)
}

func (s *PeriodicScheduler) Stop() {
	s.runner.stop()
}

// RunOnce issues the renewals that are due and returns how many were created.
func (s *PeriodicScheduler) RunOnce(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	n, err := s.store.CreatePeriodicRenewals(ctx, now.AddDate(0, 0, -s.cfg.RenewalDays), compliance.DueDate(now, s.dueDays))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		telemetry.AcknowledgementRequestsCreatedTotal.WithLabelValues(string(models.TriggerPeriodic)).Add(float64(n))
		slog.Info("issued periodic acknowledgement requests", "count", n)
	}
	return n, nil
}
