package services

import (
	"context"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
)

// DashboardService summarises a company's compliance posture.
type DashboardService struct {
	store MetricsStore
	opts  Options
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(store MetricsStore, opts Options) *DashboardService {
	return &DashboardService{store: store, opts: opts}
}

// GetMetrics returns the dashboard counts and the compliance rate.
func (s *DashboardService) GetMetrics(ctx context.Context, companyID int64) (*models.DashboardMetrics, error) {
	now := s.opts.now()
	window := s.opts.RateWindowDays
	if window <= 0 {
		window = 365
	}
	m, err := s.store.GetMetrics(ctx, companyID, now, compliance.MonthStart(now), now.AddDate(0, 0, -window))
	if err != nil {
		return nil, compliance.Store("compute dashboard metrics", err)
	}
	m.ComplianceRate = compliance.ComplianceRate(m.RateCompleted, m.RateOutstanding)
	return m, nil
}
