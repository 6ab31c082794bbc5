package services

import (
	"context"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/validation"
)

// TemplateUpgradeService records that a newer template is available for a
// policy type and tracks when the company adopted it.
type TemplateUpgradeService struct {
	store TemplateUpgradeStore
	opts  Options
}

// NewTemplateUpgradeService creates a new template upgrade service
func NewTemplateUpgradeService(store TemplateUpgradeStore, opts Options) *TemplateUpgradeService {
	return &TemplateUpgradeService{store: store, opts: opts}
}

// Create records an available upgrade. The available version must be newer.
func (s *TemplateUpgradeService) Create(ctx context.Context, companyID int64, policyType, current, available string) (*models.TemplateUpgrade, error) {
	ve := &compliance.ValidationError{}
	pt := models.PolicyType(policyType)
	if !pt.Valid() {
		ve.Add("policyType", "is not a known policy type")
	}
	if err := validation.ValidateVersionLabel(current); err != nil {
		ve.Add("currentVersion", err.Error())
	}
	if err := validation.ValidateVersionLabel(available); err != nil {
		ve.Add("availableVersion", err.Error())
	}
	if len(ve.Fields) == 0 {
		if err := validation.ValidateUpgrade(current, available); err != nil {
			ve.Add("availableVersion", err.Error())
		}
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	u := &models.TemplateUpgrade{CompanyID: companyID, PolicyType: pt, CurrentVersion: current, AvailableVersion: available}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, compliance.Store("create template upgrade", err)
	}
	return u, nil
}

// List returns the company's template upgrades.
func (s *TemplateUpgradeService) List(ctx context.Context, companyID int64) ([]models.TemplateUpgrade, error) {
	out, err := s.store.List(ctx, companyID)
	if err != nil {
		return nil, compliance.Store("list template upgrades", err)
	}
	return out, nil
}

// Complete marks an upgrade as adopted. Completing twice is a conflict.
func (s *TemplateUpgradeService) Complete(ctx context.Context, companyID, id int64) (*models.TemplateUpgrade, error) {
	u, err := s.store.Get(ctx, companyID, id)
	if err != nil {
		return nil, compliance.Store("get template upgrade", err)
	}
	if u == nil {
		return nil, &compliance.NotFoundError{Resource: "template upgrade", ID: id}
	}
	done, err := s.store.Complete(ctx, companyID, id, s.opts.now())
	if err != nil {
		return nil, compliance.Store("complete template upgrade", err)
	}
	if done == nil {
		return nil, &compliance.ConflictError{Message: "template upgrade is already completed"}
	}
	return done, nil
}
