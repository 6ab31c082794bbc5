package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/validation"
)

// CreatePolicyInput is the caller-supplied part of a new policy.
type CreatePolicyInput struct {
	Title          string
	Type           string
	Description    *string
	IsTemplate     bool
	TemplateSource *string
}

// UpdatePolicyInput holds the fields to change; nil fields are left alone.
type UpdatePolicyInput struct {
	Title          *string
	Description    *string
	Type           *string
	IsTemplate     *bool
	TemplateSource *string
}

// CreateVersionInput is the caller-supplied part of a new policy version.
type CreateVersionInput struct {
	Version    string
	Content    string
	Status     string
	CreatedBy  int64
	ConfigData json.RawMessage
}

// PolicyService owns policies and the version approval lifecycle. Authors
// and approvers are employees of the same company.
type PolicyService struct {
	store     PolicyStore
	employees EmployeeLookup
	opts      Options
}

// NewPolicyService creates a new policy service
func NewPolicyService(store PolicyStore, employees EmployeeLookup, opts Options) *PolicyService {
	return &PolicyService{store: store, employees: employees, opts: opts}
}

// requireEmployee reports a NotFoundError unless id is an employee of the company.
func (s *PolicyService) requireEmployee(ctx context.Context, companyID, id int64) error {
	e, err := s.employees.GetEmployee(ctx, companyID, id)
	if err != nil {
		return compliance.Store("get employee", err)
	}
	if e == nil {
		return &compliance.NotFoundError{Resource: "employee", ID: id}
	}
	return nil
}

func validateTemplateSource(ve *compliance.ValidationError, src *string) *models.TemplateSource {
	if src == nil || *src == "" {
		return nil
	}
	ts := models.TemplateSource(*src)
	if !ts.Valid() {
		ve.Add("templateSource", "must be SPRINTO or CUSTOM")
		return nil
	}
	return &ts
}

// CreatePolicy creates a policy with no versions.
func (s *PolicyService) CreatePolicy(ctx context.Context, companyID int64, in CreatePolicyInput) (*models.Policy, error) {
	ve := &compliance.ValidationError{}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		ve.Add("title", "is required")
	}
	pt := models.PolicyType(in.Type)
	if in.Type == "" {
		ve.Add("type", "is required")
	} else if !pt.Valid() {
		ve.Add("type", "is not a known policy type")
	}
	ts := validateTemplateSource(ve, in.TemplateSource)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	p := &models.Policy{
		CompanyID:      companyID,
		Title:          title,
		Description:    in.Description,
		Type:           pt,
		IsTemplate:     in.IsTemplate,
		TemplateSource: ts,
	}
	if err := s.store.CreatePolicy(ctx, p); err != nil {
		return nil, compliance.Store("create policy", err)
	}
	return p, nil
}

// UpdatePolicy applies a partial update to a policy of the company.
func (s *PolicyService) UpdatePolicy(ctx context.Context, companyID, policyID int64, in UpdatePolicyInput) (*models.Policy, error) {
	p, err := s.store.GetPolicy(ctx, companyID, policyID)
	if err != nil {
		return nil, compliance.Store("get policy", err)
	}
	if p == nil {
		return nil, &compliance.NotFoundError{Resource: "policy", ID: policyID}
	}

	ve := &compliance.ValidationError{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			ve.Add("title", "must not be empty")
		}
		p.Title = title
	}
	if in.Type != nil {
		pt := models.PolicyType(*in.Type)
		if !pt.Valid() {
			ve.Add("type", "is not a known policy type")
		}
		p.Type = pt
	}
	if in.Description != nil {
		p.Description = in.Description
	}
	if in.IsTemplate != nil {
		p.IsTemplate = *in.IsTemplate
	}
	if in.TemplateSource != nil {
		p.TemplateSource = validateTemplateSource(ve, in.TemplateSource)
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	if err := s.store.UpdatePolicy(ctx, p); err != nil {
		return nil, compliance.Store("update policy", err)
	}
	return p, nil
}

// GetPolicy returns a policy with all its versions and the latest one.
func (s *PolicyService) GetPolicy(ctx context.Context, companyID, policyID int64) (*models.PolicyWithVersions, error) {
	p, err := s.store.GetPolicy(ctx, companyID, policyID)
	if err != nil {
		return nil, compliance.Store("get policy", err)
	}
	if p == nil {
		return nil, &compliance.NotFoundError{Resource: "policy", ID: policyID}
	}
	versions, err := s.store.ListVersions(ctx, policyID)
	if err != nil {
		return nil, compliance.Store("list policy versions", err)
	}
	return withVersions(*p, versions), nil
}

// ListPolicies returns the company's policies, newest first, each with its
// versions attached. Versions are loaded in one query for all policies.
func (s *PolicyService) ListPolicies(ctx context.Context, companyID int64) ([]models.PolicyWithVersions, error) {
	policies, err := s.store.ListPolicies(ctx, companyID)
	if err != nil {
		return nil, compliance.Store("list policies", err)
	}
	out := make([]models.PolicyWithVersions, 0, len(policies))
	if len(policies) == 0 {
		return out, nil
	}

	ids := make([]int64, len(policies))
	for i, p := range policies {
		ids[i] = p.ID
	}
	versions, err := s.store.ListVersionsForPolicies(ctx, ids)
	if err != nil {
		return nil, compliance.Store("list policy versions", err)
	}
	byPolicy := make(map[int64][]models.PolicyVersion, len(policies))
	for _, v := range versions {
		byPolicy[v.PolicyID] = append(byPolicy[v.PolicyID], v)
	}
	for _, p := range policies {
		out = append(out, *withVersions(p, byPolicy[p.ID]))
	}
	return out, nil
}

func withVersions(p models.Policy, versions []models.PolicyVersion) *models.PolicyWithVersions {
	if versions == nil {
		versions = []models.PolicyVersion{}
	}
	return &models.PolicyWithVersions{
		Policy:        p,
		Versions:      versions,
		LatestVersion: compliance.LatestVersion(versions),
	}
}

// ListVersions returns every version of a policy of the company.
func (s *PolicyService) ListVersions(ctx context.Context, companyID, policyID int64) ([]models.PolicyVersion, error) {
	p, err := s.store.GetPolicy(ctx, companyID, policyID)
	if err != nil {
		return nil, compliance.Store("get policy", err)
	}
	if p == nil {
		return nil, &compliance.NotFoundError{Resource: "policy", ID: policyID}
	}
	versions, err := s.store.ListVersions(ctx, policyID)
	if err != nil {
		return nil, compliance.Store("list policy versions", err)
	}
	return versions, nil
}

// CreateVersion adds a DRAFT or PENDING version to a policy.
func (s *PolicyService) CreateVersion(ctx context.Context, companyID, policyID int64, in CreateVersionInput) (*models.PolicyVersion, error) {
	ve := &compliance.ValidationError{}
	if err := validation.ValidateVersionLabel(in.Version); err != nil {
		ve.Add("version", err.Error())
	}
	if strings.TrimSpace(in.Content) == "" {
		ve.Add("content", "is required")
	}
	status := models.VersionStatus(in.Status)
	if in.Status == "" {
		status = models.VersionStatusDraft
	} else if status != models.VersionStatusDraft && status != models.VersionStatusPending {
		ve.Add("status", "must be DRAFT or PENDING")
	}
	if in.CreatedBy <= 0 {
		ve.Add("createdBy", "is required")
	}
	var configData models.JSONB
	if len(in.ConfigData) > 0 && string(in.ConfigData) != "null" {
		if !json.Valid(in.ConfigData) {
			ve.Add("configData", "must be valid JSON")
		}
		configData = models.JSONB(in.ConfigData)
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	p, err := s.store.GetPolicy(ctx, companyID, policyID)
	if err != nil {
		return nil, compliance.Store("get policy", err)
	}
	if p == nil {
		return nil, &compliance.NotFoundError{Resource: "policy", ID: policyID}
	}
	if err := s.requireEmployee(ctx, companyID, in.CreatedBy); err != nil {
		return nil, err
	}

	v := &models.PolicyVersion{
		PolicyID:   policyID,
		Version:    strings.TrimSpace(in.Version),
		Content:    in.Content,
		Status:     status,
		ConfigData: configData,
		CreatedBy:  in.CreatedBy,
	}
	if err := s.store.CreateVersion(ctx, v); err != nil {
		return nil, compliance.Store("create policy version", err)
	}
	return v, nil
}

func (s *PolicyService) loadVersion(ctx context.Context, companyID, versionID int64) (*models.PolicyVersion, error) {
	v, err := s.store.GetVersion(ctx, companyID, versionID)
	if err != nil {
		return nil, compliance.Store("get policy version", err)
	}
	if v == nil {
		return nil, &compliance.NotFoundError{Resource: "policy version", ID: versionID}
	}
	return v, nil
}

// ApproveVersion marks a version APPROVED by approvedBy. Any non-deprecated
// status may be approved, including an already approved one.
func (s *PolicyService) ApproveVersion(ctx context.Context, companyID, versionID, approvedBy int64) (*models.PolicyVersion, error) {
	if approvedBy <= 0 {
		return nil, compliance.NewValidationError("approvedBy", "is required")
	}
	v, err := s.loadVersion(ctx, companyID, versionID)
	if err != nil {
		return nil, err
	}
	if !compliance.CanTransition(v.Status, models.VersionStatusApproved) {
		return nil, &compliance.InvalidTransitionError{VersionID: versionID, From: v.Status, To: models.VersionStatusApproved}
	}
	if err := s.requireEmployee(ctx, companyID, approvedBy); err != nil {
		return nil, err
	}

	approved, err := s.store.ApproveVersion(ctx, companyID, versionID, approvedBy, s.opts.now())
	if err != nil {
		return nil, compliance.Store("approve policy version", err)
	}
	if approved == nil {
		// Deprecated between the read and the update.
		return nil, &compliance.InvalidTransitionError{VersionID: versionID, From: models.VersionStatusDeprecated, To: models.VersionStatusApproved}
	}
	return approved, nil
}

// SubmitVersion moves a DRAFT version to PENDING.
func (s *PolicyService) SubmitVersion(ctx context.Context, companyID, versionID int64) (*models.PolicyVersion, error) {
	return s.transition(ctx, companyID, versionID, models.VersionStatusPending, models.VersionStatusDraft)
}

// DeprecateVersion retires a version that is not already deprecated.
func (s *PolicyService) DeprecateVersion(ctx context.Context, companyID, versionID int64) (*models.PolicyVersion, error) {
	return s.transition(ctx, companyID, versionID, models.VersionStatusDeprecated,
		models.VersionStatusDraft, models.VersionStatusPending, models.VersionStatusApproved)
}

func (s *PolicyService) transition(ctx context.Context, companyID, versionID int64, to models.VersionStatus, from ...models.VersionStatus) (*models.PolicyVersion, error) {
	v, err := s.loadVersion(ctx, companyID, versionID)
	if err != nil {
		return nil, err
	}
	if !compliance.CanTransition(v.Status, to) || !statusIn(v.Status, from) {
		return nil, &compliance.InvalidTransitionError{VersionID: versionID, From: v.Status, To: to}
	}

	updated, err := s.store.SetVersionStatus(ctx, companyID, versionID, to, from, s.opts.now())
	if err != nil {
		return nil, compliance.Store("update policy version", err)
	}
	if updated == nil {
		return nil, &compliance.InvalidTransitionError{VersionID: versionID, From: v.Status, To: to}
	}
	return updated, nil
}

func statusIn(s models.VersionStatus, set []models.VersionStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
