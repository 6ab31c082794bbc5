package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/db/models"
)

func newPolicyService() (*PolicyService, *memStore) {
	store := newMemStore()
	return NewPolicyService(store, store, testOptions()), store
}

func strp(s string) *string { return &s }

func TestCreatePolicy(t *testing.T) {
	svc, _ := newPolicyService()
	ctx := context.Background()

	p, err := svc.CreatePolicy(ctx, 1, CreatePolicyInput{
		Title:          "  Information Security Policy ",
		Type:           "INFORMATION_SECURITY",
		IsTemplate:     true,
		TemplateSource: strp("SPRINTO"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Information Security Policy", p.Title)
	assert.Equal(t, int64(1), p.CompanyID)
	require.NotNil(t, p.TemplateSource)
	assert.Equal(t, models.TemplateSourceSprinto, *p.TemplateSource)

	got, err := svc.GetPolicy(ctx, 1, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Versions)
	assert.Nil(t, got.LatestVersion)
}

func TestCreatePolicy_Validation(t *testing.T) {
	svc, _ := newPolicyService()

	_, err := svc.CreatePolicy(context.Background(), 1, CreatePolicyInput{Type: "NOT_A_TYPE", TemplateSource: strp("GITHUB")})
	var ve *compliance.ValidationError
	require.True(t, errors.As(err, &ve))
	fields := map[string]bool{}
	for _, f := range ve.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["title"])
	assert.True(t, fields["type"])
	assert.True(t, fields["templateSource"])
}

func TestUpdatePolicy(t *testing.T) {
	svc, store := newPolicyService()
	p := store.seedPolicy(1, "Old")

	updated, err := svc.UpdatePolicy(context.Background(), 1, p.ID, UpdatePolicyInput{Title: strp("New"), Type: strp("CRYPTO")})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, models.PolicyTypeCrypto, updated.Type)

	_, err = svc.UpdatePolicy(context.Background(), 1, p.ID, UpdatePolicyInput{Title: strp("  ")})
	var ve *compliance.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestUpdatePolicy_OtherCompanyIsNotFound(t *testing.T) {
	svc, store := newPolicyService()
	p := store.seedPolicy(2, "Theirs")

	_, err := svc.UpdatePolicy(context.Background(), 1, p.ID, UpdatePolicyInput{Title: strp("Mine")})
	var nf *compliance.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestCreateVersion(t *testing.T) {
	svc, store := newPolicyService()
	p := store.seedPolicy(1, "Security")
	author := store.seedEmployee(1, "author@example.com", true)

	v, err := svc.CreateVersion(context.Background(), 1, p.ID, CreateVersionInput{
		Version:    "v1.0",
		Content:    "All laptops are encrypted.",
		CreatedBy:  author.ID,
		ConfigData: json.RawMessage(`{"reviewCycle":"annual"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusDraft, v.Status, "status defaults to DRAFT")
	assert.JSONEq(t, `{"reviewCycle":"annual"}`, string(v.ConfigData))
	assert.Equal(t, author.ID, v.CreatedBy)
}

func TestCreateVersion_AuthorMustBeCompanyEmployee(t *testing.T) {
	svc, store := newPolicyService()
	p := store.seedPolicy(1, "Security")
	outsider := store.seedEmployee(2, "outsider@example.com", true)

	for name, author := range map[string]int64{"unknown": 999, "other company": outsider.ID} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateVersion(context.Background(), 1, p.ID, CreateVersionInput{Version: "v1", Content: "c", CreatedBy: author})
			var nf *compliance.NotFoundError
			require.True(t, errors.As(err, &nf), "err = %v", err)
			assert.Equal(t, "employee", nf.Resource)
			assert.Equal(t, author, nf.ID)
		})
	}
	versions, err := svc.ListVersions(context.Background(), 1, p.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestCreateVersion_Rejects(t *testing.T) {
	svc, store := newPolicyService()
	p := store.seedPolicy(1, "Security")

	tests := []struct {
		name  string
		in    CreateVersionInput
		field string
	}{
		{"approved status", CreateVersionInput{Version: "v1", Content: "c", Status: "APPROVED", CreatedBy: 1}, "status"},
		{"bad label", CreateVersionInput{Version: "first", Content: "c", CreatedBy: 1}, "version"},
		{"empty content", CreateVersionInput{Version: "v1", Content: " ", CreatedBy: 1}, "content"},
		{"no author", CreateVersionInput{Version: "v1", Content: "c"}, "createdBy"},
		{"bad json", CreateVersionInput{Version: "v1", Content: "c", CreatedBy: 1, ConfigData: json.RawMessage(`{`)}, "configData"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateVersion(context.Background(), 1, p.ID, tt.in)
			var ve *compliance.ValidationError
			require.True(t, errors.As(err, &ve), "err = %v", err)
			assert.Equal(t, tt.field, ve.Fields[0].Field)
		})
	}

	_, err := svc.CreateVersion(context.Background(), 1, 999, CreateVersionInput{Version: "v1", Content: "c", CreatedBy: 1})
	var nf *compliance.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestApproveVersion(t *testing.T) {
	svc, store := newPolicyService()
	p := store.seedPolicy(1, "Security")
	v := store.seedVersion(p.ID, "v1", models.VersionStatusDraft)
	first := store.seedEmployee(1, "first@example.com", true)
	second := store.seedEmployee(1, "second@example.com", true)

	approved, err := svc.ApproveVersion(context.Background(), 1, v.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, first.ID, *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	assert.True(t, approved.ApprovedAt.Equal(testNow))

	again, err := svc.ApproveVersion(context.Background(), 1, v.ID, second.ID)
	require.NoError(t, err, "re-approving records the new approver")
	assert.Equal(t, second.ID, *again.ApprovedBy)
}

func TestApproveVersion_ApproverMustBeCompanyEmployee(t *testing.T) {
	svc, store := newPolicyService()
	p := store.seedPolicy(1, "Security")
	v := store.seedVersion(p.ID, "v1", models.VersionStatusPending)
	outsider := store.seedEmployee(2, "outsider@example.com", true)

	for name, approver := range map[string]int64{"unknown": 999, "other company": outsider.ID} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ApproveVersion(context.Background(), 1, v.ID, approver)
			var nf *compliance.NotFoundError
			require.True(t, errors.As(err, &nf), "err = %v", err)
			assert.Equal(t, "employee", nf.Resource)
		})
	}
	stored, _ := store.GetVersion(context.Background(), 1, v.ID)
	assert.Equal(t, models.VersionStatusPending, stored.Status, "rejected approval leaves the version alone")
	assert.Nil(t, stored.ApprovedBy)
}

func TestApproveVersion_NeverRevertsDeprecated(t *testing.T) {
	svc, store := newPolicyService()
	p := store.seedPolicy(1, "Security")
	v := store.seedVersion(p.ID, "v1", models.VersionStatusDeprecated)

	_, err := svc.ApproveVersion(context.Background(), 1, v.ID, 42)
	var it *compliance.InvalidTransitionError
	require.True(t, errors.As(err, &it))
	assert.Equal(t, models.VersionStatusDeprecated, it.From)

	stored, _ := store.GetVersion(context.Background(), 1, v.ID)
	assert.Equal(t, models.VersionStatusDeprecated, stored.Status)
}

func TestApproveVersion_NotFound(t *testing.T) {
	svc, _ := newPolicyService()
	_, err := svc.ApproveVersion(context.Background(), 1, 77, 42)
	var nf *compliance.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestSubmitAndDeprecateVersion(t *testing.T) {
	svc, store := newPolicyService()
	p := store.seedPolicy(1, "Security")
	v := store.seedVersion(p.ID, "v1", models.VersionStatusDraft)
	ctx := context.Background()

	submitted, err := svc.SubmitVersion(ctx, 1, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusPending, submitted.Status)

	_, err = svc.SubmitVersion(ctx, 1, v.ID)
	var it *compliance.InvalidTransitionError
	assert.True(t, errors.As(err, &it), "PENDING cannot be submitted again")

	deprecated, err := svc.DeprecateVersion(ctx, 1, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusDeprecated, deprecated.Status)

	_, err = svc.DeprecateVersion(ctx, 1, v.ID)
	assert.True(t, errors.As(err, &it))
}

func TestGetPolicy_LatestVersion(t *testing.T) {
	svc, store := newPolicyService()
	p := store.seedPolicy(1, "Security")
	ctx := context.Background()

	older := &models.PolicyVersion{PolicyID: p.ID, Version: "v1", Content: "a", Status: models.VersionStatusApproved, CreatedAt: testNow.Add(-time.Hour)}
	require.NoError(t, store.CreateVersion(ctx, older))
	tieLow := &models.PolicyVersion{PolicyID: p.ID, Version: "v2", Content: "b", Status: models.VersionStatusDraft, CreatedAt: testNow}
	require.NoError(t, store.CreateVersion(ctx, tieLow))
	tieHigh := &models.PolicyVersion{PolicyID: p.ID, Version: "v3", Content: "c", Status: models.VersionStatusDraft, CreatedAt: testNow}
	require.NoError(t, store.CreateVersion(ctx, tieHigh))

	got, err := svc.GetPolicy(ctx, 1, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Versions, 3)
	require.NotNil(t, got.LatestVersion)
	assert.Equal(t, tieHigh.ID, got.LatestVersion.ID)
}

func TestListPolicies_AttachesVersions(t *testing.T) {
	svc, store := newPolicyService()
	a := store.seedPolicy(1, "A")
	b := store.seedPolicy(1, "B")
	store.seedPolicy(2, "Other company")
	store.seedVersion(a.ID, "v1", models.VersionStatusApproved)

	got, err := svc.ListPolicies(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	byID := map[int64]models.PolicyWithVersions{}
	for _, p := range got {
		byID[p.ID] = p
	}
	assert.Len(t, byID[a.ID].Versions, 1)
	assert.NotNil(t, byID[a.ID].LatestVersion)
	assert.Empty(t, byID[b.ID].Versions)
}

func TestPolicyService_StoreErrorIsWrapped(t *testing.T) {
	svc, store := newPolicyService()
	store.failWith = errors.New("connection reset")

	_, err := svc.CreatePolicy(context.Background(), 1, CreatePolicyInput{Title: "T", Type: "CUSTOM"})
	var se *compliance.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "create policy", se.Op)
}
