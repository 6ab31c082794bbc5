// Package tracker implements the HTTP handlers of the policy tracker API.
//
// Every route is mounted under /api behind TenantMiddleware; handlers read the
// resolved company id from the request context and pass it explicitly to the
// services, so no handler can reach another company's records. Errors from the
// services are mapped to HTTP statuses in one place (respondError).
package tracker

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
	"github.com/policytracker/policy-tracker/internal/reports"
	"github.com/policytracker/policy-tracker/internal/services"
	"github.com/policytracker/policy-tracker/internal/storage"
)

// PolicyService is the policy and version lifecycle used by PolicyHandlers.
type PolicyService interface {
	CreatePolicy(ctx context.Context, companyID int64, in services.CreatePolicyInput) (*models.Policy, error)
	UpdatePolicy(ctx context.Context, companyID, policyID int64, in services.UpdatePolicyInput) (*models.Policy, error)
	GetPolicy(ctx context.Context, companyID, policyID int64) (*models.PolicyWithVersions, error)
	ListPolicies(ctx context.Context, companyID int64) ([]models.PolicyWithVersions, error)
	ListVersions(ctx context.Context, companyID, policyID int64) ([]models.PolicyVersion, error)
	CreateVersion(ctx context.Context, companyID, policyID int64, in services.CreateVersionInput) (*models.PolicyVersion, error)
	ApproveVersion(ctx context.Context, companyID, versionID, approvedBy int64) (*models.PolicyVersion, error)
	SubmitVersion(ctx context.Context, companyID, versionID int64) (*models.PolicyVersion, error)
	DeprecateVersion(ctx context.Context, companyID, versionID int64) (*models.PolicyVersion, error)
}

// AssignmentService manages roles, employees and their links.
type AssignmentService interface {
	CreateRole(ctx context.Context, companyID int64, name string, description *string) (*models.Role, error)
	ListRoles(ctx context.Context, companyID int64) ([]models.Role, error)
	ListRoleAssignments(ctx context.Context, companyID, roleID int64) ([]models.RolePolicyAssignmentWithDetails, error)
	AssignPolicyToRole(ctx context.Context, companyID, roleID, versionID int64) (*models.RolePolicyAssignment, bool, error)
	CreateEmployee(ctx context.Context, companyID int64, in services.CreateEmployeeInput) (*models.Employee, error)
	ListEmployees(ctx context.Context, companyID int64) ([]models.EmployeeWithRoles, error)
	GetEmployee(ctx context.Context, companyID, employeeID int64) (*models.EmployeeWithRoles, error)
	SetEmployeeActive(ctx context.Context, companyID, employeeID int64, active bool) (*models.Employee, error)
	AssignRoleToEmployee(ctx context.Context, companyID, employeeID, roleID int64) (*models.EmployeeRole, bool, error)
}

// AcknowledgementService runs the request lifecycle.
type AcknowledgementService interface {
	CreateRequest(ctx context.Context, companyID int64, in services.CreateRequestInput) (*models.AcknowledgementRequest, error)
	CompleteRequest(ctx context.Context, companyID, requestID int64, in services.CompleteRequestInput) (*models.AcknowledgementEvent, error)
	ListRequests(ctx context.Context, companyID int64, in services.ListRequestsInput) ([]models.AcknowledgementRequestWithDetails, error)
	ListEmployeeAcknowledgements(ctx context.Context, companyID, employeeID int64) ([]models.AcknowledgementRequestWithDetails, error)
	ListOverdue(ctx context.Context, companyID int64) ([]models.AcknowledgementRequestWithDetails, error)
	ListEvents(ctx context.Context, companyID, requestID int64) ([]models.AcknowledgementEvent, error)
	Escalate(ctx context.Context, companyID, requestID int64, escalatedTo string) (*models.AlertEscalation, error)
	ListEscalations(ctx context.Context, companyID int64) ([]models.AlertEscalation, error)
	ResolveEscalation(ctx context.Context, companyID, escalationID int64) (*models.AlertEscalation, error)
}

// MetricsService computes the dashboard.
type MetricsService interface {
	GetMetrics(ctx context.Context, companyID int64) (*models.DashboardMetrics, error)
}

// TemplateUpgradeService tracks template upgrades.
type TemplateUpgradeService interface {
	Create(ctx context.Context, companyID int64, policyType, current, available string) (*models.TemplateUpgrade, error)
	List(ctx context.Context, companyID int64) ([]models.TemplateUpgrade, error)
	Complete(ctx context.Context, companyID, id int64) (*models.TemplateUpgrade, error)
}

// API groups every handler set of the service.
type API struct {
	Policies         *PolicyHandlers
	Assignments      *AssignmentHandlers
	Acknowledgements *AcknowledgementHandlers
	Dashboard        *DashboardHandlers
	TemplateUpgrades *TemplateUpgradeHandlers
	Companies        *CompanyHandlers
	AuditLogs        *AuditLogHandlers
	Reports          *ReportHandlers
	APIKeys          *APIKeyHandlers
}

// New builds the repositories, services and handlers on top of db and the
// evidence storage backend.
func New(cfg *config.Config, db *sqlx.DB, store storage.Storage) *API {
	opts := services.OptionsFromConfig(cfg.Compliance)

	policyRepo := repositories.NewPolicyRepository(db)
	roleRepo := repositories.NewRoleRepository(db)
	employeeRepo := repositories.NewEmployeeRepository(db)
	ackRepo := repositories.NewAcknowledgementRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	policySvc := services.NewPolicyService(policyRepo, employeeRepo, opts)
	assignSvc := services.NewAssignmentService(roleRepo, employeeRepo, policyRepo, opts)
	ackSvc := services.NewAcknowledgementService(ackRepo, employeeRepo, policyRepo, opts)

	exporter := reports.NewExporter(auditRepo, ackSvc)
	urlTTL := cfg.Storage.URLTTL
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}

	return &API{
		Policies:         NewPolicyHandlers(policySvc),
		Assignments:      NewAssignmentHandlers(assignSvc),
		Acknowledgements: NewAcknowledgementHandlers(ackSvc),
		Dashboard:        NewDashboardHandlers(services.NewDashboardService(repositories.NewDashboardRepository(db), opts)),
		TemplateUpgrades: NewTemplateUpgradeHandlers(services.NewTemplateUpgradeService(repositories.NewTemplateUpgradeRepository(db), opts)),
		Companies:        NewCompanyHandlers(repositories.NewCompanyRepository(db)),
		AuditLogs:        NewAuditLogHandlers(auditRepo, exporter),
		Reports:          NewReportHandlers(exporter, reports.NewArchiver(exporter, store, urlTTL), store),
		APIKeys:          NewAPIKeyHandlers(&cfg.Auth, repositories.NewAPIKeyRepository(db)),
	}
}

// Register mounts every route on api, which must already carry the tenant
// and audit middleware.
func (a *API) Register(api *gin.RouterGroup) {
	api.GET("/dashboard/metrics", a.Dashboard.GetMetrics)

	api.GET("/companies/:id", a.Companies.GetCompanyHandler())
	api.POST("/companies", a.Companies.CreateCompanyHandler())

	policies := api.Group("/policies")
	{
		policies.GET("", a.Policies.ListPolicies)
		policies.POST("", a.Policies.CreatePolicy)
		policies.GET("/:id", a.Policies.GetPolicy)
		policies.PUT("/:id", a.Policies.UpdatePolicy)
		policies.GET("/:id/versions", a.Policies.ListVersions)
		policies.POST("/:id/versions", a.Policies.CreateVersion)
	}

	versions := api.Group("/versions")
	{
		versions.POST("/:id/approve", a.Policies.ApproveVersion)
		versions.POST("/:id/submit", a.Policies.SubmitVersion)
		versions.POST("/:id/deprecate", a.Policies.DeprecateVersion)
	}

	roles := api.Group("/roles")
	{
		roles.GET("", a.Assignments.ListRoles)
		roles.POST("", a.Assignments.CreateRole)
		roles.GET("/:id/assignments", a.Assignments.ListRoleAssignments)
		roles.POST("/:id/assignments", a.Assignments.AssignPolicy)
	}

	employees := api.Group("/employees")
	{
		employees.GET("", a.Assignments.ListEmployees)
		employees.POST("", a.Assignments.CreateEmployee)
		employees.GET("/:id", a.Assignments.GetEmployee)
		employees.PATCH("/:id", a.Assignments.UpdateEmployee)
		employees.POST("/:id/roles", a.Assignments.AssignRole)
		employees.GET("/:id/acknowledgements", a.Acknowledgements.ListEmployeeAcknowledgements)
	}

	requests := api.Group("/acknowledgement-requests")
	{
		requests.GET("", a.Acknowledgements.ListRequests)
		requests.POST("", a.Acknowledgements.CreateRequest)
		requests.GET("/overdue", a.Acknowledgements.ListOverdue)
		requests.POST("/:id/complete", a.Acknowledgements.CompleteRequest)
		requests.GET("/:id/events", a.Acknowledgements.ListEvents)
	}

	escalations := api.Group("/alert-escalations")
	{
		escalations.GET("", a.Acknowledgements.ListEscalations)
		escalations.POST("", a.Acknowledgements.Escalate)
		escalations.POST("/:id/resolve", a.Acknowledgements.ResolveEscalation)
	}

	upgrades := api.Group("/template-upgrades")
	{
		upgrades.GET("", a.TemplateUpgrades.List)
		upgrades.POST("", a.TemplateUpgrades.Create)
		upgrades.POST("/:id/complete", a.TemplateUpgrades.Complete)
	}

	api.GET("/audit-logs", a.AuditLogs.List)
	api.GET("/audit-logs/export", a.AuditLogs.Export)

	rpt := api.Group("/reports")
	{
		rpt.GET("/workbook", a.Reports.Workbook)
		rpt.GET("/evidence", a.Reports.ListEvidence)
		rpt.POST("/evidence", a.Reports.CreateEvidence)
		rpt.GET("/evidence/download", a.Reports.DownloadEvidence)
	}

	keys := api.Group("/api-keys")
	{
		keys.GET("", a.APIKeys.ListAPIKeysHandler())
		keys.POST("", a.APIKeys.CreateAPIKeyHandler())
		keys.DELETE("/:id", a.APIKeys.DeleteAPIKeyHandler())
	}
}
