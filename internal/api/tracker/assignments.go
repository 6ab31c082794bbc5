package tracker

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/middleware"
	"github.com/policytracker/policy-tracker/internal/services"
)

// AssignmentHandlers serves roles, employees and the links between them.
type AssignmentHandlers struct {
	svc AssignmentService
}

// NewAssignmentHandlers creates a new AssignmentHandlers instance
func NewAssignmentHandlers(svc AssignmentService) *AssignmentHandlers {
	return &AssignmentHandlers{svc: svc}
}

// CreateRoleRequest is the body of POST /api/roles.
type CreateRoleRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// AssignPolicyRequest is the body of POST /api/roles/:id/assignments.
type AssignPolicyRequest struct {
	PolicyVersionID int64 `json:"policyVersionId"`
}

// CreateEmployeeRequest is the body of POST /api/employees.
type CreateEmployeeRequest struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	StartDate *string `json:"startDate"`
	IsActive  *bool   `json:"isActive"`
}

// UpdateEmployeeRequest is the body of PATCH /api/employees/:id.
type UpdateEmployeeRequest struct {
	IsActive *bool `json:"isActive"`
}

// AssignRoleRequest is the body of POST /api/employees/:id/roles.
type AssignRoleRequest struct {
	RoleID int64 `json:"roleId"`
}

// @Summary      List roles
// @Tags         Roles
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.Role
// @Router       /api/roles [get]
func (h *AssignmentHandlers) ListRoles(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	roles, err := h.svc.ListRoles(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, roles)
}

// @Summary      Create role
// @Tags         Roles
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRoleRequest  true  "Role"
// @Success      201  {object}  models.Role
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/roles [post]
func (h *AssignmentHandlers) CreateRole(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	var req CreateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.svc.CreateRole(c.Request.Context(), companyID, req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, role.ID, role)
}

// @Summary      List role assignments
// @Description  Lists the policy versions assigned to a role.
// @Tags         Roles
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Role ID"
// @Success      200  {array}   models.RolePolicyAssignmentWithDetails
// @Failure      404  {object}  map[string]interface{}  "Role not found"
// @Router       /api/roles/{id}/assignments [get]
func (h *AssignmentHandlers) ListRoleAssignments(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.svc.ListRoleAssignments(c.Request.Context(), companyID, roleID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Assign policy version to role
// @Description  Idempotent: an existing assignment is returned with 200 instead of 201.
// @Tags         Roles
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                  true  "Role ID"
// @Param        body  body  AssignPolicyRequest  true  "Version"
// @Success      200  {object}  models.RolePolicyAssignment  "Already assigned"
// @Success      201  {object}  models.RolePolicyAssignment
// @Failure      404  {object}  map[string]interface{}  "Role or version not found"
// @Router       /api/roles/{id}/assignments [post]
// AssignPolicy links a policy version to a role
func (h *AssignmentHandlers) AssignPolicy(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AssignPolicyRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.PolicyVersionID <= 0 {
		respondError(c, compliance.NewValidationError("policyVersionId", "is required"))
		return
	}
	a, isNew, err := h.svc.AssignPolicyToRole(c.Request.Context(), companyID, roleID, req.PolicyVersionID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !isNew {
		c.JSON(http.StatusOK, a)
		return
	}
	created(c, a.ID, a)
}

// @Summary      List employees
// @Tags         Employees
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.EmployeeWithRoles
// @Router       /api/employees [get]
func (h *AssignmentHandlers) ListEmployees(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	out, err := h.svc.ListEmployees(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Get employee
// @Tags         Employees
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Employee ID"
// @Success      200  {object}  models.EmployeeWithRoles
// @Failure      404  {object}  map[string]interface{}  "Employee not found"
// @Router       /api/employees/{id} [get]
func (h *AssignmentHandlers) GetEmployee(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	e, err := h.svc.GetEmployee(c.Request.Context(), companyID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// @Summary      Create employee
// @Description  Email is stored lowercased and must be unique; startDate defaults to now and isActive to true.
// @Tags         Employees
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateEmployeeRequest  true  "Employee"
// @Success      201  {object}  models.Employee
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      409  {object}  map[string]interface{}  "Email already in use"
// @Router       /api/employees [post]
func (h *AssignmentHandlers) CreateEmployee(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	var req CreateEmployeeRequest
	if !bindJSON(c, &req) {
		return
	}
	in := services.CreateEmployeeInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsActive:  req.IsActive,
	}
	if req.StartDate != nil && *req.StartDate != "" {
		t, err := parseTime(*req.StartDate)
		if err != nil {
			respondError(c, compliance.NewValidationError("startDate", "must be RFC3339 or YYYY-MM-DD"))
			return
		}
		in.StartDate = &t
	}
	e, err := h.svc.CreateEmployee(c.Request.Context(), companyID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, e.ID, e)
}

// @Summary      Update employee
// @Description  Activates or deactivates an employee.
// @Tags         Employees
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                    true  "Employee ID"
// @Param        body  body  UpdateEmployeeRequest  true  "Fields to change"
// @Success      200  {object}  models.Employee
// @Failure      404  {object}  map[string]interface{}  "Employee not found"
// @Router       /api/employees/{id} [patch]
func (h *AssignmentHandlers) UpdateEmployee(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateEmployeeRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IsActive == nil {
		respondError(c, compliance.NewValidationError("isActive", "is required"))
		return
	}
	e, err := h.svc.SetEmployeeActive(c.Request.Context(), companyID, id, *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// @Summary      Assign role to employee
// @Description  Idempotent: an existing link is returned with 200 instead of 201.
// @Tags         Employees
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                true  "Employee ID"
// @Param        body  body  AssignRoleRequest  true  "Role"
// @Success      200  {object}  models.EmployeeRole  "Already assigned"
// @Success      201  {object}  models.EmployeeRole
// @Failure      404  {object}  map[string]interface{}  "Employee or role not found"
// @Router       /api/employees/{id}/roles [post]
func (h *AssignmentHandlers) AssignRole(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	employeeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AssignRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.RoleID <= 0 {
		respondError(c, compliance.NewValidationError("roleId", "is required"))
		return
	}
	er, isNew, err := h.svc.AssignRoleToEmployee(c.Request.Context(), companyID, employeeID, req.RoleID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !isNew {
		c.JSON(http.StatusOK, er)
		return
	}
	// Audit records name the employee, not the link row.
	c.Set(middleware.AuditResourceIDKey, strconv.FormatInt(employeeID, 10))
	c.JSON(http.StatusCreated, er)
}
