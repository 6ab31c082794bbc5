package tracker

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/services"
)

// AcknowledgementHandlers serves acknowledgement requests, their completion
// events and escalations.
type AcknowledgementHandlers struct {
	svc AcknowledgementService
}

// NewAcknowledgementHandlers creates a new AcknowledgementHandlers instance
func NewAcknowledgementHandlers(svc AcknowledgementService) *AcknowledgementHandlers {
	return &AcknowledgementHandlers{svc: svc}
}

// CreateRequestRequest is the body of POST /api/acknowledgement-requests.
type CreateRequestRequest struct {
	EmployeeID      int64  `json:"employeeId"`
	PolicyVersionID int64  `json:"policyVersionId"`
	TriggerType     string `json:"triggerType"`
	DueDate         string `json:"dueDate"`
}

// CompleteRequestRequest is the body of POST /api/acknowledgement-requests/:id/complete.
type CompleteRequestRequest struct {
	EmployeeID int64   `json:"employeeId"`
	IPAddress  *string `json:"ipAddress"`
	UserAgent  *string `json:"userAgent"`
}

// EscalateRequest is the body of POST /api/alert-escalations.
type EscalateRequest struct {
	RequestID   int64  `json:"requestId"`
	EscalatedTo string `json:"escalatedTo"`
}

// @Summary      List acknowledgement requests
// @Description  Lists requests newest first with derived status, severity and days overdue.
// @Tags         Acknowledgements
// @Security     Bearer
// @Produce      json
// @Param        status           query  string  false  "pending, completed, overdue or escalated"
// @Param        employeeId       query  int     false  "Employee filter"
// @Param        policyVersionId  query  int     false  "Version filter"
// @Success      200  {array}   models.AcknowledgementRequestWithDetails
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Router       /api/acknowledgement-requests [get]
func (h *AcknowledgementHandlers) ListRequests(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	employeeID, ok := queryID(c, "employeeId")
	if !ok {
		return
	}
	versionID, ok := queryID(c, "policyVersionId")
	if !ok {
		return
	}
	out, err := h.svc.ListRequests(c.Request.Context(), companyID, services.ListRequestsInput{
		Status:          c.Query("status"),
		EmployeeID:      employeeID,
		PolicyVersionID: versionID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      List overdue acknowledgement requests
// @Description  Open requests past their due date, most overdue first (due date, then id).
// @Tags         Acknowledgements
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.AcknowledgementRequestWithDetails
// @Router       /api/acknowledgement-requests/overdue [get]
func (h *AcknowledgementHandlers) ListOverdue(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	out, err := h.svc.ListOverdue(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      List an employee's acknowledgements
// @Tags         Employees
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Employee ID"
// @Success      200  {array}   models.AcknowledgementRequestWithDetails
// @Failure      404  {object}  map[string]interface{}  "Employee not found"
// @Router       /api/employees/{id}/acknowledgements [get]
func (h *AcknowledgementHandlers) ListEmployeeAcknowledgements(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.svc.ListEmployeeAcknowledgements(c.Request.Context(), companyID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Create acknowledgement request
// @Description  A due date in the past is accepted and yields an immediately overdue request.
// @Tags         Acknowledgements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateRequestRequest  true  "Request"
// @Success      201  {object}  models.AcknowledgementRequest
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      404  {object}  map[string]interface{}  "Employee or version not found"
// @Router       /api/acknowledgement-requests [post]
func (h *AcknowledgementHandlers) CreateRequest(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	var req CreateRequestRequest
	if !bindJSON(c, &req) {
		return
	}

	var due time.Time
	if strings.TrimSpace(req.DueDate) != "" {
		t, err := parseTime(strings.TrimSpace(req.DueDate))
		if err != nil {
			respondError(c, compliance.NewValidationError("dueDate", "must be RFC3339 or YYYY-MM-DD"))
			return
		}
		due = t
	}

	out, err := h.svc.CreateRequest(c.Request.Context(), companyID, services.CreateRequestInput{
		EmployeeID:      req.EmployeeID,
		PolicyVersionID: req.PolicyVersionID,
		TriggerType:     req.TriggerType,
		DueDate:         due,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, out.ID, out)
}

// @Summary      Complete acknowledgement request
// @Description  Records the acknowledgement and its event in one transaction. Completing twice returns 409.
// @Tags         Acknowledgements
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  int                     true  "Request ID"
// @Param        body  body  CompleteRequestRequest  true  "Completion"
// @Success      200  {object}  map[string]interface{}  "message, event"
// @Failure      400  {object}  map[string]interface{}  "Employee does not match"
// @Failure      404  {object}  map[string]interface{}  "Request not found"
// @Failure      409  {object}  map[string]interface{}  "Already completed"
// @Router       /api/acknowledgement-requests/{id}/complete [post]
// CompleteRequest marks a request complete. The client address and user agent
// default to those of the calling HTTP request.
func (h *AcknowledgementHandlers) CompleteRequest(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req CompleteRequestRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IPAddress == nil {
		ip := c.ClientIP()
		req.IPAddress = &ip
	}
	if req.UserAgent == nil {
		ua := c.Request.UserAgent()
		req.UserAgent = &ua
	}

	ev, err := h.svc.CompleteRequest(c.Request.Context(), companyID, id, services.CompleteRequestInput{
		EmployeeID: req.EmployeeID,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Acknowledgement recorded",
		"event":   ev,
	})
}

// @Summary      List acknowledgement events
// @Tags         Acknowledgements
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Request ID"
// @Success      200  {array}   models.AcknowledgementEvent
// @Failure      404  {object}  map[string]interface{}  "Request not found"
// @Router       /api/acknowledgement-requests/{id}/events [get]
func (h *AcknowledgementHandlers) ListEvents(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.svc.ListEvents(c.Request.Context(), companyID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      List escalations
// @Tags         Escalations
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  models.AlertEscalation
// @Router       /api/alert-escalations [get]
func (h *AcknowledgementHandlers) ListEscalations(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	out, err := h.svc.ListEscalations(c.Request.Context(), companyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary      Escalate acknowledgement request
// @Description  Each call records a new escalation, including for completed requests.
// @Tags         Escalations
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  EscalateRequest  true  "Escalation"
// @Success      201  {object}  models.AlertEscalation
// @Failure      404  {object}  map[string]interface{}  "Request not found"
// @Router       /api/alert-escalations [post]
func (h *AcknowledgementHandlers) Escalate(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	var req EscalateRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.RequestID <= 0 {
		respondError(c, compliance.NewValidationError("requestId", "is required"))
		return
	}
	esc, err := h.svc.Escalate(c.Request.Context(), companyID, req.RequestID, req.EscalatedTo)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, esc.ID, esc)
}

// @Summary      Resolve escalation
// @Tags         Escalations
// @Security     Bearer
// @Produce      json
// @Param        id  path  int  true  "Escalation ID"
// @Success      200  {object}  models.AlertEscalation
// @Failure      404  {object}  map[string]interface{}  "Escalation not found"
// @Failure      409  {object}  map[string]interface{}  "Already resolved"
// @Router       /api/alert-escalations/{id}/resolve [post]
func (h *AcknowledgementHandlers) ResolveEscalation(c *gin.Context) {
	companyID, ok := tenantID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	esc, err := h.svc.ResolveEscalation(c.Request.Context(), companyID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, esc)
}
