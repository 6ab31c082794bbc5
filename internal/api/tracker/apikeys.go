package tracker

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/auth"
	"github.com/policytracker/policy-tracker/internal/compliance"
	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
)

// DefaultAPIKeyPrefix is used when auth.api_keys.prefix is empty.
const DefaultAPIKeyPrefix = "pt_"

// maxAPIKeyLifetimeDays caps expiresInDays.
const maxAPIKeyLifetimeDays = 3650

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	cfg        *config.AuthConfig
	apiKeyRepo *repositories.APIKeyRepository
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(cfg *config.AuthConfig, apiKeyRepo *repositories.APIKeyRepository) *APIKeyHandlers {
	return &APIKeyHandlers{cfg: cfg, apiKeyRepo: apiKeyRepo}
}

// CreateAPIKeyRequest represents the request to create a new API key
type CreateAPIKeyRequest struct {
	Name          string `json:"name"`
	ExpiresInDays *int   `json:"expiresInDays"`
}

// CreateAPIKeyResponse represents the response when creating an API key
type CreateAPIKeyResponse struct {
	APIKey string         `json:"apiKey"` // Only returned once during creation
	Key    *models.APIKey `json:"key"`
}

// IssueAPIKey generates, hashes and stores a key for companyID and returns the
// raw key with its stored record.
func IssueAPIKey(ctx context.Context, repo *repositories.APIKeyRepository, prefix string, companyID int64, name string, expiresAt *time.Time) (string, *models.APIKey, error) {
	if prefix == "" {
		prefix = DefaultAPIKeyPrefix
	}
	raw, hash, display, err := auth.GenerateAPIKey(prefix)
	if err != nil {
		return "", nil, err
	}
	key := &models.APIKey{
		CompanyID: companyID,
		Name:      name,
		KeyHash:   hash,
		KeyPrefix: display,
		ExpiresAt: expiresAt,
	}
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		return "", nil, err
	}
	return raw, key, nil
}

// @Summary      List API keys
// @Description  Lists the company's API keys, newest first. Hashes are never returned.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Success      200  {array}   models.APIKey
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/api-keys [get]
// ListAPIKeysHandler lists the caller's company keys
// GET /api/api-keys
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID, ok := tenantID(c)
		if !ok {
			return
		}

		keys, err := h.apiKeyRepo.ListAPIKeys(c.Request.Context(), companyID)
		if err != nil {
			slog.Error("failed to list api keys", "company_id", companyID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list API keys",
			})
			return
		}

		c.JSON(http.StatusOK, keys)
	}
}

// @Summary      Create API key
// @Description  Creates an API key for the caller's company. The raw key is returned once and cannot be retrieved again.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAPIKeyRequest  true  "API key"
// @Success      201  {object}  CreateAPIKeyResponse
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      403  {object}  map[string]interface{}  "API keys are disabled"
// @Router       /api/api-keys [post]
// CreateAPIKeyHandler creates a new API key
// POST /api/api-keys
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID, ok := tenantID(c)
		if !ok {
			return
		}
		if h.cfg != nil && !h.cfg.APIKeys.Enabled {
			c.JSON(http.StatusForbidden, gin.H{"error": "API keys are disabled"})
			return
		}

		var req CreateAPIKeyRequest
		if !bindJSON(c, &req) {
			return
		}

		ve := &compliance.ValidationError{}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			ve.Add("name", "is required")
		}
		var expiresAt *time.Time
		if req.ExpiresInDays != nil {
			days := *req.ExpiresInDays
			if days <= 0 || days > maxAPIKeyLifetimeDays {
				ve.Add("expiresInDays", "must be between 1 and 3650")
			} else {
				t := time.Now().UTC().AddDate(0, 0, days)
				expiresAt = &t
			}
		}
		if err := ve.OrNil(); err != nil {
			respondError(c, err)
			return
		}

		prefix := ""
		if h.cfg != nil {
			prefix = h.cfg.APIKeys.Prefix
		}
		raw, key, err := IssueAPIKey(c.Request.Context(), h.apiKeyRepo, prefix, companyID, name, expiresAt)
		if err != nil {
			slog.Error("failed to create api key", "company_id", companyID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create API key",
			})
			return
		}

		created(c, key.ID, CreateAPIKeyResponse{APIKey: raw, Key: key})
	}
}

// @Summary      Delete API key
// @Tags         API Keys
// @Security     Bearer
// @Param        id  path  int  true  "API key ID"
// @Success      204  "Deleted"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Router       /api/api-keys/{id} [delete]
// DeleteAPIKeyHandler revokes a key
// DELETE /api/api-keys/:id
func (h *APIKeyHandlers) DeleteAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID, ok := tenantID(c)
		if !ok {
			return
		}
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		deleted, err := h.apiKeyRepo.DeleteAPIKey(c.Request.Context(), companyID, id)
		if err != nil {
			slog.Error("failed to delete api key", "api_key_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to delete API key",
			})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}
