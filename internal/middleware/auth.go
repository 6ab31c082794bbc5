// Package middleware provides Gin HTTP middleware for tenant resolution, rate
// limiting, security headers, request metrics and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	RequestID → Metrics → Logger → Security → RateLimit → Tenant → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before tenant resolution so brute-force attempts are
// blocked before any DB work. Tenant resolution sets the company id every
// handler scopes its queries by; audit logging reads the same context.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/policytracker/policy-tracker/internal/auth"
	"github.com/policytracker/policy-tracker/internal/config"
	"github.com/policytracker/policy-tracker/internal/db/models"
	"github.com/policytracker/policy-tracker/internal/db/repositories"
)

// Context keys set by TenantMiddleware.
const (
	ContextCompanyID  = "company_id"
	ContextAuthMethod = "auth_method"
	ContextActor      = "actor"
	ContextAPIKeyID   = "api_key_id"
)

// CompanyHeader carries the tenant when auth.require_auth is off.
const CompanyHeader = "X-Company-ID"

// Auth methods recorded in the request context and the audit trail.
const (
	AuthMethodJWT    = "jwt"
	AuthMethodAPIKey = "api_key"
	AuthMethodHeader = "header"
)

// CompanyID returns the company resolved for the request.
func CompanyID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextCompanyID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

// Actor returns the audit identity of the caller, or "".
func Actor(c *gin.Context) string {
	return c.GetString(ContextActor)
}

// TenantMiddleware resolves the calling company from a JWT, an API key or,
// when cfg.RequireAuth is false, the X-Company-ID header. Requests without a
// resolvable company are rejected with 401.
func TenantMiddleware(cfg *config.AuthConfig, apiKeyRepo *repositories.APIKeyRepository) gin.HandlerFunc {
	requireAuth := cfg == nil || cfg.RequireAuth
	issuer := ""
	apiKeysEnabled := apiKeyRepo != nil
	if cfg != nil {
		issuer = cfg.JWTIssuer
		apiKeysEnabled = apiKeysEnabled && cfg.APIKeys.Enabled
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if requireAuth {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Missing authorization header",
				})
				return
			}
			resolveFromHeader(c)
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		// JWTs are checked first; they need no database round-trip.
		if claims, err := auth.ValidateJWT(token, issuer); err == nil {
			c.Set(ContextCompanyID, claims.CompanyID)
			c.Set(ContextAuthMethod, AuthMethodJWT)
			c.Set(ContextActor, "jwt:"+claims.Subject)
			c.Next()
			return
		}

		if apiKeysEnabled {
			key, err := authenticateAPIKey(c.Request.Context(), token, apiKeyRepo)
			if err != nil {
				slog.Error("api key lookup failed", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Authentication failed",
				})
				return
			}
			if key != nil {
				now := time.Now()
				if key.IsExpired(now) {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
						"error": "API key expired",
					})
					return
				}

				// Best-effort; bounded so a stalled DB cannot leak goroutines.
				go func(id int64) {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := apiKeyRepo.UpdateLastUsed(ctx, id, now); err != nil {
						slog.Warn("failed to record api key usage", "api_key_id", id, "error", err)
					}
				}(key.ID)

				c.Set(ContextCompanyID, key.CompanyID)
				c.Set(ContextAuthMethod, AuthMethodAPIKey)
				c.Set(ContextActor, "apikey:"+key.KeyPrefix)
				c.Set(ContextAPIKeyID, key.ID)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid credentials",
		})
	}
}

func resolveFromHeader(c *gin.Context) {
	raw := strings.TrimSpace(c.GetHeader(CompanyHeader))
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Missing " + CompanyHeader + " header",
		})
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": CompanyHeader + " must be a positive integer",
		})
		return
	}
	c.Set(ContextCompanyID, id)
	c.Set(ContextAuthMethod, AuthMethodHeader)
	c.Set(ContextActor, AuthMethodHeader)
	c.Next()
}

// authenticateAPIKey narrows candidates by the stored display prefix, then
// runs bcrypt only against those rows.
func authenticateAPIKey(ctx context.Context, providedKey string, apiKeyRepo *repositories.APIKeyRepository) (*models.APIKey, error) {
	keys, err := apiKeyRepo.GetAPIKeysByPrefix(ctx, auth.DisplayPrefix(providedKey))
	if err != nil {
		return nil, err
	}

	for i := range keys {
		if auth.ValidateAPIKey(providedKey, keys[i].KeyHash) {
			return &keys[i], nil
		}
	}

	return nil, nil
}
