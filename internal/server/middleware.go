package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/authorization"
	"github.com/farmgate/farmgate/internal/orgcontext"
	"github.com/gin-gonic/gin"
)

const (
	// HeaderOrg selects the effective tenant; only platform admins may
	// point it at a foreign organization.
	HeaderOrg = "X-Org-ID"

	contextAccessKey = "access_context"
)

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthRequired validates the bearer token and attaches the resolved access
// context to the request.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		var impersonateOrgID *snowflake.ID
		if header := strings.TrimSpace(c.GetHeader(HeaderOrg)); header != "" {
			orgID, err := snowflake.ParseString(header)
			if err != nil {
				AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid value"))
				return
			}
			impersonateOrgID = &orgID
		}

		access, err := s.validator.Validate(c.Request.Context(), raw, impersonateOrgID)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextAccessKey, access)
		if access.OrgID != nil {
			c.Request = c.Request.WithContext(orgcontext.WithOrgID(c.Request.Context(), *access.OrgID))
		}
		c.Next()
	}
}

// AccessContext returns the validated principal attached by AuthRequired.
func AccessContext(c *gin.Context) (*authorization.Context, bool) {
	value, ok := c.Get(contextAccessKey)
	if !ok {
		return nil, false
	}
	access, ok := value.(*authorization.Context)
	return access, ok && access != nil
}

// RequirePermission gates a route on an organization-wide permission.
func (s *Server) RequirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		access, ok := AccessContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if access.Access == nil || !access.Access.Has(resource, action) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// RequireModule gates a route on a tenant capability module.
func (s *Server) RequireModule(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		access, ok := AccessContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !access.Capabilities.HasModule(name) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// AuthRateLimit throttles credential-guessing endpoints per client IP.
func (s *Server) AuthRateLimit(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "authrl:" + endpoint + ":" + c.ClientIP()
		allowed, err := s.limiter.Allow(c.Request.Context(), key)
		if err != nil {
			// Limiter outage must not lock everyone out.
			c.Next()
			return
		}
		if !allowed {
			s.metrics.RecordRateLimited(endpoint)
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
