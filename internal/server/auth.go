package server

import (
	"net/http"
	"sort"
	"strings"

	authdomain "github.com/farmgate/farmgate/internal/auth/domain"
	orgdomain "github.com/farmgate/farmgate/internal/organization/domain"
	"github.com/gin-gonic/gin"
)

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	OrgName     string `json:"org_name"`
	OrgType     string `json:"org_type"`
	PlanTier    string `json:"plan_tier"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

func (s *Server) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if strings.TrimSpace(req.OrgName) == "" {
		AbortWithError(c, newValidationError("org_name", "required", "organization name is required"))
		return
	}

	result, err := s.authsvc.Register(c.Request.Context(), authdomain.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		OrgName:     req.OrgName,
		OrgType:     orgdomain.OrgType(strings.TrimSpace(req.OrgType)),
		PlanTier:    orgdomain.PlanTier(strings.TrimSpace(req.PlanTier)),
		UserAgent:   c.Request.UserAgent(),
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		s.metrics.RecordLogin("failed")
		AbortWithError(c, err)
		return
	}

	s.metrics.RecordLogin("ok")
	c.JSON(http.StatusOK, result)
}

func (s *Server) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pair, err := s.authsvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.metrics.RecordRefresh("failed")
		AbortWithError(c, err)
		return
	}

	s.metrics.RecordRefresh("ok")
	c.JSON(http.StatusOK, pair)
}

func (s *Server) Logout(c *gin.Context) {
	access, ok := AccessContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.Logout(c.Request.Context(), access.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) LogoutAll(c *gin.Context) {
	access, ok := AccessContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.LogoutAll(c.Request.Context(), access.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ChangePassword(c *gin.Context) {
	access, ok := AccessContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	currentPassword := strings.TrimSpace(req.CurrentPassword)
	newPassword := strings.TrimSpace(req.NewPassword)
	if currentPassword == "" {
		AbortWithError(c, newValidationError("current_password", "required", "current password is required"))
		return
	}
	if newPassword == "" {
		AbortWithError(c, newValidationError("new_password", "required", "new password is required"))
		return
	}
	if currentPassword == newPassword {
		AbortWithError(c, newValidationError("new_password", "must_differ", "new password must be different"))
		return
	}

	if err := s.authsvc.ChangePassword(c.Request.Context(), access.UserID, currentPassword, newPassword); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Forgot always returns 202; the response must not reveal whether the
// email is registered.
func (s *Server) Forgot(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authsvc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authsvc.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) SendVerification(c *gin.Context) {
	access, ok := AccessContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.SendVerification(c.Request.Context(), access.UserID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) VerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authsvc.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Me returns the validated principal with its effective permissions and
// capabilities, which is also how clients probe token validity.
func (s *Server) Me(c *gin.Context) {
	access, ok := AccessContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	permissions := make([]string, 0, len(access.Access.Permissions))
	for key := range access.Access.Permissions {
		permissions = append(permissions, key)
	}
	sort.Strings(permissions)

	payload := gin.H{
		"user_id":        access.UserID.String(),
		"plan_tier":      access.PlanTier,
		"platform_admin": access.PlatformAdmin,
		"impersonated":   access.Impersonated,
		"email_verified": access.EmailVerified,
		"permissions":    permissions,
		"farm_grants":    access.Access.FarmGrants,
		"capabilities":   access.Capabilities,
	}
	if access.OrgID != nil {
		payload["org_id"] = access.OrgID.String()
	}
	if access.ActorOrgID != nil {
		payload["actor_org_id"] = access.ActorOrgID.String()
	}

	c.JSON(http.StatusOK, payload)
}
