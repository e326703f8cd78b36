package server

import (
	"errors"
	"net/http"
	"strings"

	authdomain "github.com/farmgate/farmgate/internal/auth/domain"
	"github.com/farmgate/farmgate/internal/authorization"
	orgdomain "github.com/farmgate/farmgate/internal/organization/domain"
	rbacdomain "github.com/farmgate/farmgate/internal/rbac/domain"
	verificationdomain "github.com/farmgate/farmgate/internal/verification/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isAuthenticationError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "authentication_failure",
			Message: "unauthorized",
		}
	case isAuthorizationError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "authorization_failure",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, authdomain.ErrUserExists),
		errors.Is(err, authdomain.ErrAlreadyVerified),
		errors.Is(err, orgdomain.ErrSlugTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, verificationdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// isAuthenticationError covers every failure where the caller has not
// proven who they are. Bad credentials and bad tokens share one shape.
func isAuthenticationError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, authdomain.ErrRefreshReused),
		errors.Is(err, authorization.ErrInvalidToken):
		return true
	default:
		return false
	}
}

// isAuthorizationError covers callers who are known but not allowed.
func isAuthorizationError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authdomain.ErrAccountDisabled),
		errors.Is(err, authorization.ErrAccountDisabled),
		errors.Is(err, authorization.ErrOrgSuspended),
		errors.Is(err, authorization.ErrImpersonationForbidden),
		errors.Is(err, orgdomain.ErrSuspended),
		errors.Is(err, orgdomain.ErrInactive):
		return true
	default:
		return false
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, authdomain.ErrWeakPassword),
		errors.Is(err, authdomain.ErrInvalidEmail),
		errors.Is(err, authdomain.ErrPasswordMismatch),
		errors.Is(err, verificationdomain.ErrInvalidToken),
		errors.Is(err, orgdomain.ErrInvalidName),
		errors.Is(err, orgdomain.ErrInvalidType),
		errors.Is(err, orgdomain.ErrInvalidPlan),
		errors.Is(err, orgdomain.ErrInvalidOrgID),
		errors.Is(err, rbacdomain.ErrInvalidScope):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, orgdomain.ErrNotFound),
		errors.Is(err, rbacdomain.ErrRoleNotFound),
		errors.Is(err, rbacdomain.ErrAssignmentNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, authdomain.ErrPasswordMismatch):
		return "invalid_current_password"
	case errors.Is(err, verificationdomain.ErrInvalidToken):
		return "invalid_token"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
