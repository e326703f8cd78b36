package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/auth/token"
	orgdomain "github.com/farmgate/farmgate/internal/organization/domain"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	// Refresh rotates the refresh token: the presented token must match
	// the stored hash and the old hash is discarded on success, so a
	// replayed stale token always fails after a legitimate rotation.
	Refresh(ctx context.Context, rawRefreshToken string) (*token.Pair, error)
	Logout(ctx context.Context, userID snowflake.ID) error
	LogoutAll(ctx context.Context, userID snowflake.ID) error
	ChangePassword(ctx context.Context, userID snowflake.ID, currentPassword, newPassword string) error
	// ForgotPassword always returns nil; the caller's response must be
	// identical whether or not the email exists.
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
	SendVerification(ctx context.Context, userID snowflake.ID) error
	VerifyEmail(ctx context.Context, rawToken string) error
	Sessions(ctx context.Context, userID snowflake.ID) ([]SessionView, error)
	RevokeSession(ctx context.Context, userID snowflake.ID, sessionID string) error
}

type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
	OrgName     string
	OrgType     orgdomain.OrgType
	PlanTier    orgdomain.PlanTier
	UserAgent   string
	IPAddress   string
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type AuthResult struct {
	Tokens *token.Pair `json:"tokens"`
	User   UserView    `json:"user"`
}
