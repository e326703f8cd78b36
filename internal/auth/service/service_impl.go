package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/auth/domain"
	"github.com/farmgate/farmgate/internal/auth/password"
	"github.com/farmgate/farmgate/internal/auth/token"
	"github.com/farmgate/farmgate/internal/clock"
	orgdomain "github.com/farmgate/farmgate/internal/organization/domain"
	"github.com/farmgate/farmgate/internal/providers/email"
	rbacdomain "github.com/farmgate/farmgate/internal/rbac/domain"
	verificationdomain "github.com/farmgate/farmgate/internal/verification/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 8

	// OwnerRoleName is assigned to the registering principal.
	OwnerRoleName = "org_admin"
)

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	orgSvc   orgdomain.Service
	rbacSvc  rbacdomain.Service
	verifier verificationdomain.Service
	mailer   email.Provider
	hasher   password.Hasher
	tokens   *token.Manager
	clock    clock.Clock
	genID    *snowflake.Node
	baseURL  string
}

type Params struct {
	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	OrgSvc   orgdomain.Service
	RbacSvc  rbacdomain.Service
	Verifier verificationdomain.Service
	Mailer   email.Provider
	Hasher   password.Hasher
	Tokens   *token.Manager
	Clock    clock.Clock
	GenID    *snowflake.Node
	BaseURL  string
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("auth.service"),
		repo:     p.Repo,
		orgSvc:   p.OrgSvc,
		rbacSvc:  p.RbacSvc,
		verifier: p.Verifier,
		mailer:   p.Mailer,
		hasher:   p.Hasher,
		tokens:   p.Tokens,
		clock:    p.Clock,
		genID:    p.GenID,
		baseURL:  strings.TrimRight(p.BaseURL, "/"),
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.AuthResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, domain.ErrWeakPassword
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = defaultDisplayName(email)
	}

	var user *domain.User
	var org *orgdomain.Organization
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err = s.orgSvc.CreateInTx(ctx, tx, orgdomain.CreateRequest{
			Name:     req.OrgName,
			Type:     req.OrgType,
			PlanTier: req.PlanTier,
		})
		if err != nil {
			return err
		}

		orgID := org.ID
		user = &domain.User{
			ID:           s.genID.Generate(),
			ExternalID:   uuid.NewString(),
			Email:        email,
			DisplayName:  displayName,
			PasswordHash: &hashed,
			OrgID:        &orgID,
			IsActive:     true,
			Metadata:     datatypes.JSONMap{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.WithTx(tx).Create(ctx, user); err != nil {
			return err
		}

		_, err = s.rbacSvc.AssignRoleInTx(ctx, tx, rbacdomain.AssignRequest{
			UserID:   user.ID,
			RoleName: OwnerRoleName,
			OrgID:    &orgID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.openSession(ctx, user, org, req.UserAgent, req.IPAddress)
	if err != nil {
		return nil, err
	}

	s.sendWelcome(ctx, user, org)
	s.sendVerificationMail(ctx, user)

	return &domain.AuthResult{Tokens: pair, User: user.View()}, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !s.hasher.Verify(req.Password, *user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}

	var org *orgdomain.Organization
	if user.OrgID != nil {
		org, err = s.orgSvc.RequireActive(ctx, *user.OrgID)
		if err != nil {
			if errors.Is(err, orgdomain.ErrSuspended) || errors.Is(err, orgdomain.ErrInactive) {
				return nil, domain.ErrAccountDisabled
			}
			return nil, err
		}
	}

	pair, err := s.openSession(ctx, user, org, req.UserAgent, req.IPAddress)
	if err != nil {
		return nil, err
	}

	s.log.Info("user.login", zap.String("user_id", user.ID.String()))
	return &domain.AuthResult{Tokens: pair, User: user.View()}, nil
}

// Refresh rotates the single refresh slot. Two concurrent rotations with the
// same still-valid token may both pass the hash check; last write wins and
// the loser's pair fails on its next use. That gap is accepted, not guarded.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (*token.Pair, error) {
	claims, err := s.tokens.ParseRefresh(rawRefreshToken)
	if err != nil {
		return nil, domain.ErrRefreshReused
	}

	userID, err := snowflake.ParseString(claims.Subject)
	if err != nil {
		return nil, domain.ErrRefreshReused
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrRefreshReused
		}
		return nil, err
	}

	now := s.clock.Now()
	if user.RefreshTokenHash == nil || user.RefreshTokenExpiresAt == nil {
		return nil, domain.ErrRefreshReused
	}
	if subtle.ConstantTimeCompare([]byte(*user.RefreshTokenHash), []byte(token.Hash(rawRefreshToken))) != 1 {
		return nil, domain.ErrRefreshReused
	}
	if now.After(*user.RefreshTokenExpiresAt) {
		return nil, domain.ErrRefreshReused
	}
	if !user.IsActive {
		return nil, domain.ErrRefreshReused
	}

	var org *orgdomain.Organization
	if user.OrgID != nil {
		org, err = s.orgSvc.GetByID(ctx, *user.OrgID)
		if err != nil {
			return nil, err
		}
	}

	pair, err := s.tokens.IssuePair(subjectFor(user, org), now)
	if err != nil {
		return nil, err
	}

	newHash := token.Hash(pair.RefreshToken)
	expiresAt := now.Add(s.tokens.RefreshTTL())
	err = s.repo.UpdateFields(ctx, user.ID, map[string]any{
		"refresh_token_hash":       newHash,
		"refresh_token_expires_at": expiresAt,
		"updated_at":               now,
	})
	if err != nil {
		return nil, err
	}

	return pair, nil
}

func (s *Service) Logout(ctx context.Context, userID snowflake.ID) error {
	return s.clearSession(ctx, userID)
}

// LogoutAll matches Logout because only one session slot exists.
func (s *Service) LogoutAll(ctx context.Context, userID snowflake.ID) error {
	return s.clearSession(ctx, userID)
}

func (s *Service) ChangePassword(ctx context.Context, userID snowflake.ID, currentPassword, newPassword string) error {
	if len(strings.TrimSpace(newPassword)) < minPasswordLength {
		return domain.ErrWeakPassword
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == nil || !s.hasher.Verify(currentPassword, *user.PasswordHash) {
		return domain.ErrPasswordMismatch
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	return s.repo.UpdateFields(ctx, userID, map[string]any{
		"password_hash":         hashed,
		"last_password_changed": now,
		"updated_at":            now,
	})
}

// ForgotPassword never reports whether the email exists; every failure path
// is swallowed so the caller's response stays byte-identical.
func (s *Service) ForgotPassword(ctx context.Context, rawEmail string) error {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return nil
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil
	}

	plaintext, err := s.verifier.Issue(ctx, user.ID, verificationdomain.KindPasswordReset)
	if err != nil {
		s.log.Warn("reset token issue failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		return nil
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, plaintext)
	body := fmt.Sprintf("<p>Hi %s,</p><p>Use <a href=%q>this link</a> to reset your FarmGate password. It expires in one hour.</p>", user.DisplayName, link)
	if err := s.mailer.Send(ctx, []string{user.Email}, "Reset your FarmGate password", body); err != nil {
		s.log.Warn("reset mail send failed", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if len(strings.TrimSpace(newPassword)) < minPasswordLength {
		return domain.ErrWeakPassword
	}

	record, err := s.verifier.Redeem(ctx, rawToken, verificationdomain.KindPasswordReset)
	if err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	// A reset also clears the session slot so stolen refresh tokens die
	// with the old password.
	return s.repo.UpdateFields(ctx, record.UserID, map[string]any{
		"password_hash":            hashed,
		"last_password_changed":    now,
		"refresh_token_hash":       nil,
		"refresh_token_expires_at": nil,
		"logged_out_at":            now,
		"updated_at":               now,
	})
}

func (s *Service) SendVerification(ctx context.Context, userID snowflake.ID) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return domain.ErrAlreadyVerified
	}

	plaintext, err := s.verifier.Issue(ctx, user.ID, verificationdomain.KindEmailVerification)
	if err != nil {
		return err
	}

	s.mailVerificationLink(ctx, user, plaintext)
	return nil
}

func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	record, err := s.verifier.Redeem(ctx, rawToken, verificationdomain.KindEmailVerification)
	if err != nil {
		return err
	}

	user, err := s.repo.FindByID(ctx, record.UserID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return domain.ErrAlreadyVerified
	}

	return s.repo.UpdateFields(ctx, user.ID, map[string]any{
		"email_verified": true,
		"updated_at":     s.clock.Now(),
	})
}

// Sessions synthesizes the session list from the single refresh slot; there
// is no session table behind it.
func (s *Service) Sessions(ctx context.Context, userID snowflake.ID) ([]domain.SessionView, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.RefreshTokenHash == nil || user.RefreshTokenExpiresAt == nil {
		return []domain.SessionView{}, nil
	}
	if s.clock.Now().After(*user.RefreshTokenExpiresAt) {
		return []domain.SessionView{}, nil
	}

	view := domain.SessionView{
		ID:        domain.CurrentSessionID,
		UserAgent: user.SessionUserAgent,
		IPAddress: user.SessionIPAddress,
		ExpiresAt: *user.RefreshTokenExpiresAt,
	}
	if user.SessionCreatedAt != nil {
		view.CreatedAt = *user.SessionCreatedAt
	}
	return []domain.SessionView{view}, nil
}

func (s *Service) RevokeSession(ctx context.Context, userID snowflake.ID, sessionID string) error {
	if sessionID != domain.CurrentSessionID {
		return domain.ErrSessionNotFound
	}
	return s.clearSession(ctx, userID)
}

// openSession issues a pair and overwrites the refresh slot, invalidating
// any previous session.
func (s *Service) openSession(ctx context.Context, user *domain.User, org *orgdomain.Organization, userAgent, ipAddress string) (*token.Pair, error) {
	now := s.clock.Now()
	pair, err := s.tokens.IssuePair(subjectFor(user, org), now)
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.tokens.RefreshTTL())
	err = s.repo.UpdateFields(ctx, user.ID, map[string]any{
		"refresh_token_hash":       token.Hash(pair.RefreshToken),
		"refresh_token_expires_at": expiresAt,
		"session_user_agent":       strings.TrimSpace(userAgent),
		"session_ip_address":       strings.TrimSpace(ipAddress),
		"session_created_at":       now,
		"last_login_at":            now,
		"updated_at":               now,
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *Service) clearSession(ctx context.Context, userID snowflake.ID) error {
	now := s.clock.Now()
	err := s.repo.UpdateFields(ctx, userID, map[string]any{
		"refresh_token_hash":       nil,
		"refresh_token_expires_at": nil,
		"session_user_agent":       "",
		"session_ip_address":       "",
		"session_created_at":       nil,
		"logged_out_at":            now,
		"updated_at":               now,
	})
	if err != nil {
		return err
	}
	s.log.Info("user.logout", zap.String("user_id", userID.String()))
	return nil
}

func (s *Service) sendWelcome(ctx context.Context, user *domain.User, org *orgdomain.Organization) {
	orgName := ""
	if org != nil {
		orgName = org.Name
	}
	body := fmt.Sprintf("<p>Hi %s,</p><p>Welcome to FarmGate. Your organization %q is ready.</p>", user.DisplayName, orgName)
	if err := s.mailer.Send(ctx, []string{user.Email}, "Welcome to FarmGate", body); err != nil {
		s.log.Warn("welcome mail send failed", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}

func (s *Service) sendVerificationMail(ctx context.Context, user *domain.User) {
	plaintext, err := s.verifier.Issue(ctx, user.ID, verificationdomain.KindEmailVerification)
	if err != nil {
		s.log.Warn("verification token issue failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}
	s.mailVerificationLink(ctx, user, plaintext)
}

func (s *Service) mailVerificationLink(ctx context.Context, user *domain.User, plaintext string) {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, plaintext)
	body := fmt.Sprintf("<p>Hi %s,</p><p>Confirm your email with <a href=%q>this link</a>.</p>", user.DisplayName, link)
	if err := s.mailer.Send(ctx, []string{user.Email}, "Verify your FarmGate email", body); err != nil {
		s.log.Warn("verification mail send failed", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}

func subjectFor(user *domain.User, org *orgdomain.Organization) token.Subject {
	subject := token.Subject{
		UserID:        user.ID,
		OrgID:         user.OrgID,
		PlatformAdmin: user.IsPlatformAdmin,
	}
	if org != nil {
		subject.PlanTier = string(org.PlanTier)
	}
	return subject
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultDisplayName(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return email
}
