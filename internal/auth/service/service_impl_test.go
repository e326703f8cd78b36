package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/farmgate/farmgate/internal/auth/domain"
	"github.com/farmgate/farmgate/internal/auth/password"
	authrepository "github.com/farmgate/farmgate/internal/auth/repository"
	"github.com/farmgate/farmgate/internal/auth/token"
	"github.com/farmgate/farmgate/internal/clock"
	"github.com/farmgate/farmgate/internal/organization/capability"
	orgdomain "github.com/farmgate/farmgate/internal/organization/domain"
	orgrepository "github.com/farmgate/farmgate/internal/organization/repository"
	orgservice "github.com/farmgate/farmgate/internal/organization/service"
	rbacdomain "github.com/farmgate/farmgate/internal/rbac/domain"
	rbacrepository "github.com/farmgate/farmgate/internal/rbac/repository"
	rbacservice "github.com/farmgate/farmgate/internal/rbac/service"
	verificationdomain "github.com/farmgate/farmgate/internal/verification/domain"
	verificationrepository "github.com/farmgate/farmgate/internal/verification/repository"
	verificationservice "github.com/farmgate/farmgate/internal/verification/service"
	"github.com/farmgate/farmgate/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingMailer struct {
	mu    sync.Mutex
	sends []sentMail
}

type sentMail struct {
	To      []string
	Subject string
	Body    string
}

func (m *recordingMailer) Send(_ context.Context, to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) bySubject(substr string) []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMail
	for _, s := range m.sends {
		if strings.Contains(s.Subject, substr) {
			out = append(out, s)
		}
	}
	return out
}

type authFixture struct {
	conn   *gorm.DB
	svc    authdomain.Service
	clk    *clock.FakeClock
	mailer *recordingMailer
	tokens *token.Manager
	node   *snowflake.Node
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&orgdomain.Organization{},
		&authdomain.User{},
		&rbacdomain.Permission{},
		&rbacdomain.Role{},
		&rbacdomain.RolePermission{},
		&rbacdomain.UserRoleAssignment{},
		&verificationdomain.OneTimeToken{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	// Registration assigns org_admin; the role must exist up front.
	role := rbacdomain.Role{
		ID:        node.Generate(),
		Name:      "org_admin",
		Scope:     rbacdomain.ScopeOrganization,
		IsSystem:  true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, conn.Create(&role).Error)

	// Token exp claims are validated against the wall clock, so the fake
	// starts at real now and only moves forward.
	clk := clock.NewFakeClock(time.Now().UTC())

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	orgSvc := orgservice.New(conn, log, orgrepository.New(conn), capability.For, node)
	rbacSvc := rbacservice.New(log, rbacrepository.New(conn), node)
	verifSvc := verificationservice.New(log, verificationrepository.New(conn), clk, verificationservice.Config{
		ResetTTL:        time.Hour,
		VerificationTTL: 24 * time.Hour,
		HourlyCap:       3,
	})
	mailer := &recordingMailer{}

	svc := New(Params{
		DB:       conn,
		Log:      log,
		Repo:     authrepository.New(conn),
		OrgSvc:   orgSvc,
		RbacSvc:  rbacSvc,
		Verifier: verifSvc,
		Mailer:   mailer,
		Hasher:   password.NewArgon2(),
		Tokens:   tokens,
		Clock:    clk,
		GenID:    node,
		BaseURL:  "https://app.farmgate.dev",
	})

	return &authFixture{
		conn:   conn,
		svc:    svc,
		clk:    clk,
		mailer: mailer,
		tokens: tokens,
		node:   node,
	}
}

func (f *authFixture) register(t *testing.T, email string) *authdomain.AuthResult {
	t.Helper()
	result, err := f.svc.Register(context.Background(), authdomain.RegisterRequest{
		Email:     email,
		Password:  "strong-password-1",
		OrgName:   "Green Valley Farms",
		OrgType:   orgdomain.TypeFarmOperation,
		PlanTier:  orgdomain.PlanStandard,
		UserAgent: "test-agent",
		IPAddress: "203.0.113.7",
	})
	require.NoError(t, err)
	return result
}

// tokenFromMail pulls the one-time token out of an emailed link.
func tokenFromMail(t *testing.T, body string) string {
	t.Helper()
	_, rest, found := strings.Cut(body, "token=")
	require.True(t, found, "no token in mail body: %s", body)
	end := strings.IndexAny(rest, `"&`)
	require.Greater(t, end, 0)
	return rest[:end]
}

func TestRegisterProvisionsTenantAndSession(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "owner@greenvalley.example")

	require.NotNil(t, result.Tokens)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.Equal(t, "owner@greenvalley.example", result.User.Email)
	require.NotNil(t, result.User.OrgID)

	claims, err := f.tokens.ParseAccess(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.Subject)
	assert.Equal(t, *result.User.OrgID, claims.OrgID)
	assert.Equal(t, "standard", claims.PlanTier)

	var org orgdomain.Organization
	require.NoError(t, f.conn.First(&org, "name = ?", "Green Valley Farms").Error)
	assert.Equal(t, orgdomain.TypeFarmOperation, org.Type)
	assert.True(t, org.IsActive)

	var assignments []rbacdomain.UserRoleAssignment
	require.NoError(t, f.conn.Find(&assignments).Error)
	require.Len(t, assignments, 1)
	assert.True(t, assignments[0].IsActive)

	assert.Len(t, f.mailer.bySubject("Welcome"), 1)
	assert.Len(t, f.mailer.bySubject("Verify"), 1)
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, authdomain.RegisterRequest{
		Email:    "not-an-email",
		Password: "strong-password-1",
		OrgName:  "Farm",
		OrgType:  orgdomain.TypeFarmOperation,
	})
	assert.ErrorIs(t, err, authdomain.ErrInvalidEmail)

	_, err = f.svc.Register(ctx, authdomain.RegisterRequest{
		Email:    "short@example.com",
		Password: "short",
		OrgName:  "Farm",
		OrgType:  orgdomain.TypeFarmOperation,
	})
	assert.ErrorIs(t, err, authdomain.ErrWeakPassword)

	_, err = f.svc.Register(ctx, authdomain.RegisterRequest{
		Email:    "bad-type@example.com",
		Password: "strong-password-1",
		OrgName:  "Farm",
		OrgType:  orgdomain.OrgType("bakery"),
	})
	assert.ErrorIs(t, err, orgdomain.ErrInvalidType)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "dup@example.com")

	_, err := f.svc.Register(context.Background(), authdomain.RegisterRequest{
		Email:    "Dup@Example.com",
		Password: "strong-password-1",
		OrgName:  "Another Farm",
		OrgType:  orgdomain.TypeFarmOperation,
	})
	assert.ErrorIs(t, err, authdomain.ErrUserExists)
}

func TestLoginOutcomesAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "owner@example.com")
	ctx := context.Background()

	_, err := f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "owner@example.com",
		Password: "wrong-password-1",
	})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "wrong-password-1",
	})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "owner@example.com")
	require.NoError(t, f.conn.Model(&authdomain.User{}).
		Where("email = ?", "owner@example.com").
		Update("is_active", false).Error)

	_, err := f.svc.Login(context.Background(), authdomain.LoginRequest{
		Email:    "owner@example.com",
		Password: "strong-password-1",
	})
	assert.ErrorIs(t, err, authdomain.ErrAccountDisabled)
}

func TestRefreshRotatesAndKillsReplay(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "owner@example.com")
	ctx := context.Background()

	first := result.Tokens.RefreshToken
	second, err := f.svc.Refresh(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second.RefreshToken)

	// The rotated-out token is dead even though its signature and expiry
	// are still valid.
	_, err = f.svc.Refresh(ctx, first)
	assert.ErrorIs(t, err, authdomain.ErrRefreshReused)

	third, err := f.svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, third.AccessToken)
}

func TestRefreshRejectsExpiredSlot(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "owner@example.com")

	f.clk.Advance(8 * 24 * time.Hour)

	_, err := f.svc.Refresh(context.Background(), result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, authdomain.ErrRefreshReused)
}

func TestSecondLoginOverwritesSessionSlot(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "owner@example.com")
	ctx := context.Background()

	relogin, err := f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "owner@example.com",
		Password: "strong-password-1",
	})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, authdomain.ErrRefreshReused)

	_, err = f.svc.Refresh(ctx, relogin.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestLogoutRevokesRefresh(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "owner@example.com")
	ctx := context.Background()

	userID, err := snowflake.ParseString(result.User.ID)
	require.NoError(t, err)

	// Logout must land strictly after the issue instant.
	f.clk.Advance(time.Second)
	require.NoError(t, f.svc.Logout(ctx, userID))

	_, err = f.svc.Refresh(ctx, result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, authdomain.ErrRefreshReused)

	sessions, err := f.svc.Sessions(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "owner@example.com")
	ctx := context.Background()

	userID, err := snowflake.ParseString(result.User.ID)
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, userID, "not-the-password", "another-strong-pass")
	assert.ErrorIs(t, err, authdomain.ErrPasswordMismatch)

	err = f.svc.ChangePassword(ctx, userID, "strong-password-1", "short")
	assert.ErrorIs(t, err, authdomain.ErrWeakPassword)

	require.NoError(t, f.svc.ChangePassword(ctx, userID, "strong-password-1", "another-strong-pass"))

	_, err = f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "owner@example.com",
		Password: "strong-password-1",
	})
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "owner@example.com",
		Password: "another-strong-pass",
	})
	assert.NoError(t, err)
}

func TestForgotPasswordAcksIdentically(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "owner@example.com")
	ctx := context.Background()

	assert.NoError(t, f.svc.ForgotPassword(ctx, "owner@example.com"))
	assert.NoError(t, f.svc.ForgotPassword(ctx, "nobody@example.com"))
	assert.NoError(t, f.svc.ForgotPassword(ctx, "not-an-email"))

	// Only the real account got mail.
	assert.Len(t, f.mailer.bySubject("Reset"), 1)
}

func TestResetPasswordFlow(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "owner@example.com")
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "owner@example.com"))
	mails := f.mailer.bySubject("Reset")
	require.Len(t, mails, 1)
	resetToken := tokenFromMail(t, mails[0].Body)

	f.clk.Advance(time.Second)
	require.NoError(t, f.svc.ResetPassword(ctx, resetToken, "brand-new-password"))

	// One-shot: the same token cannot be replayed.
	err := f.svc.ResetPassword(ctx, resetToken, "yet-another-password")
	assert.ErrorIs(t, err, verificationdomain.ErrInvalidToken)

	// The reset killed the open session.
	_, err = f.svc.Refresh(ctx, result.Tokens.RefreshToken)
	assert.ErrorIs(t, err, authdomain.ErrRefreshReused)

	_, err = f.svc.Login(ctx, authdomain.LoginRequest{
		Email:    "owner@example.com",
		Password: "brand-new-password",
	})
	assert.NoError(t, err)
}

func TestVerifyEmailFlow(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "owner@example.com")
	ctx := context.Background()

	userID, err := snowflake.ParseString(result.User.ID)
	require.NoError(t, err)

	mails := f.mailer.bySubject("Verify")
	require.Len(t, mails, 1)
	verifyToken := tokenFromMail(t, mails[0].Body)

	require.NoError(t, f.svc.VerifyEmail(ctx, verifyToken))

	var user authdomain.User
	require.NoError(t, f.conn.First(&user, "id = ?", userID).Error)
	assert.True(t, user.EmailVerified)

	err = f.svc.SendVerification(ctx, userID)
	assert.ErrorIs(t, err, authdomain.ErrAlreadyVerified)
}

func TestSendVerificationRateLimited(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "owner@example.com")
	ctx := context.Background()

	userID, err := snowflake.ParseString(result.User.ID)
	require.NoError(t, err)

	// Registration consumed one issue; two more fit in the window.
	require.NoError(t, f.svc.SendVerification(ctx, userID))
	require.NoError(t, f.svc.SendVerification(ctx, userID))

	err = f.svc.SendVerification(ctx, userID)
	assert.ErrorIs(t, err, verificationdomain.ErrRateLimited)

	f.clk.Advance(time.Hour + time.Minute)
	assert.NoError(t, f.svc.SendVerification(ctx, userID))
}

func TestSessionsViewAndRevoke(t *testing.T) {
	f := newAuthFixture(t)
	result := f.register(t, "owner@example.com")
	ctx := context.Background()

	userID, err := snowflake.ParseString(result.User.ID)
	require.NoError(t, err)

	sessions, err := f.svc.Sessions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, authdomain.CurrentSessionID, sessions[0].ID)
	assert.Equal(t, "test-agent", sessions[0].UserAgent)
	assert.Equal(t, "203.0.113.7", sessions[0].IPAddress)

	err = f.svc.RevokeSession(ctx, userID, "some-other-session")
	assert.ErrorIs(t, err, authdomain.ErrSessionNotFound)

	f.clk.Advance(time.Second)
	require.NoError(t, f.svc.RevokeSession(ctx, userID, authdomain.CurrentSessionID))

	sessions, err = f.svc.Sessions(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
