package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/farmgate/farmgate/internal/auth/domain"
	authrepository "github.com/farmgate/farmgate/internal/auth/repository"
	"github.com/farmgate/farmgate/internal/auth/token"
	"github.com/farmgate/farmgate/internal/organization/capability"
	orgdomain "github.com/farmgate/farmgate/internal/organization/domain"
	orgrepository "github.com/farmgate/farmgate/internal/organization/repository"
	orgservice "github.com/farmgate/farmgate/internal/organization/service"
	rbacdomain "github.com/farmgate/farmgate/internal/rbac/domain"
	rbacrepository "github.com/farmgate/farmgate/internal/rbac/repository"
	rbacservice "github.com/farmgate/farmgate/internal/rbac/service"
	"github.com/farmgate/farmgate/pkg/db"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type validatorFixture struct {
	conn      *gorm.DB
	validator *Validator
	tokens    *token.Manager
	node      *snowflake.Node
}

func newValidatorFixture(t *testing.T) *validatorFixture {
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
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	orgSvc := orgservice.New(conn, log, orgrepository.New(conn), capability.For, node)
	rbacSvc := rbacservice.New(log, rbacrepository.New(conn), node)

	return &validatorFixture{
		conn:      conn,
		validator: NewValidator(log, tokens, authrepository.New(conn), orgSvc, rbacSvc, capability.For),
		tokens:    tokens,
		node:      node,
	}
}

func (f *validatorFixture) org(t *testing.T, name string, orgType orgdomain.OrgType, plan orgdomain.PlanTier) orgdomain.Organization {
	t.Helper()
	now := time.Now().UTC()
	org := orgdomain.Organization{
		ID:        f.node.Generate(),
		Name:      name,
		Slug:      name,
		Type:      orgType,
		PlanTier:  plan,
		IsActive:  true,
		Modules:   datatypes.JSON([]byte(`[]`)),
		Features:  datatypes.JSON([]byte(`[]`)),
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.conn.Create(&org).Error)
	return org
}

func (f *validatorFixture) user(t *testing.T, email string, orgID *snowflake.ID) authdomain.User {
	t.Helper()
	now := time.Now().UTC()
	user := authdomain.User{
		ID:         f.node.Generate(),
		ExternalID: uuid.NewString(),
		Email:      email,
		OrgID:      orgID,
		IsActive:   true,
		Metadata:   datatypes.JSONMap{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.conn.Create(&user).Error)
	return user
}

func (f *validatorFixture) grantRole(t *testing.T, userID snowflake.ID, name string, platformAdmin bool, perms ...[2]string) {
	t.Helper()
	role := rbacdomain.Role{
		ID:              f.node.Generate(),
		Name:            name,
		Scope:           rbacdomain.ScopeOrganization,
		IsSystem:        true,
		IsPlatformAdmin: platformAdmin,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, f.conn.Create(&role).Error)
	for _, pair := range perms {
		perm := rbacdomain.Permission{ID: f.node.Generate(), Resource: pair[0], Action: pair[1]}
		require.NoError(t, f.conn.Create(&perm).Error)
		link := rbacdomain.RolePermission{
			ID:           f.node.Generate(),
			RoleID:       role.ID,
			PermissionID: perm.ID,
			Granted:      true,
		}
		require.NoError(t, f.conn.Create(&link).Error)
	}
	assignment := rbacdomain.UserRoleAssignment{
		ID:        f.node.Generate(),
		UserID:    userID,
		RoleID:    role.ID,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.conn.Create(&assignment).Error)
}

func (f *validatorFixture) accessToken(t *testing.T, user authdomain.User, issuedAt time.Time) string {
	t.Helper()
	pair, err := f.tokens.IssuePair(token.Subject{
		UserID: user.ID,
		OrgID:  user.OrgID,
	}, issuedAt)
	require.NoError(t, err)
	return pair.AccessToken
}

func TestValidateResolvesPrincipal(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	org := f.org(t, "coop", orgdomain.TypeCooperative, orgdomain.PlanPremium)
	user := f.user(t, "member@coop.example", &org.ID)
	f.grantRole(t, user.ID, "trader", false, [2]string{"orders", "read"}, [2]string{"orders", "create"})

	access, err := f.validator.Validate(ctx, f.accessToken(t, user, time.Now().UTC()), nil)
	require.NoError(t, err)

	assert.Equal(t, user.ID, access.UserID)
	require.NotNil(t, access.OrgID)
	assert.Equal(t, org.ID, *access.OrgID)
	assert.Equal(t, orgdomain.PlanPremium, access.PlanTier)
	assert.False(t, access.PlatformAdmin)
	assert.False(t, access.Impersonated)
	assert.True(t, access.Access.Has("orders", "read"))
	assert.True(t, access.Access.Has("orders", "create"))
	assert.False(t, access.Access.Has("orders", "delete"))
	assert.True(t, access.Capabilities.FarmManagement)
	assert.True(t, access.Capabilities.Analytics)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	_, err := f.validator.Validate(ctx, "", nil)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.validator.Validate(ctx, "garbage.token.value", nil)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Token for a principal that no longer exists.
	ghost := authdomain.User{ID: f.node.Generate()}
	_, err = f.validator.Validate(ctx, f.accessToken(t, ghost, time.Now().UTC()), nil)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRechecksLiveness(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	org := f.org(t, "farmco", orgdomain.TypeFarmOperation, orgdomain.PlanFree)
	user := f.user(t, "owner@farmco.example", &org.ID)
	raw := f.accessToken(t, user, time.Now().UTC())

	require.NoError(t, f.conn.Model(&authdomain.User{}).
		Where("id = ?", user.ID).
		Update("is_active", false).Error)

	_, err := f.validator.Validate(ctx, raw, nil)
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestValidateRejectsSuspendedOrg(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	org := f.org(t, "farmco", orgdomain.TypeFarmOperation, orgdomain.PlanFree)
	user := f.user(t, "owner@farmco.example", &org.ID)
	raw := f.accessToken(t, user, time.Now().UTC())

	require.NoError(t, f.conn.Model(&orgdomain.Organization{}).
		Where("id = ?", org.ID).
		Update("is_suspended", true).Error)

	_, err := f.validator.Validate(ctx, raw, nil)
	assert.ErrorIs(t, err, ErrOrgSuspended)
}

func TestValidateHonorsLogoutRevocation(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	org := f.org(t, "farmco", orgdomain.TypeFarmOperation, orgdomain.PlanFree)
	user := f.user(t, "owner@farmco.example", &org.ID)

	issuedAt := time.Now().UTC().Add(-time.Minute)
	before := f.accessToken(t, user, issuedAt)

	require.NoError(t, f.conn.Model(&authdomain.User{}).
		Where("id = ?", user.ID).
		Update("logged_out_at", issuedAt.Add(time.Second)).Error)

	_, err := f.validator.Validate(ctx, before, nil)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A token minted after the logout instant is good again.
	after := f.accessToken(t, user, time.Now().UTC())
	_, err = f.validator.Validate(ctx, after, nil)
	assert.NoError(t, err)
}

func TestImpersonationRequiresPlatformAdmin(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	home := f.org(t, "platform", orgdomain.TypeServiceProvider, orgdomain.PlanPremium)
	target := f.org(t, "tenant", orgdomain.TypeFarmOperation, orgdomain.PlanStandard)

	mortal := f.user(t, "mortal@platform.example", &home.ID)
	_, err := f.validator.Validate(ctx, f.accessToken(t, mortal, time.Now().UTC()), &target.ID)
	assert.ErrorIs(t, err, ErrImpersonationForbidden)

	admin := f.user(t, "admin@platform.example", &home.ID)
	f.grantRole(t, admin.ID, "platform_admin", true)

	access, err := f.validator.Validate(ctx, f.accessToken(t, admin, time.Now().UTC()), &target.ID)
	require.NoError(t, err)

	assert.True(t, access.Impersonated)
	require.NotNil(t, access.OrgID)
	assert.Equal(t, target.ID, *access.OrgID)
	require.NotNil(t, access.ActorOrgID)
	assert.Equal(t, home.ID, *access.ActorOrgID)
	assert.Equal(t, orgdomain.PlanStandard, access.PlanTier)
	assert.True(t, access.Capabilities.FarmManagement)
}

func TestImpersonationRejectsSuspendedTarget(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	home := f.org(t, "platform", orgdomain.TypeServiceProvider, orgdomain.PlanPremium)
	target := f.org(t, "tenant", orgdomain.TypeFarmOperation, orgdomain.PlanStandard)
	require.NoError(t, f.conn.Model(&orgdomain.Organization{}).
		Where("id = ?", target.ID).
		Update("is_suspended", true).Error)

	admin := f.user(t, "admin@platform.example", &home.ID)
	f.grantRole(t, admin.ID, "platform_admin", true)

	_, err := f.validator.Validate(ctx, f.accessToken(t, admin, time.Now().UTC()), &target.ID)
	assert.ErrorIs(t, err, ErrOrgSuspended)
}

func TestImpersonationOwnOrgIsNotImpersonation(t *testing.T) {
	f := newValidatorFixture(t)
	ctx := context.Background()

	home := f.org(t, "farmco", orgdomain.TypeFarmOperation, orgdomain.PlanFree)
	user := f.user(t, "owner@farmco.example", &home.ID)

	access, err := f.validator.Validate(ctx, f.accessToken(t, user, time.Now().UTC()), &home.ID)
	require.NoError(t, err)
	assert.False(t, access.Impersonated)
	assert.Equal(t, home.ID, *access.OrgID)
}
