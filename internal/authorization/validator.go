// Package authorization turns a bearer token into a request-scoped access
// context. Token signature and expiry are checked statelessly; account
// liveness, organization standing, and logout revocation are re-checked
// against storage on every call so a revoked principal cannot coast on a
// still-valid token.
package authorization

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/farmgate/farmgate/internal/auth/domain"
	"github.com/farmgate/farmgate/internal/auth/token"
	"github.com/farmgate/farmgate/internal/organization/capability"
	orgdomain "github.com/farmgate/farmgate/internal/organization/domain"
	rbacdomain "github.com/farmgate/farmgate/internal/rbac/domain"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken           = errors.New("invalid or expired token")
	ErrAccountDisabled        = errors.New("account disabled")
	ErrOrgSuspended           = errors.New("organization suspended")
	ErrImpersonationForbidden = errors.New("impersonation requires platform admin")
)

// Context is the validated principal attached to a request.
type Context struct {
	UserID snowflake.ID
	// OrgID is the effective tenant for the request. Under impersonation it
	// is the target organization, not the principal's own.
	OrgID *snowflake.ID
	// ActorOrgID is the principal's real organization. Audit records must
	// use this, never the impersonated one.
	ActorOrgID      *snowflake.ID
	PlanTier        orgdomain.PlanTier
	PlatformAdmin   bool
	Impersonated    bool
	EmailVerified   bool
	Access          *rbacdomain.ResolvedAccess
	Capabilities    capability.Set
	TokenID         string
	TokenIssuedAt   time.Time
	TokenExpiresAt  time.Time
}

type Validator struct {
	log    *zap.Logger
	tokens *token.Manager
	users  authdomain.Repository
	orgs   orgdomain.Service
	rbac   rbacdomain.Resolver
	caps   capability.Lookup
}

func NewValidator(
	log *zap.Logger,
	tokens *token.Manager,
	users authdomain.Repository,
	orgs orgdomain.Service,
	rbac rbacdomain.Resolver,
	caps capability.Lookup,
) *Validator {
	return &Validator{
		log:    log.Named("authorization.validator"),
		tokens: tokens,
		users:  users,
		orgs:   orgs,
		rbac:   rbac,
		caps:   caps,
	}
}

// Validate checks the token and re-derives the principal's standing. If
// impersonateOrgID is set, the principal must be a platform admin and the
// target organization must be in good standing.
func (v *Validator) Validate(ctx context.Context, rawAccessToken string, impersonateOrgID *snowflake.ID) (*Context, error) {
	claims, err := v.tokens.ParseAccess(rawAccessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	userID, err := snowflake.ParseString(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := v.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, authdomain.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	issuedAt := time.Time{}
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	// Logout stamps a revocation instant; any token minted before it is dead.
	if user.LoggedOutAt != nil && !issuedAt.After(*user.LoggedOutAt) {
		return nil, ErrInvalidToken
	}

	access, err := v.rbac.Resolve(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	out := &Context{
		UserID:        user.ID,
		OrgID:         user.OrgID,
		ActorOrgID:    user.OrgID,
		PlatformAdmin: access.PlatformAdmin || user.IsPlatformAdmin,
		EmailVerified: user.EmailVerified,
		Access:        access,
		TokenID:       claims.ID,
		TokenIssuedAt: issuedAt,
	}
	if claims.ExpiresAt != nil {
		out.TokenExpiresAt = claims.ExpiresAt.Time
	}

	var org *orgdomain.Organization
	if user.OrgID != nil {
		org, err = v.orgs.RequireActive(ctx, *user.OrgID)
		if err != nil {
			if errors.Is(err, orgdomain.ErrSuspended) || errors.Is(err, orgdomain.ErrInactive) {
				return nil, ErrOrgSuspended
			}
			return nil, err
		}
		out.PlanTier = org.PlanTier
		out.Capabilities = v.caps(org.Type, org.PlanTier)
	}

	if impersonateOrgID != nil && (user.OrgID == nil || *impersonateOrgID != *user.OrgID) {
		if err := v.impersonate(ctx, out, *impersonateOrgID); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// impersonate switches the effective tenant onto the target organization.
// The resolved permission set stays the principal's own; platform-admin
// roles carry the grants needed for cross-tenant work.
func (v *Validator) impersonate(ctx context.Context, out *Context, targetOrgID snowflake.ID) error {
	if !out.PlatformAdmin {
		v.log.Warn("impersonation denied",
			zap.String("user_id", out.UserID.String()),
			zap.String("target_org_id", targetOrgID.String()),
		)
		return ErrImpersonationForbidden
	}

	org, err := v.orgs.RequireActive(ctx, targetOrgID)
	if err != nil {
		if errors.Is(err, orgdomain.ErrSuspended) || errors.Is(err, orgdomain.ErrInactive) {
			return ErrOrgSuspended
		}
		return err
	}

	out.OrgID = &org.ID
	out.PlanTier = org.PlanTier
	out.Capabilities = v.caps(org.Type, org.PlanTier)
	out.Impersonated = true

	v.log.Info("impersonation granted",
		zap.String("user_id", out.UserID.String()),
		zap.String("target_org_id", targetOrgID.String()),
	)
	return nil
}
