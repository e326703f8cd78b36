// Package seed provisions the permission catalog, system roles and the
// optional bootstrap platform administrator. Seeding is idempotent; it runs
// on every startup after migration.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/farmgate/farmgate/internal/auth/domain"
	"github.com/farmgate/farmgate/internal/auth/password"
	rbacdomain "github.com/farmgate/farmgate/internal/rbac/domain"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleOrgAdmin      = "org_admin"
	RoleFarmManager   = "farm_manager"
	RoleTrader        = "trader"
	RoleViewer        = "viewer"
	RolePlatformAdmin = "platform_admin"
)

var resources = []string{
	"farms",
	"commodities",
	"orders",
	"listings",
	"reports",
	"media",
	"users",
	"roles",
}

var actions = []string{"read", "create", "update", "delete"}

// rolePermissions maps each system role to the "resource:action" pairs it
// grants. org_admin and platform_admin get the full catalog.
var rolePermissions = map[string][]string{
	RoleFarmManager: {
		"farms:read", "farms:update",
		"commodities:read", "commodities:create", "commodities:update",
		"orders:read", "orders:create",
		"media:read", "media:create",
		"reports:read",
	},
	RoleTrader: {
		"commodities:read",
		"orders:read", "orders:create", "orders:update",
		"listings:read", "listings:create", "listings:update",
		"reports:read",
	},
	RoleViewer: {
		"farms:read",
		"commodities:read",
		"orders:read",
		"listings:read",
		"reports:read",
		"media:read",
	},
}

var roleScopes = map[string]rbacdomain.RoleScope{
	RoleOrgAdmin:      rbacdomain.ScopeOrganization,
	RoleFarmManager:   rbacdomain.ScopeFarm,
	RoleTrader:        rbacdomain.ScopeOrganization,
	RoleViewer:        rbacdomain.ScopeOrganization,
	RolePlatformAdmin: rbacdomain.ScopeOrganization,
}

// Ensure seeds the catalog, roles and links inside one transaction.
func Ensure(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		perms, err := ensurePermissions(ctx, tx, node)
		if err != nil {
			return err
		}
		return ensureRoles(ctx, tx, node, perms)
	})
}

// EnsureBootstrapAdmin creates the platform administrator named in config.
// No-op when unconfigured or when the user already exists.
func EnsureBootstrapAdmin(db *gorm.DB, hasher password.Hasher, email, plaintext string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || plaintext == "" {
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user authdomain.User
		err := tx.WithContext(ctx).Where("email = ?", email).First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := hasher.Hash(plaintext)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		user = authdomain.User{
			ID:              node.Generate(),
			ExternalID:      uuid.NewString(),
			Email:           email,
			DisplayName:     "Platform Admin",
			PasswordHash:    &hashed,
			IsActive:        true,
			EmailVerified:   true,
			IsPlatformAdmin: true,
			Metadata:        datatypes.JSONMap{},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}

		var role rbacdomain.Role
		if err := tx.WithContext(ctx).Where("name = ? AND org_id IS NULL", RolePlatformAdmin).First(&role).Error; err != nil {
			return err
		}

		assignment := rbacdomain.UserRoleAssignment{
			ID:        node.Generate(),
			UserID:    user.ID,
			RoleID:    role.ID,
			IsActive:  true,
			CreatedAt: now,
		}
		return tx.WithContext(ctx).Create(&assignment).Error
	})
}

func ensurePermissions(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (map[string]rbacdomain.Permission, error) {
	perms := make(map[string]rbacdomain.Permission, len(resources)*len(actions))

	for _, resource := range resources {
		for _, action := range actions {
			var perm rbacdomain.Permission
			err := tx.WithContext(ctx).
				Where("resource = ? AND action = ?", resource, action).
				First(&perm).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				perm = rbacdomain.Permission{
					ID:       node.Generate(),
					Resource: resource,
					Action:   action,
				}
				err = tx.WithContext(ctx).Create(&perm).Error
			}
			if err != nil {
				return nil, err
			}
			perms[resource+":"+action] = perm
		}
	}

	return perms, nil
}

func ensureRoles(ctx context.Context, tx *gorm.DB, node *snowflake.Node, perms map[string]rbacdomain.Permission) error {
	fullCatalog := make([]string, 0, len(perms))
	for key := range perms {
		fullCatalog = append(fullCatalog, key)
	}

	for _, name := range []string{RoleOrgAdmin, RoleFarmManager, RoleTrader, RoleViewer, RolePlatformAdmin} {
		var role rbacdomain.Role
		err := tx.WithContext(ctx).
			Where("name = ? AND org_id IS NULL", name).
			First(&role).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			role = rbacdomain.Role{
				ID:              node.Generate(),
				Name:            name,
				Scope:           roleScopes[name],
				IsSystem:        true,
				IsPlatformAdmin: name == RolePlatformAdmin,
				CreatedAt:       time.Now().UTC(),
			}
			err = tx.WithContext(ctx).Create(&role).Error
		}
		if err != nil {
			return err
		}

		granted := rolePermissions[name]
		if name == RoleOrgAdmin || name == RolePlatformAdmin {
			granted = fullCatalog
		}
		if err := ensureRoleLinks(ctx, tx, node, role, granted, perms); err != nil {
			return err
		}
	}

	return nil
}

func ensureRoleLinks(ctx context.Context, tx *gorm.DB, node *snowflake.Node, role rbacdomain.Role, granted []string, perms map[string]rbacdomain.Permission) error {
	for _, key := range granted {
		perm, ok := perms[key]
		if !ok {
			continue
		}

		var link rbacdomain.RolePermission
		err := tx.WithContext(ctx).
			Where("role_id = ? AND permission_id = ?", role.ID, perm.ID).
			First(&link).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		link = rbacdomain.RolePermission{
			ID:           node.Generate(),
			RoleID:       role.ID,
			PermissionID: perm.ID,
			Granted:      true,
		}
		if err := tx.WithContext(ctx).Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}
