// Package migration applies the schema and seeds baseline data on startup.
package migration

import (
	authdomain "github.com/farmgate/farmgate/internal/auth/domain"
	"github.com/farmgate/farmgate/internal/auth/password"
	"github.com/farmgate/farmgate/internal/config"
	orgdomain "github.com/farmgate/farmgate/internal/organization/domain"
	rbacdomain "github.com/farmgate/farmgate/internal/rbac/domain"
	"github.com/farmgate/farmgate/internal/seed"
	verificationdomain "github.com/farmgate/farmgate/internal/verification/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Models is the full schema, in dependency order.
func Models() []any {
	return []any{
		&orgdomain.Organization{},
		&authdomain.User{},
		&rbacdomain.Permission{},
		&rbacdomain.Role{},
		&rbacdomain.RolePermission{},
		&rbacdomain.UserRoleAssignment{},
		&verificationdomain.OneTimeToken{},
	}
}

// Run migrates the schema and seeds the permission catalog and system roles.
func Run(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return err
	}
	return seed.Ensure(conn)
}

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, hasher password.Hasher) error {
		if err := Run(conn); err != nil {
			return err
		}
		return seed.EnsureBootstrapAdmin(conn, hasher, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
	}),
)
