package auth

import (
	"github.com/bwmarrin/snowflake"
	"github.com/farmgate/farmgate/internal/auth/domain"
	"github.com/farmgate/farmgate/internal/auth/password"
	"github.com/farmgate/farmgate/internal/auth/repository"
	"github.com/farmgate/farmgate/internal/auth/service"
	"github.com/farmgate/farmgate/internal/auth/token"
	"github.com/farmgate/farmgate/internal/clock"
	"github.com/farmgate/farmgate/internal/config"
	orgdomain "github.com/farmgate/farmgate/internal/organization/domain"
	"github.com/farmgate/farmgate/internal/providers/email"
	rbacdomain "github.com/farmgate/farmgate/internal/rbac/domain"
	verificationdomain "github.com/farmgate/farmgate/internal/verification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("auth.service",
	fx.Provide(password.NewArgon2),
	fx.Provide(func(cfg config.Config) (*token.Manager, error) {
		return token.NewManager(token.Config{
			AccessSecret:  []byte(cfg.AccessTokenSecret),
			RefreshSecret: []byte(cfg.RefreshTokenSecret),
			AccessTTL:     cfg.AccessTokenTTL,
			RefreshTTL:    cfg.RefreshTokenTTL,
		})
	}),
	fx.Provide(repository.New),
	fx.Provide(newService),
)

func newService(
	db *gorm.DB,
	log *zap.Logger,
	cfg config.Config,
	repo domain.Repository,
	orgSvc orgdomain.Service,
	rbacSvc rbacdomain.Service,
	verifier verificationdomain.Service,
	mailer email.Provider,
	hasher password.Hasher,
	tokens *token.Manager,
	clk clock.Clock,
	genID *snowflake.Node,
) domain.Service {
	return service.New(service.Params{
		DB:       db,
		Log:      log,
		Repo:     repo,
		OrgSvc:   orgSvc,
		RbacSvc:  rbacSvc,
		Verifier: verifier,
		Mailer:   mailer,
		Hasher:   hasher,
		Tokens:   tokens,
		Clock:    clk,
		GenID:    genID,
		BaseURL:  cfg.PublicBaseURL,
	})
}
