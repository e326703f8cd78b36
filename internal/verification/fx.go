package verification

import (
	"github.com/farmgate/farmgate/internal/config"
	"github.com/farmgate/farmgate/internal/verification/repository"
	"github.com/farmgate/farmgate/internal/verification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("verification.service",
	fx.Provide(repository.New),
	fx.Provide(func(cfg config.Config) service.Config {
		return service.Config{
			ResetTTL:        cfg.ResetTokenTTL,
			VerificationTTL: cfg.VerificationTokenTTL,
			HourlyCap:       cfg.VerificationHourlyCap,
		}
	}),
	fx.Provide(service.New),
)
