package rbac

import (
	"github.com/farmgate/farmgate/internal/rbac/domain"
	"github.com/farmgate/farmgate/internal/rbac/repository"
	"github.com/farmgate/farmgate/internal/rbac/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rbac.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	fx.Provide(func(svc domain.Service) domain.Resolver { return svc }),
)
