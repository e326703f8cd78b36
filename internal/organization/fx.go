package organization

import (
	"github.com/farmgate/farmgate/internal/organization/capability"
	"github.com/farmgate/farmgate/internal/organization/repository"
	"github.com/farmgate/farmgate/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.New),
	fx.Provide(func() capability.Lookup { return capability.For }),
	fx.Provide(service.New),
)
