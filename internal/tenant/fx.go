package tenant

import (
	"github.com/fluxhq/flux/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(service.New),
)
