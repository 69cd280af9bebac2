package metricdef

import (
	"go.uber.org/fx"

	"github.com/fluxhq/flux/internal/metricdef/service"
)

var Module = fx.Module("metricdef.service",
	fx.Provide(service.New),
)
