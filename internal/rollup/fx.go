package rollup

import (
	"go.uber.org/fx"

	"github.com/fluxhq/flux/internal/rollup/service"
)

var Module = fx.Module("rollup.service",
	fx.Provide(service.New),
)
