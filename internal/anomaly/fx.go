package anomaly

import (
	"go.uber.org/fx"

	"github.com/fluxhq/flux/internal/anomaly/service"
)

var Module = fx.Module("anomaly.service",
	fx.Provide(service.New),
)
