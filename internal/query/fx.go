package query

import (
	"go.uber.org/fx"

	"github.com/fluxhq/flux/internal/query/service"
)

var Module = fx.Module("query.service",
	fx.Provide(service.New),
	fx.Provide(service.NewEvents),
)
