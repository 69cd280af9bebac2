package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/fluxhq/flux/internal/anomaly"
	"github.com/fluxhq/flux/internal/cache"
	"github.com/fluxhq/flux/internal/clock"
	"github.com/fluxhq/flux/internal/config"
	"github.com/fluxhq/flux/internal/ingest"
	"github.com/fluxhq/flux/internal/logger"
	"github.com/fluxhq/flux/internal/metricdef"
	"github.com/fluxhq/flux/internal/migration"
	"github.com/fluxhq/flux/internal/observability"
	"github.com/fluxhq/flux/internal/query"
	"github.com/fluxhq/flux/internal/ratelimit"
	"github.com/fluxhq/flux/internal/retention"
	"github.com/fluxhq/flux/internal/rollup"
	"github.com/fluxhq/flux/internal/scheduler"
	"github.com/fluxhq/flux/internal/server"
	"github.com/fluxhq/flux/internal/tenant"
	"github.com/fluxhq/flux/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		cache.Module,
		tenant.Module,
		metricdef.Module,
		ingest.Module,
		query.Module,
		rollup.Module,
		anomaly.Module,
		retention.Module,
		ratelimit.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
