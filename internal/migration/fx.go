package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	anomalydomain "github.com/fluxhq/flux/internal/anomaly/domain"
	"github.com/fluxhq/flux/internal/config"
	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	metricdefdomain "github.com/fluxhq/flux/internal/metricdef/domain"
	rollupdomain "github.com/fluxhq/flux/internal/rollup/domain"
	tenantdomain "github.com/fluxhq/flux/internal/tenant/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite deployments (and tests) lean on gorm's schema sync
			// instead of versioned SQL.
			return conn.AutoMigrate(
				&tenantdomain.Project{},
				&metricdefdomain.MetricDefinition{},
				&ingestdomain.MetricPoint{},
				&ingestdomain.Event{},
				&rollupdomain.AggregatedMetric{},
				&anomalydomain.Anomaly{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
