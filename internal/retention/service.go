// Package retention deletes data past its keep window: raw points and
// events per tenant policy, anomalies after a fixed 30 days.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	anomalydomain "github.com/fluxhq/flux/internal/anomaly/domain"
	"github.com/fluxhq/flux/internal/clock"
	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	rollupdomain "github.com/fluxhq/flux/internal/rollup/domain"
	tenantdomain "github.com/fluxhq/flux/internal/tenant/domain"
)

// AnomalyKeepDays is how long anomaly records are kept, acknowledged or not.
const AnomalyKeepDays = 30

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Tenants tenantdomain.Service
}

// Service sweeps expired rows. Deletes are hard; there is no archival tier.
type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	tenants tenantdomain.Service
}

func New(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("retention.service"),
		clock:   p.Clock,
		tenants: p.Tenants,
	}
}

// Sweep runs retention for every project. A failing project is logged and
// skipped so one bad tenant cannot stall the rest.
func (s *Service) Sweep(ctx context.Context) error {
	projects, err := s.tenants.List(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, project := range projects {
		if err := s.SweepProject(ctx, &project); err != nil {
			s.log.Warn("retention sweep failed",
				zap.String("project_id", project.ID.String()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("project %s: %w", project.ID, err))
		}
	}
	return errors.Join(errs...)
}

// SweepProject deletes one project's expired rows.
func (s *Service) SweepProject(ctx context.Context, project *tenantdomain.Project) error {
	now := s.clock.Now()

	retentionDays := project.RetentionDays
	if retentionDays <= 0 {
		retentionDays = tenantdomain.DefaultRetentionDays
	}
	rawCutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	anomalyCutoff := now.Add(-AnomalyKeepDays * 24 * time.Hour)

	var errs []error

	res := s.db.WithContext(ctx).
		Where("project_id = ? AND timestamp < ?", project.ID, rawCutoff).
		Delete(&ingestdomain.MetricPoint{})
	if res.Error != nil {
		errs = append(errs, fmt.Errorf("metric points: %w", res.Error))
	} else if res.RowsAffected > 0 {
		s.log.Info("expired metric points deleted",
			zap.String("project_id", project.ID.String()),
			zap.Int64("rows", res.RowsAffected),
		)
	}

	res = s.db.WithContext(ctx).
		Where("project_id = ? AND timestamp < ?", project.ID, rawCutoff).
		Delete(&ingestdomain.Event{})
	if res.Error != nil {
		errs = append(errs, fmt.Errorf("events: %w", res.Error))
	} else if res.RowsAffected > 0 {
		s.log.Info("expired events deleted",
			zap.String("project_id", project.ID.String()),
			zap.Int64("rows", res.RowsAffected),
		)
	}

	res = s.db.WithContext(ctx).
		Where("project_id = ? AND bucket_time < ?", project.ID, rawCutoff).
		Delete(&rollupdomain.AggregatedMetric{})
	if res.Error != nil {
		errs = append(errs, fmt.Errorf("rollups: %w", res.Error))
	}

	res = s.db.WithContext(ctx).
		Where("project_id = ? AND detected_at < ?", project.ID, anomalyCutoff).
		Delete(&anomalydomain.Anomaly{})
	if res.Error != nil {
		errs = append(errs, fmt.Errorf("anomalies: %w", res.Error))
	}

	return errors.Join(errs...)
}

var Module = fx.Module("retention.service",
	fx.Provide(New),
)
