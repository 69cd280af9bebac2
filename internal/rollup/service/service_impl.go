package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fluxhq/flux/internal/clock"
	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	"github.com/fluxhq/flux/internal/rollup/domain"
	"github.com/fluxhq/flux/pkg/stats"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("rollup.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *service) Aggregate(ctx context.Context, projectID snowflake.ID, metric, bucketSize string, bucketTime time.Time) error {
	d, ok := domain.BucketDuration(bucketSize)
	if !ok {
		return domain.ErrInvalidBucketSize
	}
	bucketTime = bucketTime.Truncate(d)

	var points []ingestdomain.MetricPoint
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND name = ? AND timestamp >= ? AND timestamp < ?",
			projectID, metric, bucketTime, bucketTime.Add(d)).
		Find(&points).Error
	if err != nil {
		return err
	}

	values := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Value != nil {
			values = append(values, *p.Value)
		}
	}
	if len(values) == 0 {
		return nil
	}

	sort.Float64s(values)
	sum := 0.0
	for _, v := range values {
		sum += v
	}

	row := domain.AggregatedMetric{
		ID:          s.genID.Generate(),
		ProjectID:   projectID,
		Name:        metric,
		BucketSize:  bucketSize,
		BucketTime:  bucketTime,
		SampleCount: int64(len(values)),
		Sum:         sum,
		Avg:         sum / float64(len(values)),
		Min:         values[0],
		Max:         values[len(values)-1],
	}
	if len(values) >= domain.PercentileMinSamples {
		p50 := stats.PercentileSorted(values, 0.50)
		p95 := stats.PercentileSorted(values, 0.95)
		p99 := stats.PercentileSorted(values, 0.99)
		row.P50 = &p50
		row.P95 = &p95
		row.P99 = &p99
	}

	// Re-aggregating an existing bucket replaces its numbers in place.
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "project_id"}, {Name: "name"},
				{Name: "bucket_size"}, {Name: "bucket_time"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"sample_count", "sum", "avg", "min", "max",
				"p50", "p95", "p99", "updated_at",
			}),
		}).
		Create(&row).Error
}

func (s *service) AggregateRecent(ctx context.Context, projectID snowflake.ID, bucketSize string) error {
	d, ok := domain.BucketDuration(bucketSize)
	if !ok {
		return domain.ErrInvalidBucketSize
	}

	// Most recently completed full bucket. The one still open is left for the
	// next run so its numbers settle first.
	bucketTime := s.clock.Now().Truncate(d).Add(-d)

	var names []string
	err := s.db.WithContext(ctx).
		Model(&ingestdomain.MetricPoint{}).
		Distinct("name").
		Where("project_id = ? AND timestamp >= ? AND timestamp < ?",
			projectID, bucketTime, bucketTime.Add(d)).
		Pluck("name", &names).Error
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range names {
		if err := s.Aggregate(ctx, projectID, name, bucketSize, bucketTime); err != nil {
			errs = append(errs, fmt.Errorf("aggregate %s %s %s: %w", name, bucketSize, bucketTime.Format(time.RFC3339), err))
		}
	}
	return errors.Join(errs...)
}

func (s *service) Backfill(ctx context.Context, projectID snowflake.ID, metric, bucketSize string, from, to time.Time) error {
	d, ok := domain.BucketDuration(bucketSize)
	if !ok {
		return domain.ErrInvalidBucketSize
	}
	if !from.Before(to) {
		return domain.ErrInvalidWindow
	}

	var errs []error
	for t := from.Truncate(d); t.Before(to); t = t.Add(d) {
		if err := s.Aggregate(ctx, projectID, metric, bucketSize, t); err != nil {
			s.log.Warn("backfill bucket failed",
				zap.String("metric", metric),
				zap.String("bucket_size", bucketSize),
				zap.Time("bucket_time", t),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("bucket %s: %w", t.Format(time.RFC3339), err))
		}
	}
	return errors.Join(errs...)
}

func (s *service) Read(ctx context.Context, projectID snowflake.ID, metric, bucketSize string, from, to time.Time) ([]domain.AggregatedMetric, error) {
	if _, ok := domain.BucketDuration(bucketSize); !ok {
		return nil, domain.ErrInvalidBucketSize
	}

	var rows []domain.AggregatedMetric
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND name = ? AND bucket_size = ? AND bucket_time >= ? AND bucket_time < ?",
			projectID, metric, bucketSize, from, to).
		Order("bucket_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
