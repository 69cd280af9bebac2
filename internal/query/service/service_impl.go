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

	"github.com/fluxhq/flux/internal/clock"
	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	"github.com/fluxhq/flux/internal/query/domain"
	"github.com/fluxhq/flux/pkg/stats"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("query.service"),
		clock: p.Clock,
	}
}

func (s *service) Series(ctx context.Context, spec domain.Spec) (*domain.SeriesResult, error) {
	spec, err := spec.Normalize(s.clock.Now())
	if err != nil {
		return nil, err
	}

	points, err := s.fetch(ctx, spec)
	if err != nil {
		return nil, err
	}

	bucket, _ := domain.BucketDuration(spec.BucketSize)
	grouped := make(map[time.Time][]float64)
	last := make(map[time.Time]float64)
	for _, p := range points {
		t := p.Timestamp.Truncate(bucket)
		if p.Value != nil {
			grouped[t] = append(grouped[t], *p.Value)
			last[t] = *p.Value
		} else if spec.Aggregation == domain.AggCount {
			// Set points carry no numeric value but still count.
			grouped[t] = append(grouped[t], 0)
		}
	}

	result := &domain.SeriesResult{
		Metric:      spec.Metric,
		BucketSize:  spec.BucketSize,
		Aggregation: spec.Aggregation,
		From:        spec.From,
		To:          spec.To,
	}
	// Emit every bucket in the window so gaps show up as nulls.
	for t := spec.From.Truncate(bucket); t.Before(spec.To); t = t.Add(bucket) {
		values, ok := grouped[t]
		point := domain.SeriesPoint{Time: t}
		if ok {
			v := aggregate(spec.Aggregation, values, last[t])
			point.Value = &v
		}
		result.Points = append(result.Points, point)
	}
	return result, nil
}

func (s *service) Stats(ctx context.Context, spec domain.Spec) (*domain.StatsResult, error) {
	spec, err := spec.Normalize(s.clock.Now())
	if err != nil {
		return nil, err
	}

	points, err := s.fetch(ctx, spec)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Value != nil {
			values = append(values, *p.Value)
		}
	}

	result := &domain.StatsResult{
		Metric: spec.Metric,
		Count:  int64(len(values)),
	}
	if len(values) == 0 {
		return result, nil
	}

	sort.Float64s(values)
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	result.Sum = round(sum)
	result.Avg = round(sum / float64(len(values)))
	result.Min = round(values[0])
	result.Max = round(values[len(values)-1])
	result.P50 = round(stats.PercentileSorted(values, 0.50))
	result.P95 = round(stats.PercentileSorted(values, 0.95))
	result.P99 = round(stats.PercentileSorted(values, 0.99))
	return result, nil
}

func (s *service) Latest(ctx context.Context, projectID snowflake.ID, metric string) (*domain.LatestResult, error) {
	if metric == "" {
		return nil, domain.ErrMissingMetric
	}

	var point ingestdomain.MetricPoint
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND name = ?", projectID, metric).
		Order("timestamp DESC").
		First(&point).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := &domain.LatestResult{
		Metric:    metric,
		Timestamp: point.Timestamp,
	}
	if point.Value != nil {
		result.Value = round(*point.Value)
	}
	return result, nil
}

func (s *service) GroupByTag(ctx context.Context, spec domain.Spec, tagKey string) ([]domain.GroupBucket, error) {
	if tagKey == "" {
		return nil, domain.ErrMissingTagKey
	}
	spec, err := spec.Normalize(s.clock.Now())
	if err != nil {
		return nil, err
	}

	points, err := s.fetch(ctx, spec)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]float64)
	last := make(map[string]float64)
	for _, p := range points {
		key, ok := tagValue(p, tagKey)
		if !ok {
			continue
		}
		if p.Value != nil {
			grouped[key] = append(grouped[key], *p.Value)
			last[key] = *p.Value
		} else if spec.Aggregation == domain.AggCount {
			grouped[key] = append(grouped[key], 0)
		}
	}

	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	buckets := make([]domain.GroupBucket, 0, len(keys))
	for _, key := range keys {
		values := grouped[key]
		v := aggregate(spec.Aggregation, values, last[key])
		buckets = append(buckets, domain.GroupBucket{
			Key:   key,
			Count: int64(len(values)),
			Value: &v,
		})
	}
	return buckets, nil
}

// fetch pulls raw points in the window. Tag equality is applied here rather
// than in SQL so the same path works on both supported dialects.
func (s *service) fetch(ctx context.Context, spec domain.Spec) ([]ingestdomain.MetricPoint, error) {
	var points []ingestdomain.MetricPoint
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND name = ? AND timestamp >= ? AND timestamp < ?",
			spec.ProjectID, spec.Metric, spec.From, spec.To).
		Order("timestamp ASC").
		Find(&points).Error
	if err != nil {
		return nil, err
	}
	if len(spec.Tags) == 0 {
		return points, nil
	}

	filtered := points[:0]
	for _, p := range points {
		if matchesTags(p, spec.Tags) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func matchesTags(p ingestdomain.MetricPoint, want map[string]string) bool {
	for key, value := range want {
		got, ok := tagValue(p, key)
		if !ok || got != value {
			return false
		}
	}
	return true
}

func tagValue(p ingestdomain.MetricPoint, key string) (string, bool) {
	if p.Tags == nil {
		return "", false
	}
	raw, ok := p.Tags[key]
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

func aggregate(agg string, values []float64, last float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch agg {
	case domain.AggCount:
		return float64(len(values))
	case domain.AggSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return stats.Round4(sum)
	case domain.AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return stats.Round4(min)
	case domain.AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return stats.Round4(max)
	case domain.AggP50:
		return stats.Round4(stats.Percentile(values, 0.50))
	case domain.AggP95:
		return stats.Round4(stats.Percentile(values, 0.95))
	case domain.AggP99:
		return stats.Round4(stats.Percentile(values, 0.99))
	case domain.AggLast:
		return stats.Round4(last)
	default: // avg
		return stats.Round4(stats.Mean(values))
	}
}

func round(v float64) *float64 {
	r := stats.Round4(v)
	return &r
}
