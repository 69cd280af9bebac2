package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fluxhq/flux/internal/anomaly/domain"
	"github.com/fluxhq/flux/internal/clock"
	"github.com/fluxhq/flux/internal/config"
	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	"github.com/fluxhq/flux/pkg/stats"
)

// baselineOffset is how far back the comparison window sits: the same hour
// one day earlier.
const (
	detectionWindow = time.Hour
	baselineOffset  = 24 * time.Hour
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Thresholds *config.ThresholdHolder
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	thresholds *config.ThresholdHolder
}

func New(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("anomaly.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		thresholds: p.Thresholds,
	}
}

func (s *service) DetectMetric(ctx context.Context, projectID snowflake.ID, metric string) (*domain.Anomaly, error) {
	if metric == "" {
		return nil, domain.ErrMissingSource
	}

	now := s.clock.Now()
	periodStart := now.Add(-detectionWindow)
	actual, actualN, err := s.metricMean(ctx, projectID, metric, periodStart, now)
	if err != nil {
		return nil, err
	}
	if actualN == 0 {
		return nil, nil
	}
	expected, expectedN, err := s.metricMean(ctx, projectID, metric,
		now.Add(-baselineOffset-detectionWindow), now.Add(-baselineOffset))
	if err != nil {
		return nil, err
	}
	if expectedN == 0 {
		return nil, nil
	}

	threshold := s.thresholds.Get().ThresholdFor(metric)
	assessment := domain.EvaluateDeviation(actual, expected, threshold)
	if assessment == nil {
		return nil, nil
	}

	return s.store(ctx, projectID, domain.SourceMetric, metric, now, assessment, datatypes.JSONMap{
		"threshold_pct":  threshold,
		"period_start":   periodStart.Format(time.RFC3339),
		"sample_count":   actualN,
		"baseline_count": expectedN,
	})
}

func (s *service) DetectEvent(ctx context.Context, projectID snowflake.ID, event string) (*domain.Anomaly, error) {
	if event == "" {
		return nil, domain.ErrMissingSource
	}

	now := s.clock.Now()
	periodStart := now.Add(-detectionWindow)
	current, err := s.eventCount(ctx, projectID, event, periodStart, now)
	if err != nil {
		return nil, err
	}
	// An event with no recent occurrences has nothing to assess; without
	// this guard every dormant name would re-report a total drop each tick.
	if current == 0 {
		return nil, nil
	}
	baseline, err := s.eventCount(ctx, projectID, event,
		now.Add(-baselineOffset-detectionWindow), now.Add(-baselineOffset))
	if err != nil {
		return nil, err
	}

	assessment := domain.EvaluateRatio(float64(current), float64(baseline))
	if assessment == nil {
		return nil, nil
	}

	return s.store(ctx, projectID, domain.SourceEvent, event, now, assessment, datatypes.JSONMap{
		"period_start": periodStart.Format(time.RFC3339),
	})
}

func (s *service) DetectTrend(ctx context.Context, projectID snowflake.ID, metric string) (*domain.Anomaly, error) {
	if metric == "" {
		return nil, domain.ErrMissingSource
	}

	now := s.clock.Now()
	today := now.Truncate(24 * time.Hour)

	// Daily means for the trailing week, oldest first, excluding the
	// still-open current day.
	means := make([]*float64, 0, domain.TrendDays)
	for i := domain.TrendDays; i >= 1; i-- {
		start := today.Add(-time.Duration(i) * 24 * time.Hour)
		mean, n, err := s.metricMean(ctx, projectID, metric, start, start.Add(24*time.Hour))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			means = append(means, nil)
			continue
		}
		m := mean
		means = append(means, &m)
	}

	assessment := domain.EvaluateTrend(means)
	if assessment == nil {
		return nil, nil
	}

	series := make([]any, len(assessment.DailySeries))
	for i, v := range assessment.DailySeries {
		if v != nil {
			series[i] = stats.Round4(*v)
		}
	}
	return s.store(ctx, projectID, domain.SourceMetric, metric, now, assessment, datatypes.JSONMap{
		"direction":   assessment.Direction,
		"daily_means": series,
		"days":        domain.TrendDays,
	})
}

func (s *service) List(ctx context.Context, projectID snowflake.ID, filter domain.ListFilter) ([]domain.Anomaly, error) {
	page := filter.Pagination.Clamp()

	q := s.db.WithContext(ctx).
		Where("project_id = ?", projectID)
	if filter.AnomalyType != "" {
		q = q.Where("anomaly_type = ?", filter.AnomalyType)
	}
	if filter.Severity != "" {
		q = q.Where("severity = ?", filter.Severity)
	}
	if filter.SourceName != "" {
		q = q.Where("source_name = ?", filter.SourceName)
	}
	if filter.Acknowledged != nil {
		q = q.Where("acknowledged = ?", *filter.Acknowledged)
	}
	if !filter.Since.IsZero() {
		q = q.Where("detected_at >= ?", filter.Since)
	}

	var anomalies []domain.Anomaly
	err := q.Order("detected_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&anomalies).Error
	if err != nil {
		return nil, err
	}
	return anomalies, nil
}

func (s *service) Get(ctx context.Context, projectID, id snowflake.ID) (*domain.Anomaly, error) {
	var anomaly domain.Anomaly
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND id = ?", projectID, id).
		First(&anomaly).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &anomaly, nil
}

func (s *service) Acknowledge(ctx context.Context, projectID, id snowflake.ID, by string) (*domain.Anomaly, error) {
	now := s.clock.Now()
	// Conditional update keeps the first acknowledgement's actor and time.
	err := s.db.WithContext(ctx).
		Model(&domain.Anomaly{}).
		Where("project_id = ? AND id = ? AND acknowledged = ?", projectID, id, false).
		Updates(map[string]any{
			"acknowledged":    true,
			"acknowledged_at": now,
			"acknowledged_by": by,
		}).Error
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, projectID, id)
}

func (s *service) store(ctx context.Context, projectID snowflake.ID, source, sourceName string, now time.Time, a *domain.Assessment, detail datatypes.JSONMap) (*domain.Anomaly, error) {
	anomaly := domain.Anomaly{
		ID:            s.genID.Generate(),
		ProjectID:     projectID,
		Source:        source,
		SourceName:    sourceName,
		AnomalyType:   a.Type,
		Severity:      a.Severity,
		DeviationPct:  stats.Round4(a.DeviationPct),
		ExpectedValue: stats.Round4(a.Expected),
		ActualValue:   stats.Round4(a.Actual),
		Context:       detail,
		DetectedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&anomaly).Error; err != nil {
		return nil, err
	}

	s.log.Info("anomaly detected",
		zap.String("project_id", projectID.String()),
		zap.String("anomaly_type", anomaly.AnomalyType),
		zap.String("source", sourceName),
		zap.String("severity", anomaly.Severity),
		zap.Float64("deviation_pct", anomaly.DeviationPct),
	)
	return &anomaly, nil
}

func (s *service) metricMean(ctx context.Context, projectID snowflake.ID, metric string, from, to time.Time) (float64, int, error) {
	var points []ingestdomain.MetricPoint
	err := s.db.WithContext(ctx).
		Select("value").
		Where("project_id = ? AND name = ? AND timestamp >= ? AND timestamp < ?",
			projectID, metric, from, to).
		Find(&points).Error
	if err != nil {
		return 0, 0, err
	}

	values := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Value != nil {
			values = append(values, *p.Value)
		}
	}
	if len(values) == 0 {
		return 0, 0, nil
	}
	return stats.Mean(values), len(values), nil
}

func (s *service) eventCount(ctx context.Context, projectID snowflake.ID, event string, from, to time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&ingestdomain.Event{}).
		Where("project_id = ? AND name = ? AND timestamp >= ? AND timestamp < ?",
			projectID, event, from, to).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
