// Package scheduler drives the background pipeline: rollup aggregation,
// anomaly detection and retention sweeps, on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	anomalydomain "github.com/fluxhq/flux/internal/anomaly/domain"
	"github.com/fluxhq/flux/internal/clock"
	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	metricdefdomain "github.com/fluxhq/flux/internal/metricdef/domain"
	obsmetrics "github.com/fluxhq/flux/internal/observability/metrics"
	"github.com/fluxhq/flux/internal/retention"
	rollupdomain "github.com/fluxhq/flux/internal/rollup/domain"
	tenantdomain "github.com/fluxhq/flux/internal/tenant/domain"
)

var ErrInvalidConfig = errors.New("scheduler requires db, log, clock and services")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	TenantSvc    tenantdomain.Service
	MetricDefSvc metricdefdomain.Service
	RollupSvc    rollupdomain.Service
	AnomalySvc   anomalydomain.Service
	RetentionSvc *retention.Service
	Metrics      *obsmetrics.Metrics `optional:"true"`
	Config       Config              `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	tenantSvc    tenantdomain.Service
	metricDefSvc metricdefdomain.Service
	rollupSvc    rollupdomain.Service
	anomalySvc   anomalydomain.Service
	retentionSvc *retention.Service
	metrics      *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.TenantSvc == nil ||
		p.MetricDefSvc == nil || p.RollupSvc == nil || p.AnomalySvc == nil || p.RetentionSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		tenantSvc:    p.TenantSvc,
		metricDefSvc: p.MetricDefSvc,
		rollupSvc:    p.RollupSvc,
		anomalySvc:   p.AnomalySvc,
		retentionSvc: p.RetentionSvc,
		metrics:      p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout: log it, count it, keep the loop alive.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"rollup_recent", s.isJobEnabled("rollup_recent"), func(ctx context.Context) error {
			return s.runJob(ctx, "rollup_recent", s.cfg.RollupTimeout, s.RollupRecentJob)
		}},
		{"anomaly_detection", s.isJobEnabled("anomaly_detection"), func(ctx context.Context) error {
			return s.runJob(ctx, "anomaly_detection", s.cfg.DetectionTimeout, s.AnomalyDetectionJob)
		}},
		{"retention_sweep", s.isJobEnabled("retention_sweep"), func(ctx context.Context) error {
			return s.runJob(ctx, "retention_sweep", s.cfg.RetentionTimeout, s.RetentionSweepJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty allowlist enables everything (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// RollupRecentJob materializes the freshest buckets for every project. A
// failing project is recorded and skipped.
func (s *Scheduler) RollupRecentJob(ctx context.Context) error {
	projects, err := s.tenantSvc.List(ctx)
	if err != nil {
		return err
	}

	var jobErr error
	for _, project := range projects {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		failed := false
		for _, size := range rollupdomain.RollupBucketSizes {
			if err := s.rollupSvc.AggregateRecent(ctx, project.ID, size); err != nil {
				s.log.Warn("rollup failed",
					zap.String("job", "rollup_recent"),
					zap.String("project_id", project.ID.String()),
					zap.String("bucket_size", size),
					zap.Error(err),
				)
				jobErr = errors.Join(jobErr, fmt.Errorf("project %s bucket %s: %w", project.ID, size, err))
				failed = true
			}
		}
		if failed {
			continue
		}
		obsmetrics.Scheduler().AddBatchProcessed("rollup_recent", "projects", 1)
	}
	return jobErr
}

// AnomalyDetectionJob runs every detector for every project: deviation and
// trend checks on defined metrics, volume checks on recently active events.
func (s *Scheduler) AnomalyDetectionJob(ctx context.Context) error {
	projects, err := s.tenantSvc.List(ctx)
	if err != nil {
		return err
	}

	var jobErr error
	for _, project := range projects {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.detectProject(ctx, project.ID); err != nil {
			s.log.Warn("detection failed",
				zap.String("job", "anomaly_detection"),
				zap.String("project_id", project.ID.String()),
				zap.Error(err),
			)
			jobErr = errors.Join(jobErr, fmt.Errorf("project %s: %w", project.ID, err))
		}
	}
	return jobErr
}

func (s *Scheduler) detectProject(ctx context.Context, projectID snowflake.ID) error {
	var errs []error

	defs, err := s.metricDefSvc.List(ctx, projectID)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		anomaly, err := s.anomalySvc.DetectMetric(ctx, projectID, def.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("metric %s: %w", def.Name, err))
		}
		s.recordAnomaly(ctx, anomaly)

		anomaly, err = s.anomalySvc.DetectTrend(ctx, projectID, def.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("trend %s: %w", def.Name, err))
		}
		s.recordAnomaly(ctx, anomaly)
	}

	names, err := s.activeEventNames(ctx, projectID)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		anomaly, err := s.anomalySvc.DetectEvent(ctx, projectID, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", name, err))
		}
		s.recordAnomaly(ctx, anomaly)
	}

	obsmetrics.Scheduler().AddBatchProcessed("anomaly_detection", "subjects", len(defs)+len(names))
	return errors.Join(errs...)
}

func (s *Scheduler) recordAnomaly(ctx context.Context, anomaly *anomalydomain.Anomaly) {
	if anomaly == nil {
		return
	}
	s.metrics.RecordAnomaly(ctx, anomaly.AnomalyType, anomaly.Severity)
}

func (s *Scheduler) activeEventNames(ctx context.Context, projectID snowflake.ID) ([]string, error) {
	since := s.clock.Now().Add(-s.cfg.ActiveEventWindow)
	var names []string
	err := s.db.WithContext(ctx).
		Model(&ingestdomain.Event{}).
		Distinct("name").
		Where("project_id = ? AND timestamp >= ?", projectID, since).
		Order("name ASC").
		Pluck("name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// RetentionSweepJob deletes expired rows across all projects.
func (s *Scheduler) RetentionSweepJob(ctx context.Context) error {
	return s.retentionSvc.Sweep(ctx)
}
