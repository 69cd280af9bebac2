package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fluxhq/flux/internal/clock"
	"github.com/fluxhq/flux/internal/ingest/domain"
	metricdefdomain "github.com/fluxhq/flux/internal/metricdef/domain"
	tenantdomain "github.com/fluxhq/flux/internal/tenant/domain"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Definitions metricdefdomain.Service
	Tenants     tenantdomain.Service
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	definitions metricdefdomain.Service
	tenants     tenantdomain.Service
}

func New(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("ingest.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		definitions: p.Definitions,
		tenants:     p.Tenants,
	}
}

func (s *service) IngestMetrics(ctx context.Context, projectID snowflake.ID, records []domain.MetricRecord) (*domain.Result, error) {
	if len(records) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	now := s.clock.Now()
	points := make([]domain.MetricPoint, 0, len(records))
	ensures := make([]metricdefdomain.EnsureRequest, 0, len(records))
	for _, rec := range records {
		point, err := s.shape(rec, projectID)
		if err != nil {
			return nil, err
		}
		if rec.Timestamp != nil {
			point.Timestamp = rec.Timestamp.UTC()
		} else {
			point.Timestamp = now
		}
		points = append(points, *point)
		ensures = append(ensures, metricdefdomain.EnsureRequest{
			ProjectID:   projectID,
			Name:        point.Name,
			MetricType:  point.MetricType,
			Unit:        rec.Unit,
			DisplayName: rec.DisplayName,
			Description: rec.Description,
		})
	}

	for _, req := range ensures {
		if _, err := s.definitions.Ensure(ctx, req); err != nil {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Create(&points).Error; err != nil {
		return nil, err
	}

	if err := s.tenants.IncrementMetricsCount(ctx, projectID, int64(len(points))); err != nil {
		s.log.Warn("increment metrics count failed",
			zap.String("project_id", projectID.String()),
			zap.Error(err),
		)
	}

	return &domain.Result{Accepted: len(points)}, nil
}

func (s *service) IngestEvents(ctx context.Context, projectID snowflake.ID, records []domain.EventRecord) (*domain.Result, error) {
	if len(records) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	now := s.clock.Now()

	// Records without an environment inherit the project's.
	defaultEnv := ""
	for _, rec := range records {
		if rec.Environment == "" {
			project, err := s.tenants.GetByID(ctx, projectID)
			if err != nil {
				return nil, err
			}
			defaultEnv = project.Environment
			break
		}
	}

	events := make([]domain.Event, 0, len(records))
	for _, rec := range records {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			return nil, domain.ErrMissingName
		}

		env := rec.Environment
		if env == "" {
			env = defaultEnv
		}
		event := domain.Event{
			ID:          s.genID.Generate(),
			ProjectID:   projectID,
			Name:        name,
			Value:       rec.Value,
			UserID:      rec.UserID,
			SessionID:   rec.SessionID,
			Environment: env,
			Service:     rec.Service,
			Host:        rec.Host,
		}
		if len(rec.Properties) > 0 {
			event.Properties = datatypes.JSONMap(rec.Properties)
		}
		if len(rec.Tags) > 0 {
			tags := make(map[string]any, len(rec.Tags))
			for k, v := range rec.Tags {
				tags[k] = v
			}
			event.Tags = datatypes.JSONMap(tags)
		}
		if rec.Timestamp != nil {
			event.Timestamp = rec.Timestamp.UTC()
		} else {
			event.Timestamp = now
		}
		events = append(events, event)
	}

	if err := s.db.WithContext(ctx).Create(&events).Error; err != nil {
		return nil, err
	}

	if err := s.tenants.IncrementEventsCount(ctx, projectID, int64(len(events))); err != nil {
		s.log.Warn("increment events count failed",
			zap.String("project_id", projectID.String()),
			zap.Error(err),
		)
	}

	return &domain.Result{Accepted: len(events)}, nil
}

// shape normalizes a submitted record into its stored form. Each metric type
// fills a different subset of the aggregate columns.
func (s *service) shape(rec domain.MetricRecord, projectID snowflake.ID) (*domain.MetricPoint, error) {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return nil, domain.ErrMissingName
	}

	metricType := rec.Type
	if metricType == "" {
		metricType = metricdefdomain.TypeGauge
	}
	if !metricdefdomain.ValidType(metricType) {
		return nil, domain.ErrInvalidType
	}

	point := domain.MetricPoint{
		ID:          s.genID.Generate(),
		ProjectID:   projectID,
		Name:        name,
		MetricType:  metricType,
		SampleCount: 1,
	}

	tags := make(map[string]any, len(rec.Tags)+1)
	for k, v := range rec.Tags {
		tags[k] = v
	}

	switch metricType {
	case metricdefdomain.TypeCounter:
		increment := 1.0
		if rec.Value != nil {
			increment = *rec.Value
		}
		point.Value = &increment

	case metricdefdomain.TypeDistribution:
		if rec.Value == nil && rec.Count == nil {
			return nil, domain.ErrMissingValue
		}
		if rec.Value != nil {
			v := *rec.Value
			point.Value = &v
			point.Sum = &v
			point.Min = &v
			point.Max = &v
		}
		// Client-side summaries take precedence over the single-sample
		// defaults above.
		if rec.Count != nil {
			point.SampleCount = *rec.Count
		}
		if rec.Sum != nil {
			point.Sum = rec.Sum
		}
		if rec.Min != nil {
			point.Min = rec.Min
		}
		if rec.Max != nil {
			point.Max = rec.Max
		}
		point.P50 = rec.P50
		point.P95 = rec.P95
		point.P99 = rec.P99

	case metricdefdomain.TypeSet:
		// The observed member rides along as a tag; Value stays nil and the
		// point counts one distinct observation.
		one := int64(1)
		point.Cardinality = &one
		if rec.Value != nil {
			tags[domain.SetValueTag] = strconv.FormatFloat(*rec.Value, 'f', -1, 64)
		}

	default: // gauge
		if rec.Value == nil {
			return nil, domain.ErrMissingValue
		}
		v := *rec.Value
		point.Value = &v
	}

	if len(tags) > 0 {
		point.Tags = datatypes.JSONMap(tags)
	}
	return &point, nil
}
