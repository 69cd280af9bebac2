package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	"github.com/fluxhq/flux/internal/query/domain"
)

// DefaultGroupByNameLimit caps the name breakdown when no limit is given.
const DefaultGroupByNameLimit = 20

type eventService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewEvents(p Params) domain.EventService {
	return &eventService{
		db:  p.DB,
		log: p.Log.Named("query.events"),
	}
}

func (s *eventService) List(ctx context.Context, projectID snowflake.ID, filter domain.EventFilter) ([]ingestdomain.Event, error) {
	page := filter.Pagination.Clamp()

	var events []ingestdomain.Event
	err := s.scope(ctx, projectID, filter).
		Order("timestamp DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *eventService) Count(ctx context.Context, projectID snowflake.ID, filter domain.EventFilter) (int64, error) {
	var count int64
	err := s.scope(ctx, projectID, filter).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *eventService) Stats(ctx context.Context, projectID snowflake.ID, filter domain.EventFilter) (*domain.EventStats, error) {
	result := &domain.EventStats{}

	if err := s.scope(ctx, projectID, filter).Count(&result.Total).Error; err != nil {
		return nil, err
	}
	err := s.scope(ctx, projectID, filter).
		Distinct("name").
		Count(&result.UniqueNames).Error
	if err != nil {
		return nil, err
	}
	err = s.scope(ctx, projectID, filter).
		Where("user_id <> ''").
		Distinct("user_id").
		Count(&result.UniqueUsers).Error
	if err != nil {
		return nil, err
	}

	var agg struct {
		N   int64
		Avg *float64
		Sum *float64
	}
	err = s.scope(ctx, projectID, filter).
		Where("value IS NOT NULL").
		Select("COUNT(*) AS n, AVG(value) AS avg, SUM(value) AS sum").
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	result.WithValue = agg.N
	if agg.Avg != nil {
		result.AvgValue = round(*agg.Avg)
	}
	if agg.Sum != nil {
		result.SumValue = round(*agg.Sum)
	}
	return result, nil
}

func (s *eventService) GroupByName(ctx context.Context, projectID snowflake.ID, filter domain.EventFilter, limit int) ([]domain.EventNameCount, error) {
	if limit <= 0 || limit > DefaultGroupByNameLimit {
		limit = DefaultGroupByNameLimit
	}

	var rows []domain.EventNameCount
	err := s.scope(ctx, projectID, filter).
		Select("name, COUNT(*) AS count").
		Group("name").
		Order("count DESC, name ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *eventService) scope(ctx context.Context, projectID snowflake.ID, f domain.EventFilter) *gorm.DB {
	q := s.db.WithContext(ctx).
		Model(&ingestdomain.Event{}).
		Where("project_id = ?", projectID)

	if f.Name != "" {
		q = q.Where("name = ?", f.Name)
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since)
	}
	if !f.Until.IsZero() {
		q = q.Where("timestamp < ?", f.Until)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.Environment != "" {
		q = q.Where("environment = ?", f.Environment)
	}
	if f.Service != "" {
		q = q.Where("service = ?", f.Service)
	}
	if f.Host != "" {
		q = q.Where("host = ?", f.Host)
	}
	if f.HasValue != nil {
		if *f.HasValue {
			q = q.Where("value IS NOT NULL")
		} else {
			q = q.Where("value IS NULL")
		}
	}
	return q
}
