package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateProjectRequest struct {
	PlatformProjectID string `json:"platform_project_id"`
	Name              string `json:"name"`
	Environment       string `json:"environment"`
	RetentionDays     int    `json:"retention_days"`
}

type Service interface {
	Create(ctx context.Context, req CreateProjectRequest) (*Project, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Project, error)
	FindByIngestKey(ctx context.Context, key string) (*Project, error)
	List(ctx context.Context) ([]Project, error)
	IncrementEventsCount(ctx context.Context, id snowflake.ID, by int64) error
	IncrementMetricsCount(ctx context.Context, id snowflake.ID, by int64) error
}

var (
	ErrNotFound          = errors.New("project_not_found")
	ErrInvalidName       = errors.New("invalid_project_name")
	ErrInvalidPlatformID = errors.New("invalid_platform_project_id")
)
