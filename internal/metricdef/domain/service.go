package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound       = errors.New("metric definition not found")
	ErrInvalidName    = errors.New("invalid metric name")
	ErrInvalidType    = errors.New("invalid metric type")
	ErrTenantRequired = errors.New("project id is required")
)

// EnsureRequest describes a definition seen during ingestion. The metadata
// fields only take effect on first creation.
type EnsureRequest struct {
	ProjectID   snowflake.ID
	Name        string
	MetricType  string
	Unit        string
	DisplayName string
	Description string
}

// Service manages the per-project metric schema registry.
type Service interface {
	// Ensure returns the definition for (project, name), creating it with the
	// request's type and unit when it does not exist yet. The type of an
	// existing definition is never changed by later ingestions.
	Ensure(ctx context.Context, req EnsureRequest) (*MetricDefinition, error)
	GetByName(ctx context.Context, projectID snowflake.ID, name string) (*MetricDefinition, error)
	List(ctx context.Context, projectID snowflake.ID) ([]MetricDefinition, error)
}
