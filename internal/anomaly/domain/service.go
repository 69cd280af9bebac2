package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/fluxhq/flux/pkg/db/pagination"
)

var (
	ErrNotFound      = errors.New("anomaly not found")
	ErrMissingSource = errors.New("source name is required")
)

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	AnomalyType  string
	Severity     string
	SourceName   string
	Acknowledged *bool
	Since        time.Time
	Pagination   pagination.Pagination
}

// Service detects, stores and manages anomalies for one project at a time.
type Service interface {
	// DetectMetric compares the metric's last hour against the same hour
	// yesterday. A nil anomaly with nil error means nothing to report.
	DetectMetric(ctx context.Context, projectID snowflake.ID, metric string) (*Anomaly, error)

	// DetectEvent compares the event's count over the last hour against the
	// same hour yesterday, flagging spikes and drops.
	DetectEvent(ctx context.Context, projectID snowflake.ID, event string) (*Anomaly, error)

	// DetectTrend looks for a sustained multi-day drift in a metric's daily
	// means.
	DetectTrend(ctx context.Context, projectID snowflake.ID, metric string) (*Anomaly, error)

	List(ctx context.Context, projectID snowflake.ID, filter ListFilter) ([]Anomaly, error)
	Get(ctx context.Context, projectID, id snowflake.ID) (*Anomaly, error)

	// Acknowledge marks an anomaly as seen. Acknowledging twice is a no-op
	// that preserves the original acknowledgement.
	Acknowledge(ctx context.Context, projectID, id snowflake.ID, by string) (*Anomaly, error)
}
