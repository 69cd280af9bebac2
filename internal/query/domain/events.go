package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"

	ingestdomain "github.com/fluxhq/flux/internal/ingest/domain"
	"github.com/fluxhq/flux/pkg/db/pagination"
)

// EventFilter narrows event reads. Zero values mean "any".
type EventFilter struct {
	Name        string
	Since       time.Time
	Until       time.Time
	UserID      string
	SessionID   string
	Environment string
	Service     string
	Host        string
	HasValue    *bool
	Pagination  pagination.Pagination
}

// EventStats summarizes a filtered event set. Value aggregates cover only
// rows that carry a value and are nil when none do.
type EventStats struct {
	Total       int64    `json:"total"`
	UniqueNames int64    `json:"unique_names"`
	UniqueUsers int64    `json:"unique_users"`
	WithValue   int64    `json:"with_value"`
	AvgValue    *float64 `json:"avg_value"`
	SumValue    *float64 `json:"sum_value"`
}

// EventNameCount is one event name's occurrence count.
type EventNameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// EventService answers read queries over raw events.
type EventService interface {
	// List returns matching events, newest first.
	List(ctx context.Context, projectID snowflake.ID, filter EventFilter) ([]ingestdomain.Event, error)
	Count(ctx context.Context, projectID snowflake.ID, filter EventFilter) (int64, error)
	Stats(ctx context.Context, projectID snowflake.ID, filter EventFilter) (*EventStats, error)

	// GroupByName returns the most frequent event names, busiest first.
	GroupByName(ctx context.Context, projectID snowflake.ID, filter EventFilter, limit int) ([]EventNameCount, error)
}
