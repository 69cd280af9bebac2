package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// PercentileMinSamples is the smallest bucket population for which
// percentiles are stored. Below it they stay null rather than pretend to
// precision the data cannot support.
const PercentileMinSamples = 10

var (
	ErrInvalidBucketSize = errors.New("invalid rollup bucket size")
	ErrInvalidWindow     = errors.New("backfill window is empty or inverted")
)

// Service materializes and reads aggregated metric buckets.
type Service interface {
	// Aggregate rolls up one (project, metric, bucket) window from raw
	// points. An empty window writes nothing and removes no existing row.
	Aggregate(ctx context.Context, projectID snowflake.ID, metric, bucketSize string, bucketTime time.Time) error

	// AggregateRecent rolls up the most recently completed bucket of the
	// given size for every metric name that has raw points inside it.
	AggregateRecent(ctx context.Context, projectID snowflake.ID, bucketSize string) error

	// Backfill aggregates every bucket of bucketSize in [from, to) for one
	// metric. A failing bucket is recorded and skipped, not fatal.
	Backfill(ctx context.Context, projectID snowflake.ID, metric, bucketSize string, from, to time.Time) error

	// Read returns materialized buckets of one size in [from, to).
	Read(ctx context.Context, projectID snowflake.ID, metric, bucketSize string, from, to time.Time) ([]AggregatedMetric, error)
}
