// Package domain defines the read path over raw metric points: windowed
// series, summary stats, latest values and tag breakdowns.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Aggregation functions accepted by the series and group endpoints.
const (
	AggAvg   = "avg"
	AggSum   = "sum"
	AggMin   = "min"
	AggMax   = "max"
	AggCount = "count"
	AggP50   = "p50"
	AggP95   = "p95"
	AggP99   = "p99"
	AggLast  = "last"
)

// BucketAuto asks the engine to pick a bucket size from the window length.
const BucketAuto = "auto"

// DefaultLookback is applied when a query names no window at all.
const DefaultLookback = 24 * time.Hour

var (
	ErrInvalidBucketSize = errors.New("invalid bucket size")
	ErrInvalidRange      = errors.New("query window is empty or inverted")
	ErrMissingMetric     = errors.New("metric name is required")
	ErrMissingTagKey     = errors.New("tag key is required")
)

// Spec is a fully resolved query. Services treat it as immutable; Normalize
// returns an adjusted copy instead of mutating in place.
type Spec struct {
	ProjectID   snowflake.ID
	Metric      string
	From        time.Time
	To          time.Time
	BucketSize  string
	Aggregation string
	Tags        map[string]string
}

// Normalize fills defaults relative to now and validates the spec. The
// returned copy always has a concrete bucket size and aggregation.
func (s Spec) Normalize(now time.Time) (Spec, error) {
	if s.Metric == "" {
		return s, ErrMissingMetric
	}
	if s.To.IsZero() {
		s.To = now
	}
	if s.From.IsZero() {
		s.From = s.To.Add(-DefaultLookback)
	}
	if !s.From.Before(s.To) {
		return s, ErrInvalidRange
	}

	// Unknown aggregation names fall back to avg rather than failing the
	// whole query.
	if !ValidAggregation(s.Aggregation) {
		s.Aggregation = AggAvg
	}

	if s.BucketSize == "" || s.BucketSize == BucketAuto {
		s.BucketSize = AutoBucket(s.To.Sub(s.From))
	}
	if _, ok := BucketDuration(s.BucketSize); !ok {
		return s, ErrInvalidBucketSize
	}
	return s, nil
}

// ValidAggregation reports whether agg is one of the supported functions.
func ValidAggregation(agg string) bool {
	switch agg {
	case AggAvg, AggSum, AggMin, AggMax, AggCount, AggP50, AggP95, AggP99, AggLast:
		return true
	default:
		return false
	}
}

// SeriesPoint is one bucket of a time series. Value is nil for buckets with
// no samples so gaps stay visible.
type SeriesPoint struct {
	Time  time.Time `json:"time"`
	Value *float64  `json:"value"`
}

// SeriesResult is a bucketed series for a single metric.
type SeriesResult struct {
	Metric      string        `json:"metric"`
	BucketSize  string        `json:"bucket_size"`
	Aggregation string        `json:"aggregation"`
	From        time.Time     `json:"from"`
	To          time.Time     `json:"to"`
	Points      []SeriesPoint `json:"points"`
}

// StatsResult summarizes one metric across a whole window.
type StatsResult struct {
	Metric string   `json:"metric"`
	Count  int64    `json:"count"`
	Sum    *float64 `json:"sum"`
	Avg    *float64 `json:"avg"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	P50    *float64 `json:"p50"`
	P95    *float64 `json:"p95"`
	P99    *float64 `json:"p99"`
}

// LatestResult is the most recent sample of a metric.
type LatestResult struct {
	Metric    string    `json:"metric"`
	Value     *float64  `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// GroupBucket is one tag value's aggregate.
type GroupBucket struct {
	Key   string   `json:"key"`
	Count int64    `json:"count"`
	Value *float64 `json:"value"`
}

// Service answers read queries over raw metric points.
type Service interface {
	Series(ctx context.Context, spec Spec) (*SeriesResult, error)
	Stats(ctx context.Context, spec Spec) (*StatsResult, error)
	Latest(ctx context.Context, projectID snowflake.ID, metric string) (*LatestResult, error)
	GroupByTag(ctx context.Context, spec Spec, tagKey string) ([]GroupBucket, error)
}
