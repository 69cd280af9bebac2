package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrEmptyBatch   = errors.New("batch contains no records")
	ErrMissingName  = errors.New("record is missing a name")
	ErrMissingValue = errors.New("record is missing a value")
	ErrInvalidType  = errors.New("invalid metric type")
)

// MetricRecord is one metric sample as submitted by a client.
type MetricRecord struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Value     *float64          `json:"value"`
	Tags      map[string]string `json:"tags"`
	Timestamp *time.Time        `json:"timestamp"`

	// Definition metadata, applied when the metric is first seen.
	Unit        string `json:"unit"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`

	// Pre-aggregated distribution summaries computed client-side. Ignored for
	// other metric types.
	Sum   *float64 `json:"sum"`
	Count *int64   `json:"count"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	P50   *float64 `json:"p50"`
	P95   *float64 `json:"p95"`
	P99   *float64 `json:"p99"`
}

// EventRecord is one event occurrence as submitted by a client.
type EventRecord struct {
	Name        string            `json:"name"`
	Value       *float64          `json:"value"`
	Properties  map[string]any    `json:"properties"`
	Tags        map[string]string `json:"tags"`
	UserID      string            `json:"user_id"`
	SessionID   string            `json:"session_id"`
	Environment string            `json:"environment"`
	Service     string            `json:"service"`
	Host        string            `json:"host"`
	Timestamp   *time.Time        `json:"timestamp"`
}

// Result summarizes an accepted batch.
type Result struct {
	Accepted int `json:"accepted"`
}

// Service is the raw write path. Batches are all-or-nothing: a malformed
// record rejects the whole batch before anything is persisted.
type Service interface {
	IngestMetrics(ctx context.Context, projectID snowflake.ID, records []MetricRecord) (*Result, error)
	IngestEvents(ctx context.Context, projectID snowflake.ID, records []EventRecord) (*Result, error)
}
