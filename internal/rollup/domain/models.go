// Package domain defines pre-aggregated metric buckets. Rollups make wide
// dashboard windows cheap and survive raw-point retention.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Bucket sizes the aggregator materializes.
const (
	BucketMinute = "1m"
	BucketFive   = "5m"
	BucketHour   = "1h"
	BucketDay    = "1d"
)

// RollupBucketSizes lists the materialized sizes, smallest first.
var RollupBucketSizes = []string{BucketMinute, BucketFive, BucketHour, BucketDay}

// BucketDuration resolves a rollup bucket size to its duration.
func BucketDuration(name string) (time.Duration, bool) {
	switch name {
	case BucketMinute:
		return time.Minute, true
	case BucketFive:
		return 5 * time.Minute, true
	case BucketHour:
		return time.Hour, true
	case BucketDay:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

// AggregatedMetric is one materialized bucket. Exactly one row exists per
// (project, metric, bucket size, bucket time).
type AggregatedMetric struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	ProjectID   snowflake.ID `json:"project_id" gorm:"not null;uniqueIndex:ux_aggregated_metrics_bucket,priority:1"`
	Name        string       `json:"name" gorm:"type:text;not null;uniqueIndex:ux_aggregated_metrics_bucket,priority:2"`
	BucketSize  string       `json:"bucket_size" gorm:"type:text;not null;uniqueIndex:ux_aggregated_metrics_bucket,priority:3"`
	BucketTime  time.Time    `json:"bucket_time" gorm:"not null;uniqueIndex:ux_aggregated_metrics_bucket,priority:4"`
	SampleCount int64        `json:"sample_count" gorm:"not null"`
	Sum         float64      `json:"sum" gorm:"not null"`
	Avg         float64      `json:"avg" gorm:"not null"`
	Min         float64      `json:"min" gorm:"not null"`
	Max         float64      `json:"max" gorm:"not null"`
	P50         *float64     `json:"p50"`
	P95         *float64     `json:"p95"`
	P99         *float64     `json:"p99"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AggregatedMetric) TableName() string { return "aggregated_metrics" }
