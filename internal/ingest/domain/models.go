// Package domain defines the raw write path: metric points and events as
// they are stored before any rollup touches them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SetValueTag carries the distinct member of a set metric so cardinality can
// be computed at query time.
const SetValueTag = "_set_value"

// MetricPoint is a single raw metric sample.
type MetricPoint struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	ProjectID   snowflake.ID      `json:"project_id" gorm:"not null;index:ix_metric_points_project_name_ts,priority:1"`
	Name        string            `json:"name" gorm:"type:text;not null;index:ix_metric_points_project_name_ts,priority:2"`
	MetricType  string            `json:"type" gorm:"column:metric_type;type:text;not null"`
	Value       *float64          `json:"value"`
	Sum         *float64          `json:"sum"`
	Min         *float64          `json:"min"`
	Max         *float64          `json:"max"`
	P50         *float64          `json:"p50"`
	P95         *float64          `json:"p95"`
	P99         *float64          `json:"p99"`
	SampleCount int64             `json:"sample_count" gorm:"not null;default:1"`
	Cardinality *int64            `json:"cardinality"`
	Tags        datatypes.JSONMap `json:"tags"`
	Timestamp   time.Time         `json:"timestamp" gorm:"not null;index:ix_metric_points_project_name_ts,priority:3"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MetricPoint) TableName() string { return "metric_points" }

// Event is a single raw occurrence record.
type Event struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	ProjectID   snowflake.ID      `json:"project_id" gorm:"not null;index:ix_events_project_name_ts,priority:1"`
	Name        string            `json:"name" gorm:"type:text;not null;index:ix_events_project_name_ts,priority:2"`
	Value       *float64          `json:"value"`
	Properties  datatypes.JSONMap `json:"properties"`
	Tags        datatypes.JSONMap `json:"tags"`
	UserID      string            `json:"user_id" gorm:"type:text"`
	SessionID   string            `json:"session_id" gorm:"type:text"`
	Environment string            `json:"environment" gorm:"type:text"`
	Service     string            `json:"service" gorm:"type:text"`
	Host        string            `json:"host" gorm:"type:text"`
	Timestamp   time.Time         `json:"timestamp" gorm:"not null;index:ix_events_project_name_ts,priority:3"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Event) TableName() string { return "events" }
