// Package domain contains the metric schema registry: one definition per
// metric name per project, created lazily on first ingestion.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Metric types supported by the ingestion writer.
const (
	TypeGauge        = "gauge"
	TypeCounter      = "counter"
	TypeDistribution = "distribution"
	TypeSet          = "set"
)

// MetricDefinition describes a metric name. It carries no time-series data
// itself.
type MetricDefinition struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	ProjectID   snowflake.ID `json:"project_id" gorm:"not null;uniqueIndex:ux_metric_definitions_project_name,priority:1"`
	Name        string       `json:"name" gorm:"type:text;not null;uniqueIndex:ux_metric_definitions_project_name,priority:2"`
	MetricType  string       `json:"type" gorm:"column:metric_type;type:text;not null"`
	DisplayName string       `json:"display_name" gorm:"type:text"`
	Unit        string       `json:"unit" gorm:"type:text"`
	Description string       `json:"description" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (MetricDefinition) TableName() string { return "metric_definitions" }

// ValidType reports whether t is one of the supported metric types.
func ValidType(t string) bool {
	switch t {
	case TypeGauge, TypeCounter, TypeDistribution, TypeSet:
		return true
	default:
		return false
	}
}

// FormattedUnit expands short unit codes for display.
func (d MetricDefinition) FormattedUnit() string {
	switch strings.ToLower(strings.TrimSpace(d.Unit)) {
	case "":
		return ""
	case "ms":
		return "milliseconds"
	case "s":
		return "seconds"
	case "bytes", "b":
		return "bytes"
	case "kb":
		return "kilobytes"
	case "mb":
		return "megabytes"
	case "usd", "$":
		return "USD"
	default:
		return d.Unit
	}
}
