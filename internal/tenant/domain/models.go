// Package domain contains persistence models for projects, the tenant
// isolation boundary every other entity is scoped by.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultRetentionDays is the raw-data keep window applied when a project
// has no explicit policy.
const DefaultRetentionDays = 90

// Project is the tenant unit. It owns the retention policy and running
// ingest counters for its time-series data.
type Project struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	PlatformProjectID string       `json:"platform_project_id" gorm:"type:text;not null;uniqueIndex"`
	Name              string       `json:"name" gorm:"type:text;not null"`
	Environment       string       `json:"environment" gorm:"type:text;not null;default:production"`
	IngestKey         string       `json:"-" gorm:"type:text;uniqueIndex"`
	RetentionDays     int          `json:"retention_days" gorm:"not null;default:90"`
	EventsCount       int64        `json:"events_count" gorm:"not null;default:0"`
	MetricsCount      int64        `json:"metrics_count" gorm:"not null;default:0"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }
