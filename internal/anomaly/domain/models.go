// Package domain holds anomaly records and the pure detection arithmetic.
// Detection compares a current window against a day-over-day baseline and
// flags deviations that clear the metric's configured threshold.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Anomaly types. Direction is encoded here: a spike is above baseline, a
// drop below it. Seasonality is reserved for a future detector.
const (
	TypeSpike       = "spike"
	TypeDrop        = "drop"
	TypeTrend       = "trend"
	TypeSeasonality = "seasonality"
)

// Sources an anomaly can be detected on.
const (
	SourceMetric = "metric"
	SourceEvent  = "event"
)

// Severities, ordered by urgency.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
)

// Anomaly is one detected deviation. Records are append-only except for the
// acknowledge fields.
type Anomaly struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	ProjectID      snowflake.ID      `json:"project_id" gorm:"not null;index:ix_anomalies_project_detected,priority:1"`
	Source         string            `json:"source" gorm:"type:text;not null"`
	SourceName     string            `json:"source_name" gorm:"type:text;not null;index"`
	AnomalyType    string            `json:"anomaly_type" gorm:"type:text;not null;index"`
	Severity       string            `json:"severity" gorm:"type:text;not null;index"`
	DeviationPct   float64           `json:"deviation_pct" gorm:"not null"`
	ExpectedValue  float64           `json:"expected_value" gorm:"not null"`
	ActualValue    float64           `json:"actual_value" gorm:"not null"`
	Context        datatypes.JSONMap `json:"context"`
	DetectedAt     time.Time         `json:"detected_at" gorm:"not null;index:ix_anomalies_project_detected,priority:2"`
	StartedAt      *time.Time        `json:"started_at"`
	EndedAt        *time.Time        `json:"ended_at"`
	Acknowledged   bool              `json:"acknowledged" gorm:"not null;default:false;index"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at"`
	AcknowledgedBy string            `json:"acknowledged_by" gorm:"type:text"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Anomaly) TableName() string { return "anomalies" }

// SeverityFor maps a deviation percentage to a severity band.
func SeverityFor(deviationPct float64) string {
	switch {
	case deviationPct >= 100:
		return SeverityCritical
	case deviationPct >= 50:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
