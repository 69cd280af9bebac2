package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdFor(t *testing.T) {
	cfg := DefaultThresholdConfig()

	tests := []struct {
		metric string
		want   float64
	}{
		{"http.error_rate", 50},
		{"checkout.failed_total", 50},
		{"api.response_time", 30},
		{"db.query.latency", 30},
		{"checkout.total", 100},
		{"", 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.ThresholdFor(tt.metric), "metric %q", tt.metric)
	}
}

func TestThresholdForIsCaseInsensitive(t *testing.T) {
	cfg := DefaultThresholdConfig()
	assert.Equal(t, 50.0, cfg.ThresholdFor("HTTP.Error_Rate"))
	assert.Equal(t, 30.0, cfg.ThresholdFor("  API.LATENCY  "))
}

func TestThresholdForMatchesSubstringsNaively(t *testing.T) {
	cfg := DefaultThresholdConfig()
	// Substring containment, so this hits the "error" rule even though it
	// measures the opposite.
	assert.Equal(t, 50.0, cfg.ThresholdFor("no_errors_total"))
}

func TestThresholdForRuleOrderWins(t *testing.T) {
	cfg := ThresholdConfig{
		Rules: []ThresholdRule{
			{Pattern: "error", Threshold: 50},
			{Pattern: "error_latency", Threshold: 30},
		},
		Default: 100,
	}
	// Both rules match; the first one in the table is used.
	assert.Equal(t, 50.0, cfg.ThresholdFor("error_latency_ms"))
}

func TestValidateThresholdConfig(t *testing.T) {
	require.NoError(t, validateThresholdConfig(DefaultThresholdConfig()))

	assert.Error(t, validateThresholdConfig(ThresholdConfig{Default: 0}))
	assert.Error(t, validateThresholdConfig(ThresholdConfig{
		Rules:   []ThresholdRule{{Pattern: "error", Threshold: -1}},
		Default: 100,
	}))
}

func TestThresholdHolderFallsBackToDefaults(t *testing.T) {
	holder, err := NewThresholdHolder()
	require.NoError(t, err)
	assert.Equal(t, 100.0, holder.Get().Default)
}
