package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoBucket(t *testing.T) {
	tests := []struct {
		window time.Duration
		want   string
	}{
		{30 * time.Minute, "1m"},
		{time.Hour, "1m"},
		{3 * time.Hour, "5m"},
		{6 * time.Hour, "5m"},
		{12 * time.Hour, "15m"},
		{24 * time.Hour, "15m"},
		{3 * 24 * time.Hour, "1h"},
		{7 * 24 * time.Hour, "1h"},
		{14 * 24 * time.Hour, "6h"},
		{60 * 24 * time.Hour, "1d"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AutoBucket(tt.window), "window %s", tt.window)
	}
}

func TestParseTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("rfc3339", func(t *testing.T) {
		got, err := ParseTime("2025-05-30T08:15:00Z", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 5, 30, 8, 15, 0, 0, time.UTC), got)
	})

	t.Run("relative shorthand", func(t *testing.T) {
		tests := []struct {
			raw  string
			want time.Time
		}{
			{"15m", now.Add(-15 * time.Minute)},
			{"24h", now.Add(-24 * time.Hour)},
			{"7d", now.Add(-7 * 24 * time.Hour)},
			{"2w", now.Add(-14 * 24 * time.Hour)},
		}
		for _, tt := range tests {
			got, err := ParseTime(tt.raw, now)
			require.NoError(t, err, tt.raw)
			assert.True(t, got.Equal(tt.want), "%s: got %s", tt.raw, got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"", "yesterday", "15", "m", "15s", "-15m", "15 m"} {
			_, err := ParseTime(raw, now)
			assert.ErrorIs(t, err, ErrInvalidTime, "raw %q", raw)
		}
	})
}

func TestSpecNormalize(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fills defaults", func(t *testing.T) {
		spec, err := Spec{Metric: "api.latency"}.Normalize(now)
		require.NoError(t, err)
		assert.Equal(t, now, spec.To)
		assert.Equal(t, now.Add(-DefaultLookback), spec.From)
		assert.Equal(t, AggAvg, spec.Aggregation)
		// 24h window resolves to 15 minute buckets.
		assert.Equal(t, "15m", spec.BucketSize)
	})

	t.Run("auto bucket follows window", func(t *testing.T) {
		spec, err := Spec{
			Metric:     "api.latency",
			From:       now.Add(-30 * time.Minute),
			BucketSize: BucketAuto,
		}.Normalize(now)
		require.NoError(t, err)
		assert.Equal(t, "1m", spec.BucketSize)
	})

	t.Run("explicit values kept", func(t *testing.T) {
		spec, err := Spec{
			Metric:      "api.latency",
			BucketSize:  "1h",
			Aggregation: AggP95,
		}.Normalize(now)
		require.NoError(t, err)
		assert.Equal(t, "1h", spec.BucketSize)
		assert.Equal(t, AggP95, spec.Aggregation)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := Spec{}.Normalize(now)
		assert.ErrorIs(t, err, ErrMissingMetric)

		_, err = Spec{Metric: "m", From: now, To: now}.Normalize(now)
		assert.ErrorIs(t, err, ErrInvalidRange)

		_, err = Spec{Metric: "m", From: now.Add(time.Hour)}.Normalize(now)
		assert.ErrorIs(t, err, ErrInvalidRange)

		_, err = Spec{Metric: "m", BucketSize: "90s"}.Normalize(now)
		assert.ErrorIs(t, err, ErrInvalidBucketSize)

	})

	t.Run("unknown aggregation falls back to avg", func(t *testing.T) {
		spec, err := Spec{Metric: "m", Aggregation: "median"}.Normalize(now)
		require.NoError(t, err)
		assert.Equal(t, AggAvg, spec.Aggregation)
	})
}
