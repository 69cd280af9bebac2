package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fp(v float64) *float64 { return &v }

func TestEvaluateDeviation(t *testing.T) {
	t.Run("large deviation is critical", func(t *testing.T) {
		a := EvaluateDeviation(350, 100, 50)
		require.NotNil(t, a)
		assert.Equal(t, TypeSpike, a.Type)
		assert.Equal(t, 250.0, a.DeviationPct)
		assert.Equal(t, 100.0, a.Expected)
		assert.Equal(t, 350.0, a.Actual)
		assert.Equal(t, SeverityCritical, a.Severity)
	})

	t.Run("deviation below threshold is ignored", func(t *testing.T) {
		assert.Nil(t, EvaluateDeviation(130, 100, 50))
	})

	t.Run("deviation exactly at threshold is reported", func(t *testing.T) {
		a := EvaluateDeviation(150, 100, 50)
		require.NotNil(t, a)
		assert.Equal(t, TypeSpike, a.Type)
		assert.Equal(t, 50.0, a.DeviationPct)
		assert.Equal(t, SeverityWarning, a.Severity)

		// An exact doubling clears the default threshold of 100.
		a = EvaluateDeviation(200, 100, 100)
		require.NotNil(t, a)
		assert.Equal(t, 100.0, a.DeviationPct)
		assert.Equal(t, SeverityCritical, a.Severity)
	})

	t.Run("below baseline is a drop", func(t *testing.T) {
		a := EvaluateDeviation(20, 100, 50)
		require.NotNil(t, a)
		assert.Equal(t, TypeDrop, a.Type)
		assert.Equal(t, 80.0, a.DeviationPct)
		assert.Equal(t, SeverityWarning, a.Severity)
	})

	t.Run("zero baseline yields nothing", func(t *testing.T) {
		assert.Nil(t, EvaluateDeviation(500, 0, 50))
	})
}

func TestEvaluateRatio(t *testing.T) {
	t.Run("spike", func(t *testing.T) {
		a := EvaluateRatio(350, 100)
		require.NotNil(t, a)
		assert.Equal(t, TypeSpike, a.Type)
		assert.InDelta(t, 250.0, a.DeviationPct, 1e-9)
		assert.Equal(t, SeverityCritical, a.Severity)
	})

	t.Run("drop", func(t *testing.T) {
		a := EvaluateRatio(20, 100)
		require.NotNil(t, a)
		assert.Equal(t, TypeDrop, a.Type)
		assert.InDelta(t, 80.0, a.DeviationPct, 1e-9)
		assert.Equal(t, SeverityWarning, a.Severity)
	})

	t.Run("ratio inside the band is normal", func(t *testing.T) {
		assert.Nil(t, EvaluateRatio(150, 100))
		assert.Nil(t, EvaluateRatio(40, 100))
		// Boundary ratios are not anomalous.
		assert.Nil(t, EvaluateRatio(300, 100))
		assert.Nil(t, EvaluateRatio(30, 100))
	})

	t.Run("zero baseline yields nothing", func(t *testing.T) {
		assert.Nil(t, EvaluateRatio(500, 0))
	})
}

func TestEvaluateTrend(t *testing.T) {
	t.Run("rising", func(t *testing.T) {
		a := EvaluateTrend([]*float64{fp(100), fp(110), fp(125), fp(140), fp(160), fp(180), fp(200)})
		require.NotNil(t, a)
		assert.Equal(t, TypeTrend, a.Type)
		assert.Equal(t, TrendIncreasing, a.Direction)
		assert.InDelta(t, 100.0, a.DeviationPct, 1e-9)
		assert.Equal(t, 100.0, a.Expected)
		assert.Equal(t, 200.0, a.Actual)
	})

	t.Run("falling", func(t *testing.T) {
		a := EvaluateTrend([]*float64{fp(200), fp(150), fp(100)})
		require.NotNil(t, a)
		assert.Equal(t, TrendDecreasing, a.Direction)
		assert.InDelta(t, 50.0, a.DeviationPct, 1e-9)
	})

	t.Run("missing days are skipped", func(t *testing.T) {
		a := EvaluateTrend([]*float64{fp(100), nil, fp(120), nil, fp(150)})
		require.NotNil(t, a)
		assert.Equal(t, TrendIncreasing, a.Direction)
		assert.InDelta(t, 50.0, a.DeviationPct, 1e-9)
	})

	t.Run("too few samples", func(t *testing.T) {
		assert.Nil(t, EvaluateTrend([]*float64{fp(100), nil, fp(150)}))
	})

	t.Run("non-monotonic series", func(t *testing.T) {
		assert.Nil(t, EvaluateTrend([]*float64{fp(100), fp(150), fp(120)}))
	})

	t.Run("flat step breaks monotonicity", func(t *testing.T) {
		assert.Nil(t, EvaluateTrend([]*float64{fp(100), fp(100), fp(150)}))
	})

	t.Run("change below minimum", func(t *testing.T) {
		assert.Nil(t, EvaluateTrend([]*float64{fp(100), fp(105), fp(110)}))
	})
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityInfo, SeverityFor(49.9))
	assert.Equal(t, SeverityWarning, SeverityFor(50))
	assert.Equal(t, SeverityWarning, SeverityFor(99.9))
	assert.Equal(t, SeverityCritical, SeverityFor(100))
	assert.Equal(t, SeverityCritical, SeverityFor(250))
}
