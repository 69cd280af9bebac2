package domain

import "math"

// Ratio bounds for event volume checks. A current/baseline ratio above
// SpikeRatio or below DropRatio is anomalous.
const (
	SpikeRatio = 3.0
	DropRatio  = 0.3
)

// Trend detection parameters: how many daily means to inspect, how many of
// them must exist, and the minimum total change worth reporting.
const (
	TrendDays         = 7
	TrendMinSamples   = 3
	TrendMinChangePct = 20.0
)

// Assessment is the outcome of one detection check before it is persisted.
type Assessment struct {
	Type         string
	DeviationPct float64
	Expected     float64
	Actual       float64
	Severity     string
	Direction    string
	DailySeries  []*float64
}

// EvaluateDeviation compares an observed mean against its baseline. It
// returns nil when the baseline is unusable or the deviation stays below
// thresholdPct; hitting the threshold exactly is reported. A value above
// baseline is a spike, below it a drop.
func EvaluateDeviation(actual, expected, thresholdPct float64) *Assessment {
	if expected == 0 || math.IsNaN(expected) || math.IsInf(expected, 0) {
		return nil
	}
	deviation := math.Abs(actual-expected) / expected * 100
	if deviation < thresholdPct {
		return nil
	}
	anomalyType := TypeSpike
	if actual < expected {
		anomalyType = TypeDrop
	}
	return &Assessment{
		Type:         anomalyType,
		DeviationPct: deviation,
		Expected:     expected,
		Actual:       actual,
		Severity:     SeverityFor(deviation),
	}
}

// EvaluateRatio checks an event count against its baseline count. A zero
// baseline yields nil: there is nothing meaningful to compare against.
func EvaluateRatio(current, baseline float64) *Assessment {
	if baseline == 0 {
		return nil
	}
	ratio := current / baseline

	var anomalyType string
	var deviation float64
	switch {
	case ratio > SpikeRatio:
		anomalyType = TypeSpike
		deviation = (ratio - 1) * 100
	case ratio < DropRatio:
		anomalyType = TypeDrop
		deviation = (1 - ratio) * 100
	default:
		return nil
	}

	return &Assessment{
		Type:         anomalyType,
		DeviationPct: deviation,
		Expected:     baseline,
		Actual:       current,
		Severity:     SeverityFor(deviation),
	}
}

// EvaluateTrend inspects daily means ordered oldest to newest. Days with no
// data are nil. A trend is reported when the non-null values are strictly
// monotonic and the total change is at least TrendMinChangePct.
func EvaluateTrend(dailyMeans []*float64) *Assessment {
	present := make([]float64, 0, len(dailyMeans))
	for _, v := range dailyMeans {
		if v != nil {
			present = append(present, *v)
		}
	}
	if len(present) < TrendMinSamples {
		return nil
	}

	increasing, decreasing := true, true
	for i := 1; i < len(present); i++ {
		if present[i] <= present[i-1] {
			increasing = false
		}
		if present[i] >= present[i-1] {
			decreasing = false
		}
	}
	if !increasing && !decreasing {
		return nil
	}

	first, last := present[0], present[len(present)-1]
	if first == 0 {
		return nil
	}
	changePct := math.Abs(last-first) / math.Abs(first) * 100
	if changePct < TrendMinChangePct {
		return nil
	}

	direction := TrendIncreasing
	if decreasing {
		direction = TrendDecreasing
	}
	return &Assessment{
		Type:         TypeTrend,
		DeviationPct: changePct,
		Expected:     first,
		Actual:       last,
		Severity:     SeverityFor(changePct),
		Direction:    direction,
		DailySeries:  dailyMeans,
	}
}
