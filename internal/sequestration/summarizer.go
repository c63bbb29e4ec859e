package sequestration

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultPercentiles is the 95% empirical interval.
var DefaultPercentiles = [2]float64{2.5, 97.5}

// Summarizer reduces a simulated distribution to a ConfidenceSummary.
type Summarizer struct {
	lower float64
	upper float64
}

// NewSummarizer creates a summarizer for the percentile pair (0-100).
func NewSummarizer(percentiles [2]float64) (*Summarizer, error) {
	lo, hi := percentiles[0], percentiles[1]
	if !(lo >= 0 && lo <= hi && hi <= 100) {
		return nil, fmt.Errorf("invalid percentile pair %v", percentiles)
	}
	return &Summarizer{lower: lo / 100, upper: hi / 100}, nil
}

// Summarize returns the median, interval, population standard deviation and
// confidence score of samples. samples is not modified.
func (s *Summarizer) Summarize(samples []float64) (ConfidenceSummary, error) {
	if len(samples) == 0 {
		return ConfidenceSummary{}, &SimulationError{Cause: "empty sample distribution"}
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	for _, v := range sorted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ConfidenceSummary{}, &SimulationError{Cause: "non-finite value in sample distribution"}
		}
	}

	median := stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	lower := stat.Quantile(s.lower, stat.LinInterp, sorted, nil)
	upper := stat.Quantile(s.upper, stat.LinInterp, sorted, nil)

	// Mean rounding leaves a tiny residual on constant input.
	var std float64
	if sorted[0] != sorted[len(sorted)-1] {
		std = stat.PopStdDev(sorted, nil)
	}

	return ConfidenceSummary{
		Median:          median,
		IntervalLower:   math.Min(lower, median),
		IntervalUpper:   math.Max(upper, median),
		StdDev:          std,
		ConfidenceScore: confidenceScore(median, std),
	}, nil
}

// confidenceScore is 100*(1 - CV) clamped to [0, 100].
func confidenceScore(median, std float64) float64 {
	if median <= 0 || std == 0 {
		return 100
	}
	return clamp(100*(1-std/median), 0, 100)
}
