package sequestration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculatorPoint(t *testing.T) {
	calc := NewCalculator()
	date := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	point := calc.Point(
		IndexMeasurement{Date: date, Value: 0.61234},
		ConfidenceSummary{Median: 100, IntervalLower: 80, IntervalUpper: 120.123456, StdDev: 10, ConfidenceScore: 90},
		10,
	)

	assert.Equal(t, date, point.Date)
	assert.Equal(t, 0.6123, point.IndexValue)
	assert.Equal(t, 100.0, point.BiomassPerHa)
	assert.Equal(t, 1000.0, point.BiomassTotal)
	assert.Equal(t, 47.0, point.CarbonPerHa)
	assert.Equal(t, 470.0, point.CarbonTotal)
	assert.Equal(t, 172.3333, point.CO2PerHa)
	assert.Equal(t, 1723.3333, point.CO2Total)
	assert.Equal(t, 90.0, point.ConfidenceScore)
	assert.Equal(t, 80.0, point.IntervalLower)
	assert.Equal(t, 120.1235, point.IntervalUpper)
	assert.Equal(t, 10.0, point.StdDev)
}

func TestCalculatorConversionRatios(t *testing.T) {
	calc := NewCalculator()

	for _, median := range []float64{0, 0.0001, 3.3, 47.123, 185.5} {
		for _, area := range []float64{0.5, 1, 37.2, 1000} {
			point := calc.Point(IndexMeasurement{Value: 0.5}, ConfidenceSummary{Median: median}, area)

			assert.InDelta(t, point.BiomassTotal*CarbonFraction, point.CarbonTotal, 1e-3)
			assert.InDelta(t, point.CarbonTotal*CO2ToCarbonRatio, point.CO2Total, 1e-3)
			assert.GreaterOrEqual(t, point.CO2Total, 0.0)
		}
	}
}

func TestCalculatorFloorsNegativeBiomass(t *testing.T) {
	s := NewCalculator().Convert(-5)

	assert.Zero(t, s.Biomass)
	assert.Zero(t, s.Carbon)
	assert.Zero(t, s.CO2)
}

func TestAggregator(t *testing.T) {
	agg := NewAggregator(NewCalculator())
	agg.Add(0.4, ConfidenceSummary{Median: 10, StdDev: 2, ConfidenceScore: 80})
	agg.Add(0.6, ConfidenceSummary{Median: 30, StdDev: 4, ConfidenceScore: 90})

	stats := agg.Stats(5)

	assert.Equal(t, 20.0, stats.MeanBiomassPerHa)
	assert.Equal(t, 100.0, stats.TotalBiomass)
	assert.Equal(t, 9.4, stats.MeanCarbonPerHa)
	assert.Equal(t, 47.0, stats.TotalCarbon)
	assert.Equal(t, 172.3333, stats.TotalCO2)
	assert.Equal(t, 0.4, stats.MinIndex)
	assert.Equal(t, 0.6, stats.MaxIndex)
	assert.Equal(t, 0.5, stats.MeanIndex)
	assert.Equal(t, 85.0, stats.MeanConfidenceScore)
	assert.Equal(t, 3.0, stats.MeanStdDev)
	assert.Equal(t, 2, stats.PointCount)
}

func TestAggregatorEmpty(t *testing.T) {
	assert.Equal(t, AggregateStats{}, NewAggregator(NewCalculator()).Stats(10))
}
