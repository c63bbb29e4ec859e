package sequestration

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func scenarioRequest() EstimateRequest {
	return EstimateRequest{
		Series: []IndexMeasurement{
			{Date: date("2023-01-15"), Value: 0.45},
			{Date: date("2023-03-15"), Value: 0.58},
		},
		AreaHa:    100,
		StartDate: date("2023-01-01"),
		EndDate:   date("2023-12-31"),
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithIterations(2000), WithSeed(20230115)}, opts...)
	engine, err := NewEngine(opts...)
	require.NoError(t, err)
	return engine
}

func assertReportInvariants(t *testing.T, report *AggregateReport) {
	t.Helper()
	for _, p := range report.Points {
		assert.GreaterOrEqual(t, p.ConfidenceScore, 0.0)
		assert.LessOrEqual(t, p.ConfidenceScore, 100.0)
		assert.LessOrEqual(t, p.IntervalLower, p.BiomassPerHa)
		assert.LessOrEqual(t, p.BiomassPerHa, p.IntervalUpper)
		assert.GreaterOrEqual(t, p.BiomassPerHa, 0.0)
		assert.InDelta(t, p.BiomassTotal*CarbonFraction, p.CarbonTotal, 1e-3)
		assert.InDelta(t, p.CarbonTotal*CO2ToCarbonRatio, p.CO2Total, 1e-3)
	}
}

func TestEstimateWithoutLandCover(t *testing.T) {
	report, err := newTestEngine(t).Estimate(context.Background(), scenarioRequest())
	require.NoError(t, err)

	require.Len(t, report.Points, 2)
	assert.Equal(t, date("2023-01-15"), report.Points[0].Date)
	assert.Equal(t, date("2023-03-15"), report.Points[1].Date)
	assertReportInvariants(t, report)

	meta := report.Metadata
	assert.Nil(t, meta.LandUseClass)
	assert.Equal(t, "default/fallback", meta.ResolvedClassLabel())
	assert.True(t, meta.Fallback)
	assert.Equal(t, "land cover not supplied", meta.FallbackReason)
	assert.Equal(t, "IPCC Tier 1", meta.Tier)
	assert.Contains(t, meta.Assumptions[0], "Tier 1")
	assert.Equal(t, ModelVersion, meta.ModelVersion)
	assert.Equal(t, 2000, meta.Iterations)
	assert.Equal(t, "Monte Carlo", meta.UncertaintyMethod)
	assert.Equal(t, DefaultPercentiles, meta.IntervalPercentiles)
	assert.Equal(t, uint64(20230115), meta.Seed)
	assert.Equal(t, DefaultCatalog().Default(), meta.Parameters)

	stats := report.Stats
	assert.Equal(t, 2, stats.PointCount)
	assert.Equal(t, 0.45, stats.MinIndex)
	assert.Equal(t, 0.58, stats.MaxIndex)
	assert.InDelta(t, 0.515, stats.MeanIndex, 1e-9)
	assert.InDelta(t, stats.TotalCarbon*CO2ToCarbonRatio, stats.TotalCO2, 1e-3)
	assert.InDelta(t, stats.MeanBiomassPerHa*100, stats.TotalBiomass, 1e-2)
}

func TestEstimateWithTreesLandCover(t *testing.T) {
	engine := newTestEngine(t)

	baseline, err := engine.Estimate(context.Background(), scenarioRequest())
	require.NoError(t, err)

	req := scenarioRequest()
	req.LandCover = &LandCoverSummary{
		DominantClass: "Trees",
		TotalAreaHa:   100,
		Classes:       []LandCoverShare{{ID: 1, Name: "Trees", AreaHa: 100, Percentage: 100}},
	}
	report, err := engine.Estimate(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, report.Metadata.LandUseClass)
	assert.Equal(t, ClassTrees, *report.Metadata.LandUseClass)
	assert.False(t, report.Metadata.Fallback)
	assert.Equal(t, "IPCC Tier 2", report.Metadata.Tier)
	assert.Contains(t, report.Metadata.Assumptions[0], "Tier 2")
	assert.Greater(t, report.Stats.MeanBiomassPerHa, baseline.Stats.MeanBiomassPerHa)
	assertReportInvariants(t, report)
}

func TestEstimateInvalidLandCoverFallsBack(t *testing.T) {
	req := scenarioRequest()
	req.LandCover = &LandCoverSummary{DominantClass: "Martian Regolith"}

	report, err := newTestEngine(t).Estimate(context.Background(), req)
	require.NoError(t, err)

	assert.Nil(t, report.Metadata.LandUseClass)
	assert.True(t, report.Metadata.Fallback)
	assert.Contains(t, report.Metadata.FallbackReason, "unknown land-cover class")
	assert.Len(t, report.Points, 2)
}

func TestEstimateBarrenClass(t *testing.T) {
	req := scenarioRequest()
	req.LandCover = &LandCoverSummary{DominantClass: "Water"}

	report, err := newTestEngine(t).Estimate(context.Background(), req)
	require.NoError(t, err)

	for _, p := range report.Points {
		assert.Zero(t, p.BiomassPerHa)
		assert.Zero(t, p.CO2Total)
		assert.Equal(t, 100.0, p.ConfidenceScore)
	}
	assert.Zero(t, report.Stats.TotalCO2)
}

func TestEstimateValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*EstimateRequest)
		message string
		details int
	}{
		{
			name:    "empty series",
			mutate:  func(r *EstimateRequest) { r.Series = nil },
			message: "no measurements",
		},
		{
			name:    "negative area",
			mutate:  func(r *EstimateRequest) { r.AreaHa = -10 },
			message: "area must be positive",
		},
		{
			name:    "zero area",
			mutate:  func(r *EstimateRequest) { r.AreaHa = 0 },
			message: "area must be positive",
		},
		{
			name:    "NaN area",
			mutate:  func(r *EstimateRequest) { r.AreaHa = math.NaN() },
			message: "area must be positive",
		},
		{
			name:    "end before start",
			mutate:  func(r *EstimateRequest) { r.StartDate, r.EndDate = r.EndDate, r.StartDate },
			message: "invalid date range",
			details: 1,
		},
		{
			name:    "index above range",
			mutate:  func(r *EstimateRequest) { r.Series[1].Value = 1.5 },
			message: "index out of range",
			details: 1,
		},
		{
			name: "every offending index reported",
			mutate: func(r *EstimateRequest) {
				r.Series[0].Value = -1.2
				r.Series[1].Value = math.NaN()
			},
			message: "index out of range",
			details: 2,
		},
		{
			name: "negative uncertainty",
			mutate: func(r *EstimateRequest) {
				std := -0.1
				r.Series[0].Uncertainty = &std
			},
			message: "index uncertainty must be non-negative",
			details: 1,
		},
	}

	engine := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := scenarioRequest()
			tt.mutate(&req)

			report, err := engine.Estimate(context.Background(), req)

			assert.Nil(t, report)
			var calcErr *CalculationError
			require.ErrorAs(t, err, &calcErr)
			assert.Equal(t, tt.message, calcErr.Message)
			assert.Len(t, calcErr.Details, tt.details)
			assert.True(t, IsValidationError(err))
			assert.False(t, IsInternalError(err))
		})
	}
}

func TestEstimateBoundaryIndexValues(t *testing.T) {
	req := scenarioRequest()
	req.Series = []IndexMeasurement{
		{Date: date("2023-02-01"), Value: -1},
		{Date: date("2023-03-01"), Value: 0},
		{Date: date("2023-04-01"), Value: 1},
	}

	report, err := newTestEngine(t).Estimate(context.Background(), req)
	require.NoError(t, err)

	assert.Zero(t, report.Points[0].BiomassPerHa)
	assert.Greater(t, report.Points[2].BiomassPerHa, 0.0)
	assertReportInvariants(t, report)
}

func TestEstimateSameSeedIsIdempotent(t *testing.T) {
	req := scenarioRequest()
	req.LandCover = &LandCoverSummary{DominantClass: "Crops"}

	first, err := newTestEngine(t, WithWorkers(1)).Estimate(context.Background(), req)
	require.NoError(t, err)
	second, err := newTestEngine(t, WithWorkers(8)).Estimate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEstimateUnseededStaysConsistent(t *testing.T) {
	engine, err := NewEngine(WithIterations(2000))
	require.NoError(t, err)

	first, err := engine.Estimate(context.Background(), scenarioRequest())
	require.NoError(t, err)
	second, err := engine.Estimate(context.Background(), scenarioRequest())
	require.NoError(t, err)

	assertReportInvariants(t, first)
	assertReportInvariants(t, second)
	assert.NotEqual(t, first.Metadata.Seed, second.Metadata.Seed)
	for i := range first.Points {
		ratio := first.Points[i].BiomassPerHa / second.Points[i].BiomassPerHa
		assert.InDelta(t, 1.0, ratio, 0.5)
	}
}

func TestEstimateUsesSuppliedUncertainty(t *testing.T) {
	tight, wide := 0.0, 0.3
	req := scenarioRequest()
	req.Series[0].Uncertainty = &tight
	req.Series[1].Uncertainty = &wide
	req.Series[1].Value = 0.45

	report, err := newTestEngine(t).Estimate(context.Background(), req)
	require.NoError(t, err)

	assert.Less(t, report.Points[0].StdDev, report.Points[1].StdDev)
	assert.Greater(t, report.Points[0].ConfidenceScore, report.Points[1].ConfidenceScore)
}

func TestEstimateSimulationFailureAborts(t *testing.T) {
	overflow := AllometricParameters{CoefficientMean: math.MaxFloat64, CoefficientStd: math.MaxFloat64, ExponentMean: 1}
	catalog, err := NewCatalog(map[LandCoverClass]AllometricParameters{ClassTrees: overflow}, defaultParameters)
	require.NoError(t, err)

	req := scenarioRequest()
	req.LandCover = &LandCoverSummary{DominantClass: "Trees"}

	report, err := newTestEngine(t, WithCatalog(catalog)).Estimate(context.Background(), req)

	assert.Nil(t, report)
	var simErr *SimulationError
	require.ErrorAs(t, err, &simErr)
	assert.False(t, simErr.Date.IsZero())
	assert.True(t, IsInternalError(err))
}

func TestEstimateHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestEngine(t).Estimate(ctx, scenarioRequest())

	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEngineRejectsInvalidOptions(t *testing.T) {
	_, err := NewEngine(WithIterations(1))
	var calcErr *CalculationError
	require.ErrorAs(t, err, &calcErr)
	assert.Equal(t, "iterations", calcErr.Field)

	_, err = NewEngine(WithPercentiles(90, 10))
	require.ErrorAs(t, err, &calcErr)
	assert.Equal(t, "percentiles", calcErr.Field)

	_, err = NewEngine(WithDefaultUncertainty(-1))
	require.ErrorAs(t, err, &calcErr)
	assert.Equal(t, "default_uncertainty", calcErr.Field)
}

func TestEstimateDoesNotRetainReport(t *testing.T) {
	engine := newTestEngine(t)

	first, err := engine.Estimate(context.Background(), scenarioRequest())
	require.NoError(t, err)
	first.Points[0].CO2Total = -1

	second, err := engine.Estimate(context.Background(), scenarioRequest())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, second.Points[0].CO2Total, 0.0)
}
