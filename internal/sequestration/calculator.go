package sequestration

import "math"

const (
	// CarbonFraction is the carbon share of dry above-ground biomass (IPCC default).
	CarbonFraction = 0.47
	// CO2ToCarbonRatio is the molecular mass ratio of CO2 to C.
	CO2ToCarbonRatio = 44.0 / 12.0
)

// Sequestration holds unrounded biomass, carbon and CO2 figures in tonnes.
type Sequestration struct {
	Biomass float64
	Carbon  float64
	CO2     float64
}

// Scale multiplies every figure by areaHa.
func (s Sequestration) Scale(areaHa float64) Sequestration {
	return Sequestration{Biomass: s.Biomass * areaHa, Carbon: s.Carbon * areaHa, CO2: s.CO2 * areaHa}
}

// Calculator converts biomass summaries into carbon and CO2 equivalents.
type Calculator struct {
	carbonFraction float64
	co2Ratio       float64
}

// NewCalculator returns a calculator using the IPCC default constants.
func NewCalculator() *Calculator {
	return &Calculator{carbonFraction: CarbonFraction, co2Ratio: CO2ToCarbonRatio}
}

// Convert turns a per-hectare biomass figure into carbon and CO2.
func (c *Calculator) Convert(biomassPerHa float64) Sequestration {
	biomass := math.Max(biomassPerHa, 0)
	carbon := biomass * c.carbonFraction
	return Sequestration{Biomass: biomass, Carbon: carbon, CO2: carbon * c.co2Ratio}
}

// Point builds the output record for one measurement. Area is assumed to
// have been validated by the caller.
func (c *Calculator) Point(m IndexMeasurement, summary ConfidenceSummary, areaHa float64) CarbonEstimatePoint {
	perHa := c.Convert(summary.Median)
	total := perHa.Scale(areaHa)

	return CarbonEstimatePoint{
		Date:            m.Date,
		IndexValue:      round4(m.Value),
		BiomassPerHa:    round4(perHa.Biomass),
		BiomassTotal:    round4(total.Biomass),
		CarbonPerHa:     round4(perHa.Carbon),
		CarbonTotal:     round4(total.Carbon),
		CO2PerHa:        round4(perHa.CO2),
		CO2Total:        round4(total.CO2),
		ConfidenceScore: round4(summary.ConfidenceScore),
		IntervalLower:   round4(math.Max(summary.IntervalLower, 0)),
		IntervalUpper:   round4(math.Max(summary.IntervalUpper, 0)),
		StdDev:          round4(summary.StdDev),
	}
}

// Aggregator folds per-point results into series statistics. Values are
// accumulated at full precision and rounded only in Stats.
type Aggregator struct {
	calc *Calculator

	count      int
	biomassSum float64
	indexSum   float64
	indexMin   float64
	indexMax   float64
	scoreSum   float64
	stdDevSum  float64
}

// NewAggregator creates an empty aggregator.
func NewAggregator(calc *Calculator) *Aggregator {
	return &Aggregator{calc: calc, indexMin: math.Inf(1), indexMax: math.Inf(-1)}
}

// Add folds one measurement and its summary.
func (a *Aggregator) Add(indexValue float64, summary ConfidenceSummary) {
	a.count++
	a.biomassSum += math.Max(summary.Median, 0)
	a.indexSum += indexValue
	a.indexMin = math.Min(a.indexMin, indexValue)
	a.indexMax = math.Max(a.indexMax, indexValue)
	a.scoreSum += summary.ConfidenceScore
	a.stdDevSum += summary.StdDev
}

// Stats returns the aggregate for areaHa. Totals are the mean per-hectare
// stock over the series multiplied by area, not a sum over dates.
func (a *Aggregator) Stats(areaHa float64) AggregateStats {
	if a.count == 0 {
		return AggregateStats{}
	}

	n := float64(a.count)
	mean := a.calc.Convert(a.biomassSum / n)
	total := mean.Scale(areaHa)

	return AggregateStats{
		MeanBiomassPerHa:    round4(mean.Biomass),
		TotalBiomass:        round4(total.Biomass),
		MeanCarbonPerHa:     round4(mean.Carbon),
		TotalCarbon:         round4(total.Carbon),
		TotalCO2:            round4(total.CO2),
		MinIndex:            round4(a.indexMin),
		MaxIndex:            round4(a.indexMax),
		MeanIndex:           round4(a.indexSum / n),
		MeanConfidenceScore: round4(a.scoreSum / n),
		MeanStdDev:          round4(a.stdDevSum / n),
		PointCount:          a.count,
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
