package sequestration

import "time"

// DateLayout is the calendar date format used for measurement dates.
const DateLayout = "2006-01-02"

// IndexMeasurement is a single vegetation index reading for the parcel.
type IndexMeasurement struct {
	Date        time.Time `json:"date"`
	Value       float64   `json:"ndvi"`
	Uncertainty *float64  `json:"ndvi_std,omitempty"` // nil uses the engine default
}

// LandCoverShare is one class of a land-cover breakdown.
type LandCoverShare struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	AreaHa     float64 `json:"area_ha"`
	Percentage float64 `json:"percentage"`
}

// LandCoverSummary is the classification result supplied alongside a series.
type LandCoverSummary struct {
	DominantClass string           `json:"dominant_class"`
	TotalAreaHa   float64          `json:"total_area_ha"`
	Classes       []LandCoverShare `json:"classes"`
}

// EstimateRequest is the input to Engine.Estimate.
type EstimateRequest struct {
	Series    []IndexMeasurement
	AreaHa    float64
	StartDate time.Time
	EndDate   time.Time
	LandCover *LandCoverSummary
}

// ConfidenceSummary reduces a simulated biomass distribution.
type ConfidenceSummary struct {
	Median          float64 `json:"median"`
	IntervalLower   float64 `json:"ci_lower"`
	IntervalUpper   float64 `json:"ci_upper"`
	StdDev          float64 `json:"std_dev"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// CarbonEstimatePoint is the per-date result. Per-hectare and total figures
// are rounded to four decimals.
type CarbonEstimatePoint struct {
	Date            time.Time `json:"date"`
	IndexValue      float64   `json:"ndvi"`
	BiomassPerHa    float64   `json:"agb_tonnes_ha"`
	BiomassTotal    float64   `json:"agb_total_tonnes"`
	CarbonPerHa     float64   `json:"carbon_tonnes_ha"`
	CarbonTotal     float64   `json:"carbon_total_tonnes"`
	CO2PerHa        float64   `json:"co2_tonnes_ha"`
	CO2Total        float64   `json:"co2_total_tonnes"`
	ConfidenceScore float64   `json:"confidence_score"`
	IntervalLower   float64   `json:"ci_lower"`
	IntervalUpper   float64   `json:"ci_upper"`
	StdDev          float64   `json:"std_dev"`
}

// AggregateStats summarises a series of points.
type AggregateStats struct {
	MeanBiomassPerHa    float64 `json:"mean_agb_tonnes_ha"`
	TotalBiomass        float64 `json:"total_agb_tonnes"`
	MeanCarbonPerHa     float64 `json:"mean_carbon_tonnes_ha"`
	TotalCarbon         float64 `json:"total_carbon_tonnes"`
	TotalCO2            float64 `json:"total_co2_tonnes"`
	MinIndex            float64 `json:"min_ndvi"`
	MaxIndex            float64 `json:"max_ndvi"`
	MeanIndex           float64 `json:"mean_ndvi"`
	MeanConfidenceScore float64 `json:"mean_confidence_score"`
	MeanStdDev          float64 `json:"mean_std_dev"`
	PointCount          int     `json:"point_count"`
}

// Methodology records how a report was produced.
type Methodology struct {
	ModelName           string               `json:"model_name"`
	ModelVersion        string               `json:"model_version"`
	Tier                string               `json:"tier"`
	LandUseClass        *LandCoverClass      `json:"land_use_class"`
	Fallback            bool                 `json:"fallback"`
	FallbackReason      string               `json:"fallback_reason,omitempty"`
	Parameters          AllometricParameters `json:"allometric_parameters"`
	UncertaintyMethod   string               `json:"uncertainty_method"`
	Iterations          int                  `json:"monte_carlo_iterations"`
	IntervalPercentiles [2]float64           `json:"interval_percentiles"`
	CarbonFraction      float64              `json:"carbon_fraction"`
	CO2ConversionFactor float64              `json:"co2_conversion_factor"`
	Seed                uint64               `json:"seed"`
	Assumptions         []string             `json:"assumptions"`
}

// ResolvedClassLabel returns the class used, or "default/fallback".
func (m Methodology) ResolvedClassLabel() string {
	if m.LandUseClass == nil {
		return "default/fallback"
	}
	return string(*m.LandUseClass)
}

// AggregateReport is the engine's output. The engine keeps no reference to it.
type AggregateReport struct {
	StartDate time.Time             `json:"start_date"`
	EndDate   time.Time             `json:"end_date"`
	AreaHa    float64               `json:"area_ha"`
	Points    []CarbonEstimatePoint `json:"data_points"`
	Stats     AggregateStats        `json:"statistics"`
	Metadata  Methodology           `json:"metadata"`
}
