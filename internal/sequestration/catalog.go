package sequestration

import (
	"fmt"
	"math"
	"sort"
)

// LandCoverClass is a Dynamic World land-cover label.
type LandCoverClass string

// Land-cover classes emitted by the upstream classifier (IDs 0-8).
const (
	ClassWater             LandCoverClass = "Water"
	ClassTrees             LandCoverClass = "Trees"
	ClassGrass             LandCoverClass = "Grass"
	ClassFloodedVegetation LandCoverClass = "Flooded Vegetation"
	ClassCrops             LandCoverClass = "Crops"
	ClassShrubScrub        LandCoverClass = "Shrub/Scrub"
	ClassBuiltArea         LandCoverClass = "Built Area"
	ClassBareGround        LandCoverClass = "Bare Ground"
	ClassSnowIce           LandCoverClass = "Snow/Ice"
)

var classIDs = map[LandCoverClass]int{
	ClassWater:             0,
	ClassTrees:             1,
	ClassGrass:             2,
	ClassFloodedVegetation: 3,
	ClassCrops:             4,
	ClassShrubScrub:        5,
	ClassBuiltArea:         6,
	ClassBareGround:        7,
	ClassSnowIce:           8,
}

// ID returns the Dynamic World class ID, or -1 for an unknown label.
func (c LandCoverClass) ID() int {
	if id, ok := classIDs[c]; ok {
		return id
	}
	return -1
}

// ClassByID maps a Dynamic World class ID back to its label.
func ClassByID(id int) (LandCoverClass, bool) {
	for class, classID := range classIDs {
		if classID == id {
			return class, true
		}
	}
	return "", false
}

// AllometricParameters is the coefficient distribution for AGB = a * NDVI^b.
// All-zero parameters describe a class that carries no biomass.
type AllometricParameters struct {
	CoefficientMean float64 `json:"a_mean"`
	CoefficientStd  float64 `json:"a_std"`
	ExponentMean    float64 `json:"b_mean"`
	ExponentStd     float64 `json:"b_std"`
}

// Validate checks that every field is finite and non-negative.
func (p AllometricParameters) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"a_mean", p.CoefficientMean},
		{"a_std", p.CoefficientStd},
		{"b_mean", p.ExponentMean},
		{"b_std", p.ExponentStd},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return &ParameterError{Field: f.name, Value: f.value}
		}
	}
	return nil
}

// IsBarren reports whether the parameters deterministically yield zero biomass.
func (p AllometricParameters) IsBarren() bool {
	return p == AllometricParameters{}
}

// Catalog maps land-cover classes to allometric parameter distributions.
// A Catalog is immutable once built and safe for concurrent use.
type Catalog struct {
	entries  map[LandCoverClass]AllometricParameters
	fallback AllometricParameters
}

// NewCatalog validates entries and the fallback distribution.
func NewCatalog(entries map[LandCoverClass]AllometricParameters, fallback AllometricParameters) (*Catalog, error) {
	if err := fallback.Validate(); err != nil {
		return nil, err
	}

	copied := make(map[LandCoverClass]AllometricParameters, len(entries))
	for class, params := range entries {
		if class.ID() < 0 {
			return nil, fmt.Errorf("catalog entry %q is not a recognised land-cover class", class)
		}
		if err := params.Validate(); err != nil {
			paramErr := err.(*ParameterError)
			paramErr.Class = string(class)
			return nil, paramErr
		}
		copied[class] = params
	}

	return &Catalog{entries: copied, fallback: fallback}, nil
}

// Lookup returns the parameters for class.
func (c *Catalog) Lookup(class LandCoverClass) (AllometricParameters, bool) {
	params, ok := c.entries[class]
	return params, ok
}

// Default returns the pan-tropical distribution used without a classification.
func (c *Catalog) Default() AllometricParameters {
	return c.fallback
}

// Classes returns the catalogued classes ordered by class ID.
func (c *Catalog) Classes() []LandCoverClass {
	classes := make([]LandCoverClass, 0, len(c.entries))
	for class := range c.entries {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID() < classes[j].ID() })
	return classes
}

// Tier 1 pan-tropical distribution (Chave et al. 2014).
var defaultParameters = AllometricParameters{
	CoefficientMean: 142.9,
	CoefficientStd:  5.2,
	ExponentMean:    1.60,
	ExponentStd:     0.08,
}

var classParameters = map[LandCoverClass]AllometricParameters{
	ClassWater:             {},
	ClassTrees:             {CoefficientMean: 185.5, CoefficientStd: 15.2, ExponentMean: 1.75, ExponentStd: 0.12},
	ClassGrass:             {CoefficientMean: 68.4, CoefficientStd: 8.1, ExponentMean: 1.30, ExponentStd: 0.10},
	ClassFloodedVegetation: {CoefficientMean: 110.2, CoefficientStd: 12.5, ExponentMean: 1.55, ExponentStd: 0.11},
	ClassCrops:             {CoefficientMean: 95.3, CoefficientStd: 10.4, ExponentMean: 1.45, ExponentStd: 0.09},
	ClassShrubScrub:        {CoefficientMean: 78.6, CoefficientStd: 9.3, ExponentMean: 1.40, ExponentStd: 0.10},
	ClassBuiltArea:         {CoefficientMean: 22.5, CoefficientStd: 4.8, ExponentMean: 1.10, ExponentStd: 0.08},
	ClassBareGround:        {CoefficientMean: 8.2, CoefficientStd: 2.1, ExponentMean: 1.05, ExponentStd: 0.06},
	ClassSnowIce:           {},
}

var defaultCatalog = mustCatalog(classParameters, defaultParameters)

func mustCatalog(entries map[LandCoverClass]AllometricParameters, fallback AllometricParameters) *Catalog {
	catalog, err := NewCatalog(entries, fallback)
	if err != nil {
		panic(err)
	}
	return catalog
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}
