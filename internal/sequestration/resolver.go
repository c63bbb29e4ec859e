package sequestration

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

// Resolution is the outcome of selecting allometric parameters. When Class is
// nil the default distribution was used and Reason says why.
type Resolution struct {
	Class      *LandCoverClass
	Parameters AllometricParameters
	Fallback   bool
	Reason     string
}

// Resolver selects land-cover specific parameters from a catalog.
type Resolver struct {
	catalog *Catalog
	logger  *zap.Logger
}

// NewResolver creates a resolver over catalog.
func NewResolver(catalog *Catalog, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{catalog: catalog, logger: logger}
}

// Resolve never fails: a missing or malformed summary falls back to the
// catalog default with the reason recorded.
func (r *Resolver) Resolve(summary *LandCoverSummary) Resolution {
	if summary == nil {
		return r.fallback("land cover not supplied")
	}

	class, err := ValidateLandCover(summary, r.catalog)
	if err != nil {
		r.logger.Warn("Land cover rejected, using default allometric parameters",
			zap.String("dominant_class", summary.DominantClass),
			zap.Error(err))
		return r.fallback(err.(*LandCoverError).Reason)
	}

	params, _ := r.catalog.Lookup(class)
	return Resolution{Class: &class, Parameters: params}
}

func (r *Resolver) fallback(reason string) Resolution {
	return Resolution{
		Parameters: r.catalog.Default(),
		Fallback:   true,
		Reason:     reason,
	}
}

// ValidateLandCover checks the summary is well formed and its dominant class
// is catalogued. The returned error is always a *LandCoverError.
func ValidateLandCover(summary *LandCoverSummary, catalog *Catalog) (LandCoverClass, error) {
	dominant := strings.TrimSpace(summary.DominantClass)
	if dominant == "" {
		return "", &LandCoverError{Reason: "dominant class missing"}
	}

	class := LandCoverClass(dominant)
	if _, ok := catalog.Lookup(class); !ok {
		return "", &LandCoverError{Reason: fmt.Sprintf("unknown land-cover class %q", dominant)}
	}

	if summary.TotalAreaHa < 0 || math.IsNaN(summary.TotalAreaHa) {
		return "", &LandCoverError{Reason: "total area must be non-negative"}
	}

	for i, share := range summary.Classes {
		switch {
		case strings.TrimSpace(share.Name) == "":
			return "", &LandCoverError{Reason: fmt.Sprintf("classes[%d].name is required", i)}
		case share.AreaHa < 0 || math.IsNaN(share.AreaHa):
			return "", &LandCoverError{Reason: fmt.Sprintf("classes[%d].area_ha must be non-negative", i)}
		case share.Percentage < 0 || share.Percentage > 100 || math.IsNaN(share.Percentage):
			return "", &LandCoverError{Reason: fmt.Sprintf("classes[%d].percentage must be between 0 and 100", i)}
		}
	}

	return class, nil
}
