package sequestration

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultIterations is the Monte Carlo sample count per measurement.
const DefaultIterations = 10000

// Simulate draws iterations joint samples of the allometric coefficient, the
// exponent and the index reading, and evaluates AGB = a * index^b for each.
// Non-positive sampled indices yield zero biomass. The returned slice is owned
// by the caller.
func Simulate(src rand.Source, indexValue, indexUncertainty float64, params AllometricParameters, iterations int) ([]float64, error) {
	if iterations < 1 {
		return nil, &SimulationError{Cause: fmt.Sprintf("iterations must be positive, got %d", iterations)}
	}
	if indexUncertainty < 0 || math.IsNaN(indexUncertainty) {
		return nil, &SimulationError{Cause: fmt.Sprintf("index uncertainty must be non-negative, got %v", indexUncertainty)}
	}

	coefficient := distuv.Normal{Mu: params.CoefficientMean, Sigma: params.CoefficientStd, Src: src}
	exponent := distuv.Normal{Mu: params.ExponentMean, Sigma: params.ExponentStd, Src: src}
	index := distuv.Normal{Mu: indexValue, Sigma: indexUncertainty, Src: src}

	coefficients := draw(coefficient, iterations)
	exponents := draw(exponent, iterations)
	indices := draw(index, iterations)

	samples := make([]float64, iterations)
	for i := range samples {
		x := clamp(indices[i], -1, 1)
		if x <= 0 {
			continue
		}

		biomass := coefficients[i] * math.Pow(x, exponents[i])
		if math.IsNaN(biomass) || math.IsInf(biomass, 0) {
			return nil, &SimulationError{
				Cause: fmt.Sprintf("non-finite biomass at sample %d (a=%v, b=%v, index=%v)", i, coefficients[i], exponents[i], x),
			}
		}
		samples[i] = math.Max(biomass, 0)
	}

	return samples, nil
}

func draw(dist distuv.Normal, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
