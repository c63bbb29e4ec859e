package sequestration

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ModelName    = "NDVI allometric biomass model"
	ModelVersion = "v2.0"

	// DefaultIndexUncertainty is applied to readings without a supplied std-dev.
	DefaultIndexUncertainty = 0.05

	tierClassSpecific = "IPCC Tier 2"
	tierDefault       = "IPCC Tier 1"
)

// Engine estimates carbon sequestration from an index series. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	iterations         int
	percentiles        [2]float64
	defaultUncertainty float64
	workers            int
	seed               *uint64

	catalog    *Catalog
	resolver   *Resolver
	summarizer *Summarizer
	calc       *Calculator
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIterations sets the Monte Carlo sample count per measurement.
func WithIterations(n int) Option {
	return func(e *Engine) { e.iterations = n }
}

// WithPercentiles sets the interval percentile pair, e.g. {2.5, 97.5}.
func WithPercentiles(lower, upper float64) Option {
	return func(e *Engine) { e.percentiles = [2]float64{lower, upper} }
}

// WithDefaultUncertainty sets the index std-dev used when a reading has none.
func WithDefaultUncertainty(std float64) Option {
	return func(e *Engine) { e.defaultUncertainty = std }
}

// WithWorkers bounds how many measurements are simulated concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithSeed makes every Estimate call reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.seed = &seed }
}

// WithCatalog replaces the built-in parameter catalog.
func WithCatalog(c *Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an engine. Invalid configuration is reported as a
// *CalculationError naming the offending option.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		iterations:         DefaultIterations,
		percentiles:        DefaultPercentiles,
		defaultUncertainty: DefaultIndexUncertainty,
		workers:            runtime.GOMAXPROCS(0),
		catalog:            DefaultCatalog(),
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.iterations < 2 {
		return nil, &CalculationError{Field: "iterations", Message: fmt.Sprintf("iterations must be at least 2, got %d", e.iterations)}
	}
	if e.defaultUncertainty < 0 || math.IsNaN(e.defaultUncertainty) {
		return nil, &CalculationError{Field: "default_uncertainty", Message: "default index uncertainty must be non-negative"}
	}
	if e.workers < 1 {
		e.workers = 1
	}
	if e.catalog == nil {
		e.catalog = DefaultCatalog()
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}

	summarizer, err := NewSummarizer(e.percentiles)
	if err != nil {
		return nil, &CalculationError{Field: "percentiles", Message: err.Error()}
	}

	e.summarizer = summarizer
	e.resolver = NewResolver(e.catalog, e.logger)
	e.calc = NewCalculator()
	return e, nil
}

// Catalog returns the parameter catalog in use.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Estimate validates req, simulates every measurement and returns the
// aggregated report. Input errors are returned as *CalculationError before
// any simulation runs; a failing point aborts the call with *SimulationError.
func (e *Engine) Estimate(ctx context.Context, req EstimateRequest) (*AggregateReport, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	resolution := e.resolver.Resolve(req.LandCover)

	seed := rand.Uint64()
	if e.seed != nil {
		seed = *e.seed
	}

	started := time.Now()
	points := make([]CarbonEstimatePoint, len(req.Series))
	summaries := make([]ConfidenceSummary, len(req.Series))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, m := range req.Series {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary, err := e.simulatePoint(rand.NewPCG(seed, uint64(i)), m, resolution.Parameters)
			if err != nil {
				if simErr, ok := err.(*SimulationError); ok {
					simErr.Index = i
					simErr.Date = m.Date
				}
				return err
			}
			summaries[i] = summary
			points[i] = e.calc.Point(m, summary, req.AreaHa)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agg := NewAggregator(e.calc)
	for i, m := range req.Series {
		agg.Add(m.Value, summaries[i])
	}

	report := &AggregateReport{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		AreaHa:    req.AreaHa,
		Points:    points,
		Stats:     agg.Stats(req.AreaHa),
		Metadata:  e.methodology(resolution, seed),
	}

	e.logger.Debug("Carbon estimate completed",
		zap.Int("points", len(points)),
		zap.String("land_use_class", report.Metadata.ResolvedClassLabel()),
		zap.Uint64("seed", seed),
		zap.Duration("elapsed", time.Since(started)))

	return report, nil
}

func (e *Engine) simulatePoint(src rand.Source, m IndexMeasurement, params AllometricParameters) (ConfidenceSummary, error) {
	uncertainty := e.defaultUncertainty
	if m.Uncertainty != nil {
		uncertainty = *m.Uncertainty
	}

	samples, err := Simulate(src, m.Value, uncertainty, params, e.iterations)
	if err != nil {
		return ConfidenceSummary{}, err
	}
	return e.summarizer.Summarize(samples)
}

func (e *Engine) methodology(res Resolution, seed uint64) Methodology {
	tier := tierDefault
	firstAssumption := "IPCC Tier 1 pan-tropical allometric coefficients (Chave et al. 2014)"
	if res.Class != nil {
		tier = tierClassSpecific
		firstAssumption = fmt.Sprintf("IPCC Tier 2 land-cover specific allometric coefficients (%s)", *res.Class)
	}

	return Methodology{
		ModelName:           ModelName,
		ModelVersion:        ModelVersion,
		Tier:                tier,
		LandUseClass:        res.Class,
		Fallback:            res.Fallback,
		FallbackReason:      res.Reason,
		Parameters:          res.Parameters,
		UncertaintyMethod:   "Monte Carlo",
		Iterations:          e.iterations,
		IntervalPercentiles: e.percentiles,
		CarbonFraction:      CarbonFraction,
		CO2ConversionFactor: CO2ToCarbonRatio,
		Seed:                seed,
		Assumptions: []string{
			firstAssumption,
			fmt.Sprintf("Carbon fraction of dry biomass: %.2f", CarbonFraction),
			"CO2 equivalent uses the 44/12 molecular mass ratio",
			fmt.Sprintf("Monte Carlo propagation with %d iterations per measurement", e.iterations),
			fmt.Sprintf("NDVI readings without a supplied uncertainty assume std-dev %.2f", e.defaultUncertainty),
			"Above-ground biomass only; below-ground and soil carbon excluded",
		},
	}
}

// validateRequest checks every precondition of Estimate. Out-of-range
// readings are all reported together.
func validateRequest(req EstimateRequest) error {
	if len(req.Series) == 0 {
		return &CalculationError{Field: "series", Message: "no measurements"}
	}
	if !(req.AreaHa > 0) || math.IsInf(req.AreaHa, 0) {
		return &CalculationError{Field: "area_ha", Message: "area must be positive"}
	}
	if req.EndDate.Before(req.StartDate) {
		return &CalculationError{
			Field:   "end_date",
			Message: "invalid date range",
			Details: []string{fmt.Sprintf("end %s precedes start %s", req.EndDate.Format(DateLayout), req.StartDate.Format(DateLayout))},
		}
	}

	var outOfRange, badUncertainty []string
	for i, m := range req.Series {
		if math.IsNaN(m.Value) || m.Value < -1 || m.Value > 1 {
			outOfRange = append(outOfRange, fmt.Sprintf("point %d (%s): %v", i, m.Date.Format(DateLayout), m.Value))
		}
		if m.Uncertainty != nil && (*m.Uncertainty < 0 || math.IsNaN(*m.Uncertainty)) {
			badUncertainty = append(badUncertainty, fmt.Sprintf("point %d (%s): %v", i, m.Date.Format(DateLayout), *m.Uncertainty))
		}
	}
	if len(outOfRange) > 0 {
		return &CalculationError{Field: "series", Message: "index out of range", Details: outOfRange}
	}
	if len(badUncertainty) > 0 {
		return &CalculationError{Field: "series", Message: "index uncertainty must be non-negative", Details: badUncertainty}
	}
	return nil
}
