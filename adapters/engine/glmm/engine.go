// Package glmm is a reference power engine for the general linear
// multivariate model with fixed predictors, optionally extended with one
// Gaussian covariate.
//
// Each test statistic is approximated by a noncentral F: Hotelling-Lawley
// trace with Pillai-Samson degrees of freedom, Pillai-Bartlett trace,
// Wilks' lambda with Rao's transformation, and the univariate approach to
// repeated measures with Box, Geisser-Greenhouse or Huynh-Feldt corrections.
package glmm

import (
	"context"
	"errors"
	"math"

	"powersvc/domain/core"
	"powersvc/domain/design"
	"powersvc/domain/power"
	"powersvc/internal"
)

// Search and size limits
const (
	DefaultMaxElements  = 1 << 22
	DefaultMaxGroupSize = 1 << 20
	unconditionalPoints = 32
)

// Engine implements ports.PowerEngine
type Engine struct {
	logger       *internal.Logger
	maxElements  int
	maxGroupSize int
}

// Option configures an Engine
type Option func(*Engine)

// WithMaxElements caps the size of any single matrix the engine accepts
func WithMaxElements(n int) Option {
	return func(e *Engine) { e.maxElements = n }
}

// WithMaxGroupSize caps the per-group sample size a search may reach
func WithMaxGroupSize(n int) Option {
	return func(e *Engine) { e.maxGroupSize = n }
}

// NewEngine creates an engine
func NewEngine(logger *internal.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	e := &Engine{
		logger:       logger,
		maxElements:  DefaultMaxElements,
		maxGroupSize: DefaultMaxGroupSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// methodPoint is one power method, expanded per quantile for QUANTILE
type methodPoint struct {
	method   design.PowerMethod
	quantile float64
}

// point is one combination of the sweep lists
type point struct {
	test       design.StatisticalTest
	alpha      float64
	n          int
	target     float64
	betaScale  float64
	sigmaScale float64
	methodPoint
}

// ComputePower evaluates every point of the sweep. Points that cannot be
// solved carry an error message; malformed input fails the whole call.
func (e *Engine) ComputePower(ctx context.Context, p *power.Parameters) ([]power.EngineResult, error) {
	if p == nil {
		return nil, core.NewEngineValidationError("No power parameters")
	}
	if err := checkLists(p); err != nil {
		return nil, err
	}
	m, err := prepare(p, e.maxElements)
	if err != nil {
		return nil, err
	}
	methods, err := methodPoints(p)
	if err != nil {
		return nil, err
	}
	betaScales := orOne(p.BetaScales)
	sigmaScales := orOne(p.SigmaScales)

	var points []point
	for _, test := range p.Tests {
		for _, alpha := range p.Alphas {
			switch p.SolutionType {
			case design.SolvePower:
				for _, n := range p.SampleSizes {
					for _, bs := range betaScales {
						for _, ss := range sigmaScales {
							for _, mp := range methods {
								points = append(points, point{test: test, alpha: alpha, n: n, betaScale: bs, sigmaScale: ss, methodPoint: mp})
							}
						}
					}
				}
			case design.SolveSampleSize:
				for _, target := range p.NominalPowers {
					for _, bs := range betaScales {
						for _, ss := range sigmaScales {
							for _, mp := range methods {
								points = append(points, point{test: test, alpha: alpha, target: target, betaScale: bs, sigmaScale: ss, methodPoint: mp})
							}
						}
					}
				}
			case design.SolveDetectableDifference:
				for _, n := range p.SampleSizes {
					for _, target := range p.NominalPowers {
						for _, ss := range sigmaScales {
							for _, mp := range methods {
								points = append(points, point{test: test, alpha: alpha, n: n, target: target, sigmaScale: ss, methodPoint: mp})
							}
						}
					}
				}
			}
		}
	}

	results := make([]power.EngineResult, 0, len(points))
	for _, pt := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := e.solve(ctx, m, p, pt)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	e.logger.Debug("engine computed %d points", len(results))
	return results, nil
}

func (e *Engine) solve(ctx context.Context, m *model, p *power.Parameters, pt point) (power.EngineResult, error) {
	r := power.EngineResult{
		Test:         pt.test,
		Alpha:        pt.alpha,
		NominalPower: pt.target,
		BetaScale:    pt.betaScale,
		SigmaScale:   pt.sigmaScale,
		PowerMethod:  pt.method,
		Quantile:     pt.quantile,
	}

	var err error
	switch p.SolutionType {
	case design.SolvePower:
		r.TotalSampleSize = pt.n * m.groups
		var ps pointStats
		r.ActualPower, ps, err = evaluate(m, pt, pt.n, pt.betaScale)
		if err == nil {
			r.Interval = interval(p.ConfidenceInterval, ps, pt.alpha)
		}
	case design.SolveSampleSize:
		var n int
		n, r.ActualPower, err = e.sampleSize(ctx, m, pt)
		r.TotalSampleSize = n * m.groups
	case design.SolveDetectableDifference:
		r.TotalSampleSize = pt.n * m.groups
		r.BetaScale, r.ActualPower, err = e.detectableDifference(ctx, m, pt)
	}

	switch {
	case err == nil:
		return r, nil
	case errors.Is(err, errTooFewDF), errors.Is(err, errSearchFailed):
		r.ActualPower = 0
		r.ErrorMessage = err.Error()
		return r, nil
	}
	return r, err
}

// evaluate returns the power at per-group size n and the given beta scale,
// with the conditional F approximation used for confidence limits.
func evaluate(m *model, pt point, n int, betaScale float64) (float64, pointStats, error) {
	if !m.covariate || pt.method == design.PowerConditional {
		ps, err := m.stats(pt.test, n, betaScale, pt.sigmaScale, 1)
		if err != nil {
			return 0, ps, err
		}
		return ps.power(pt.alpha), ps, nil
	}

	df := m.covariateDF(n)
	if df <= 0 {
		return 0, pointStats{}, errTooFewDF
	}

	if pt.method == design.PowerQuantile {
		ps, err := m.stats(pt.test, n, betaScale, pt.sigmaScale, chiSquareQuantile(pt.quantile, df)/df)
		if err != nil {
			return 0, ps, err
		}
		return ps.power(pt.alpha), ps, nil
	}

	// unconditional power averages over the covariate distribution
	powers := make([]float64, 0, unconditionalPoints)
	var last pointStats
	for i := 0; i < unconditionalPoints; i++ {
		q := (float64(i) + 0.5) / unconditionalPoints
		ps, err := m.stats(pt.test, n, betaScale, pt.sigmaScale, chiSquareQuantile(q, df)/df)
		if err != nil {
			return 0, ps, err
		}
		powers = append(powers, ps.power(pt.alpha))
		last = ps
	}
	return mean(powers), last, nil
}

func checkLists(p *power.Parameters) error {
	if len(p.Tests) == 0 {
		return core.NewEngineValidationError("No statistical tests specified")
	}
	if len(p.Alphas) == 0 {
		return core.NewEngineValidationError("No type I error rates specified")
	}
	for _, a := range p.Alphas {
		if a <= 0 || a >= 1 {
			return core.NewEngineValidationError("Invalid type I error rate %g", a)
		}
	}
	for _, s := range p.SigmaScales {
		if s <= 0 {
			return core.NewEngineValidationError("Invalid sigma scale %g", s)
		}
	}

	needSizes := p.SolutionType == design.SolvePower || p.SolutionType == design.SolveDetectableDifference
	needPowers := p.SolutionType == design.SolveSampleSize || p.SolutionType == design.SolveDetectableDifference
	if !needSizes && !needPowers {
		return core.NewEngineValidationError("Unknown solution type '%s'", p.SolutionType)
	}
	if needSizes {
		if len(p.SampleSizes) == 0 {
			return core.NewEngineValidationError("No per group sample sizes specified")
		}
		for _, n := range p.SampleSizes {
			if n <= 0 {
				return core.NewEngineValidationError("Invalid per group sample size %d", n)
			}
		}
	}
	if needPowers {
		if len(p.NominalPowers) == 0 {
			return core.NewEngineValidationError("No nominal powers specified")
		}
		for _, np := range p.NominalPowers {
			if np <= 0 || np >= 1 {
				return core.NewEngineValidationError("Invalid nominal power %g", np)
			}
		}
	}
	return nil
}

func methodPoints(p *power.Parameters) ([]methodPoint, error) {
	if !p.GaussianCovariate() {
		return []methodPoint{{design.PowerConditional, math.NaN()}}, nil
	}
	methods := p.PowerMethods
	if len(methods) == 0 {
		methods = []design.PowerMethod{design.PowerConditional}
	}

	var out []methodPoint
	for _, method := range methods {
		switch method {
		case design.PowerConditional, design.PowerUnconditional:
			out = append(out, methodPoint{method, math.NaN()})
		case design.PowerQuantile:
			if len(p.Quantiles) == 0 {
				return nil, core.NewEngineValidationError("Quantile power requires at least one quantile")
			}
			for _, q := range p.Quantiles {
				if q <= 0 || q >= 1 {
					return nil, core.NewEngineValidationError("Invalid quantile %g", q)
				}
				out = append(out, methodPoint{method, q})
			}
		default:
			return nil, core.NewEngineValidationError("Unknown power method '%s'", method)
		}
	}
	return out, nil
}

func orOne(values []float64) []float64 {
	if len(values) == 0 {
		return []float64{1}
	}
	return values
}
