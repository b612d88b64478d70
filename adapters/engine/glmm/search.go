package glmm

import (
	"context"
	"errors"
	"math"

	"github.com/montanaflynn/stats"

	"powersvc/domain/power"
)

// sampleSize finds the smallest per-group size reaching pt.target by
// doubling and then bisecting.
func (e *Engine) sampleSize(ctx context.Context, m *model, pt point) (int, float64, error) {
	reaches := func(n int) (bool, float64, error) {
		p, _, err := evaluate(m, pt, n, pt.betaScale)
		if errors.Is(err, errTooFewDF) {
			return false, 0, nil
		}
		if err != nil {
			return false, 0, err
		}
		return p >= pt.target, p, nil
	}

	lo, hi := 0, 1
	var best float64
	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		ok, p, err := reaches(hi)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			best = p
			break
		}
		lo = hi
		hi *= 2
		if hi > e.maxGroupSize {
			return 0, 0, errSearchFailed
		}
	}

	for hi-lo > 1 {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		mid := lo + (hi-lo)/2
		ok, p, err := reaches(mid)
		if err != nil {
			return 0, 0, err
		}
		if ok {
			hi, best = mid, p
		} else {
			lo = mid
		}
	}
	return hi, best, nil
}

// detectableDifference finds the smallest beta scale reaching pt.target at
// per-group size pt.n.
func (e *Engine) detectableDifference(ctx context.Context, m *model, pt point) (float64, float64, error) {
	at := func(scale float64) (float64, error) {
		p, _, err := evaluate(m, pt, pt.n, scale)
		return p, err
	}

	p0, err := at(0)
	if err != nil {
		return 0, 0, err
	}
	if p0 >= pt.target {
		return 0, p0, nil
	}

	lo, hi := 0.0, 1.0
	pHi, err := at(hi)
	for ; err == nil && pHi < pt.target; pHi, err = at(hi) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, 0, ctxErr
		}
		lo = hi
		hi *= 2
		if hi > float64(e.maxGroupSize) {
			return 0, 0, errSearchFailed
		}
	}
	if err != nil {
		return 0, 0, err
	}

	for i := 0; i < 100 && hi-lo > 1e-8*hi; i++ {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		mid := (lo + hi) / 2
		p, err := at(mid)
		if err != nil {
			return 0, 0, err
		}
		if p >= pt.target {
			hi, pHi = mid, p
		} else {
			lo = mid
		}
	}
	return hi, pHi, nil
}

// interval returns confidence limits on power that account for beta and
// sigma having been estimated from an earlier sample.
func interval(ci power.ConfidenceIntervalParams, ps pointStats, alpha float64) *power.EngineInterval {
	if ci.Type != power.CIBetaKnownSigmaEstimated && ci.Type != power.CIBetaSigmaEstimated {
		return nil
	}
	nu := float64(ci.SampleSize - ci.Rank)
	if nu <= 0 {
		return nil
	}

	lower := ps.lambda * chiSquareQuantile(ci.AlphaLower, nu) / nu
	upper := ps.lambda * chiSquareQuantile(1-ci.AlphaUpper, nu) / nu
	if ci.Type == power.CIBetaSigmaEstimated {
		// normal approximation to the noncentral chi-square of the estimated effect
		if ci.AlphaLower > 0 {
			lower = math.Max(0, lower-normalQuantile(1-ci.AlphaLower)*math.Sqrt(2*(ps.df1+2*lower)))
		}
		if ci.AlphaUpper > 0 && !math.IsInf(upper, 1) {
			upper += normalQuantile(1-ci.AlphaUpper) * math.Sqrt(2*(ps.df1+2*upper))
		}
	}

	return &power.EngineInterval{
		LowerLimit: ps.powerWith(alpha, lower),
		UpperLimit: ps.powerWith(alpha, upper),
		AlphaLower: ci.AlphaLower,
		AlphaUpper: ci.AlphaUpper,
	}
}

func mean(values []float64) float64 {
	m, err := stats.Mean(values)
	if err != nil {
		return math.NaN()
	}
	return m
}
