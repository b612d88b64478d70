// Package results converts engine-native results into caller-facing ones.
package results

import (
	"math"

	"powersvc/domain/power"
)

// Translate maps each engine result to a PowerResult, preserving order
func Translate(in []power.EngineResult) []power.PowerResult {
	out := make([]power.PowerResult, 0, len(in))
	for _, r := range in {
		out = append(out, TranslateOne(r))
	}
	return out
}

// TranslateOne maps a single result. A NaN quantile means the point was not
// computed with quantile power and is omitted.
func TranslateOne(r power.EngineResult) power.PowerResult {
	pr := power.PowerResult{
		Test:            r.Test,
		Alpha:           r.Alpha,
		NominalPower:    r.NominalPower,
		ActualPower:     r.ActualPower,
		TotalSampleSize: r.TotalSampleSize,
		BetaScale:       r.BetaScale,
		SigmaScale:      r.SigmaScale,
		PowerMethod:     r.PowerMethod,
		ErrorMessage:    r.ErrorMessage,
	}
	if !math.IsNaN(r.Quantile) {
		q := r.Quantile
		pr.Quantile = &q
	}
	if r.Interval != nil {
		pr.ConfidenceInterval = &power.ConfidenceInterval{
			LowerLimit:           r.Interval.LowerLimit,
			UpperLimit:           r.Interval.UpperLimit,
			LowerTailProbability: r.Interval.AlphaLower,
			UpperTailProbability: r.Interval.AlphaUpper,
		}
	}
	return pr
}
