package glmm

import (
	"math"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// criticalF is the upper alpha quantile of the central F(df1, df2)
func criticalF(alpha, df1, df2 float64) float64 {
	x := distuv.Beta{Alpha: df1 / 2, Beta: df2 / 2}.Quantile(1 - alpha)
	if x >= 1 {
		return math.Inf(1)
	}
	return df2 * x / (df1 * (1 - x))
}

const patnaikThreshold = 5000

// noncentralFCDF is P(F <= f) for F ~ F(df1, df2, lambda), summed as a
// Poisson mixture of incomplete beta terms outward from the Poisson mode.
func noncentralFCDF(f, df1, df2, lambda float64) float64 {
	if f <= 0 {
		return 0
	}
	if math.IsInf(f, 1) {
		return 1
	}
	x := df1 * f / (df1*f + df2)
	if lambda <= 0 {
		return mathext.RegIncBeta(df1/2, df2/2, x)
	}

	if lambda > patnaikThreshold {
		// Patnaik: scaled central chi-square for the noncentral numerator
		c := (df1 + 2*lambda) / (df1 + lambda)
		nu := (df1 + lambda) * (df1 + lambda) / (df1 + 2*lambda)
		fc := f * df1 / (c * nu)
		return mathext.RegIncBeta(nu/2, df2/2, nu*fc/(nu*fc+df2))
	}

	half := lambda / 2
	mode := math.Floor(half)
	logWeight := func(j float64) float64 {
		lg, _ := math.Lgamma(j + 1)
		return -half + j*math.Log(half) - lg
	}
	term := func(j float64) float64 {
		return math.Exp(logWeight(j)) * mathext.RegIncBeta(df1/2+j, df2/2, x)
	}

	const eps = 1e-14
	const maxTerms = 100000
	sum := term(mode)
	for j, n := mode+1, 0; n < maxTerms; j, n = j+1, n+1 {
		t := term(j)
		sum += t
		if math.Exp(logWeight(j)) < eps {
			break
		}
	}
	for j := mode - 1; j >= 0; j-- {
		sum += term(j)
		if math.Exp(logWeight(j)) < eps {
			break
		}
	}
	return math.Min(1, math.Max(0, sum))
}

// powerF is the probability that F(df1, df2, lambda) exceeds crit
func powerF(crit, df1, df2, lambda float64) float64 {
	return 1 - noncentralFCDF(crit, df1, df2, lambda)
}

// chiSquareQuantile returns the p quantile of a chi-square with df degrees
func chiSquareQuantile(p, df float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return math.Inf(1)
	}
	return distuv.ChiSquared{K: df}.Quantile(p)
}

func normalQuantile(p float64) float64 {
	return distuv.UnitNormal.Quantile(p)
}
