package power

import (
	"powersvc/domain/design"

	"gonum.org/v1/gonum/mat"
)

// CIType selects how a confidence interval around power is computed
type CIType string

const (
	CINone                    CIType = "NONE"
	CIBetaKnownSigmaEstimated CIType = "BETA_KNOWN_SIGMA_ESTIMATED"
	CIBetaSigmaEstimated      CIType = "BETA_SIGMA_ESTIMATED"
)

// FixedRandom pairs a fixed-effects matrix with an optional random-effects
// matrix. Contrasts share rows and are column-bound; coefficients share
// columns and are row-bound.
type FixedRandom struct {
	Fixed  *mat.Dense
	Random *mat.Dense
}

// Augmented column-binds the fixed and random parts
func (fr FixedRandom) Augmented() *mat.Dense {
	if fr.Fixed == nil {
		return nil
	}
	if fr.Random == nil {
		return mat.DenseCopyOf(fr.Fixed)
	}
	r, fc := fr.Fixed.Dims()
	_, rc := fr.Random.Dims()
	out := mat.NewDense(r, fc+rc, nil)
	out.Augment(fr.Fixed, fr.Random)
	return out
}

// Stacked row-binds the fixed and random parts
func (fr FixedRandom) Stacked() *mat.Dense {
	if fr.Fixed == nil {
		return nil
	}
	if fr.Random == nil {
		return mat.DenseCopyOf(fr.Fixed)
	}
	fixedRows, c := fr.Fixed.Dims()
	randomRows, _ := fr.Random.Dims()
	out := mat.NewDense(fixedRows+randomRows, c, nil)
	out.Stack(fr.Fixed, fr.Random)
	return out
}

// ConfidenceIntervalParams are the estimation inputs for power confidence intervals
type ConfidenceIntervalParams struct {
	Type       CIType
	AlphaLower float64
	AlphaUpper float64
	SampleSize int
	Rank       int
}

// Parameters is the numeric bundle handed to the computation engine.
// A bundle is built once per request and owned by the worker computing it.
type Parameters struct {
	SolutionType design.SolutionType

	Tests         []design.StatisticalTest
	Alphas        []float64
	NominalPowers []float64
	SampleSizes   []int
	BetaScales    []float64
	SigmaScales   []float64
	PowerMethods  []design.PowerMethod
	Quantiles     []float64

	Design          *mat.Dense
	Beta            FixedRandom
	BetweenContrast *FixedRandom
	WithinContrast  *mat.Dense
	ThetaNull       *mat.Dense

	// SigmaError is set for fixed-error designs; the three outcome/covariate
	// matrices are set for Gaussian-covariate designs.
	SigmaError           *mat.Dense
	SigmaOutcome         *mat.Dense
	SigmaGaussian        *mat.Dense
	SigmaOutcomeGaussian *mat.Dense

	ConfidenceInterval ConfidenceIntervalParams
}

// GaussianCovariate reports whether the bundle describes a GLMM(F,g) design
func (p *Parameters) GaussianCovariate() bool {
	return p.SigmaOutcome != nil
}

// EngineInterval is the engine-native confidence interval
type EngineInterval struct {
	LowerLimit float64
	UpperLimit float64
	AlphaLower float64
	AlphaUpper float64
}

// EngineResult is one engine-native sweep point. Quantile is NaN when the
// power method is not QUANTILE.
type EngineResult struct {
	Test            design.StatisticalTest
	Alpha           float64
	NominalPower    float64
	ActualPower     float64
	TotalSampleSize int
	BetaScale       float64
	SigmaScale      float64
	PowerMethod     design.PowerMethod
	Quantile        float64
	Interval        *EngineInterval
	ErrorMessage    string
}

// ConfidenceInterval is the caller-facing interval around a power value
type ConfidenceInterval struct {
	LowerLimit           float64 `json:"lowerLimit"`
	UpperLimit           float64 `json:"upperLimit"`
	LowerTailProbability float64 `json:"alphaLower"`
	UpperTailProbability float64 `json:"alphaUpper"`
}

// PowerResult is one caller-facing point of the sweep
type PowerResult struct {
	Test               design.StatisticalTest `json:"test"`
	Alpha              float64                `json:"alpha"`
	NominalPower       float64                `json:"nominalPower"`
	ActualPower        float64                `json:"actualPower"`
	TotalSampleSize    int                    `json:"totalSampleSize"`
	BetaScale          float64                `json:"betaScale"`
	SigmaScale         float64                `json:"sigmaScale"`
	PowerMethod        design.PowerMethod     `json:"powerMethod"`
	Quantile           *float64               `json:"quantile,omitempty"`
	ConfidenceInterval *ConfidenceInterval    `json:"confidenceInterval,omitempty"`
	ErrorMessage       string                 `json:"errorMessage,omitempty"`
}
