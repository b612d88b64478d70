package ports

import (
	"powersvc/domain/design"

	"gonum.org/v1/gonum/mat"
)

// ContrastBuilder generates hypothesis contrasts for guided designs.
// Between-participant contrasts have one column per group; within-participant
// contrasts have one row per repeated response.
type ContrastBuilder interface {
	MainEffectBetween(factor design.BetweenMapping, factors []design.BetweenFactor) (*mat.Dense, error)
	InteractionBetween(mappings []design.BetweenMapping, factors []design.BetweenFactor) (*mat.Dense, error)
	TrendBetween(mapping design.BetweenMapping, factors []design.BetweenFactor) (*mat.Dense, error)
	ManovaBetween(factor design.BetweenMapping, factors []design.BetweenFactor) (*mat.Dense, error)
	GrandMeanBetween(factors []design.BetweenFactor) (*mat.Dense, error)

	MainEffectWithin(mapping design.WithinMapping, nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error)
	InteractionWithin(mappings []design.WithinMapping, nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error)
	TrendWithin(mapping design.WithinMapping, nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error)
	ManovaWithin(nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error)
	GrandMeanWithin(nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error)
}

// CovarianceBuilder converts declared covariance structures to matrices.
// A nil matrix means the declaration is missing or cannot be converted for
// the given dimension size.
type CovarianceBuilder interface {
	CovarianceToMatrix(cov *design.Covariance, size int, spacing []float64) *mat.Dense
}
