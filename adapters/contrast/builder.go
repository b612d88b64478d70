// Package contrast builds between- and within-participant hypothesis
// contrasts for guided study designs.
//
// Between contrasts (C) are built row-wise with one column per group, groups
// ordered with the first factor varying slowest. Within contrasts (U) are the
// column-wise analogue over repeated-measures factors followed by responses.
// Both are Kronecker products of per-factor pieces: the factors under test
// contribute polynomial or baseline contrasts and the others contribute an
// averaging row (or column).
package contrast

import (
	"math"

	"powersvc/domain/core"
	"powersvc/domain/design"
	"powersvc/internal/matrixutil"

	"gonum.org/v1/gonum/mat"
)

// Builder implements ports.ContrastBuilder
type Builder struct{}

// NewBuilder creates a contrast builder
func NewBuilder() *Builder {
	return &Builder{}
}

// MainEffectBetween tests all differences among the levels of one factor
func (b *Builder) MainEffectBetween(mapping design.BetweenMapping, factors []design.BetweenFactor) (*mat.Dense, error) {
	mapping.Trend = design.TrendAllPolynomial
	return b.betweenFor([]design.BetweenMapping{mapping}, factors)
}

// InteractionBetween crosses the contrasts of every mapped factor
func (b *Builder) InteractionBetween(mappings []design.BetweenMapping, factors []design.BetweenFactor) (*mat.Dense, error) {
	return b.betweenFor(mappings, factors)
}

// TrendBetween tests the mapping's polynomial trend across one factor
func (b *Builder) TrendBetween(mapping design.BetweenMapping, factors []design.BetweenFactor) (*mat.Dense, error) {
	return b.betweenFor([]design.BetweenMapping{mapping}, factors)
}

// ManovaBetween uses the main-effect contrast of the mapped factor
func (b *Builder) ManovaBetween(mapping design.BetweenMapping, factors []design.BetweenFactor) (*mat.Dense, error) {
	return b.MainEffectBetween(mapping, factors)
}

// GrandMeanBetween averages over every group
func (b *Builder) GrandMeanBetween(factors []design.BetweenFactor) (*mat.Dense, error) {
	return b.betweenFor(nil, factors)
}

func (b *Builder) betweenFor(mappings []design.BetweenMapping, factors []design.BetweenFactor) (*mat.Dense, error) {
	byName := make(map[string]design.TrendType, len(mappings))
	for _, m := range mappings {
		if !hasFactor(factors, m.Factor.PredictorName) {
			return nil, core.NewValidationError("Hypothesis refers to unknown between-participant factor '%s'", m.Factor.PredictorName)
		}
		byName[m.Factor.PredictorName] = m.Trend
	}

	pieces := make([]mat.Matrix, 0, len(factors))
	for _, f := range factors {
		k := len(f.Categories)
		if k == 0 {
			continue
		}
		trend, tested := byName[f.PredictorName]
		if !tested {
			pieces = append(pieces, average(k))
			continue
		}
		piece, err := trendRows(f.PredictorName, trend, indexValues(k))
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, piece)
	}
	if len(pieces) == 0 {
		return matrixutil.Filled(1, 1, 1), nil
	}
	return matrixutil.KronAll(pieces), nil
}

// MainEffectWithin tests all differences across one repeated-measures factor
func (b *Builder) MainEffectWithin(mapping design.WithinMapping, nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error) {
	mapping.Trend = design.TrendAllPolynomial
	return b.withinFor([]design.WithinMapping{mapping}, nodes, responses)
}

// InteractionWithin crosses the contrasts of every mapped factor
func (b *Builder) InteractionWithin(mappings []design.WithinMapping, nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error) {
	return b.withinFor(mappings, nodes, responses)
}

// TrendWithin tests the mapping's polynomial trend across one factor
func (b *Builder) TrendWithin(mapping design.WithinMapping, nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error) {
	return b.withinFor([]design.WithinMapping{mapping}, nodes, responses)
}

// ManovaWithin keeps every response separate
func (b *Builder) ManovaWithin(nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error) {
	if len(responses) == 0 {
		return nil, core.NewValidationError("At least one response variable is required")
	}
	p := len(responses)
	for _, node := range nodes {
		if node.NumberOfMeasurements <= 0 {
			return nil, core.NewValidationError("Repeated measures factor '%s' has no measurements", node.Dimension)
		}
		p *= node.NumberOfMeasurements
	}
	return matrixutil.Identity(p), nil
}

// GrandMeanWithin averages over every repeated measurement
func (b *Builder) GrandMeanWithin(nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error) {
	return b.withinFor(nil, nodes, responses)
}

func (b *Builder) withinFor(mappings []design.WithinMapping, nodes []design.RepeatedMeasuresNode, responses []string) (*mat.Dense, error) {
	if len(responses) == 0 {
		return nil, core.NewValidationError("At least one response variable is required")
	}
	byName := make(map[string]design.TrendType, len(mappings))
	for _, m := range mappings {
		if !hasNode(nodes, m.Node.Dimension) {
			return nil, core.NewValidationError("Hypothesis refers to unknown repeated measures factor '%s'", m.Node.Dimension)
		}
		byName[m.Node.Dimension] = m.Trend
	}

	pieces := make([]mat.Matrix, 0, len(nodes)+1)
	for _, node := range nodes {
		n := node.NumberOfMeasurements
		if n <= 0 {
			return nil, core.NewValidationError("Repeated measures factor '%s' has no measurements", node.Dimension)
		}
		trend, tested := byName[node.Dimension]
		if !tested {
			pieces = append(pieces, average(n).T())
			continue
		}
		values := indexValues(n)
		if len(node.Spacing) == n {
			values = node.Spacing
		}
		piece, err := trendRows(node.Dimension, trend, values)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, piece.T())
	}
	pieces = append(pieces, matrixutil.Identity(len(responses)))
	return matrixutil.KronAll(pieces), nil
}

// trendRows returns the row contrasts selected by trend over the given level values
func trendRows(name string, trend design.TrendType, values []float64) (*mat.Dense, error) {
	k := len(values)
	switch trend {
	case design.TrendNone:
		return average(k), nil
	case design.TrendChangeFromBaseline:
		if k < 2 {
			return nil, tooFewLevels(name, 2)
		}
		rows := mat.NewDense(k-1, k, nil)
		for i := 0; i < k-1; i++ {
			rows.Set(i, 0, -1)
			rows.Set(i, i+1, 1)
		}
		return rows, nil
	case design.TrendLinear:
		return polynomialDegree(name, values, 1)
	case design.TrendQuadratic:
		return polynomialDegree(name, values, 2)
	case design.TrendCubic:
		return polynomialDegree(name, values, 3)
	default:
		if k < 2 {
			return nil, tooFewLevels(name, 2)
		}
		return mat.DenseCopyOf(orthogonalPolynomials(values).Slice(1, k, 0, k)), nil
	}
}

func polynomialDegree(name string, values []float64, degree int) (*mat.Dense, error) {
	if len(values) < degree+1 {
		return nil, tooFewLevels(name, degree+1)
	}
	all := orthogonalPolynomials(values)
	_, k := all.Dims()
	return mat.DenseCopyOf(all.Slice(degree, degree+1, 0, k)), nil
}

// orthogonalPolynomials returns a k x k matrix whose row d holds the
// orthonormal polynomial of degree d evaluated at the level values. Row 0 is
// constant; each row's last entry is non-negative.
func orthogonalPolynomials(values []float64) *mat.Dense {
	k := len(values)
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mid, half := (hi+lo)/2, (hi-lo)/2
	if half == 0 {
		half = 1
	}

	vander := mat.NewDense(k, k, nil)
	for i, v := range values {
		x := (v - mid) / half
		for d := 0; d < k; d++ {
			vander.Set(i, d, math.Pow(x, float64(d)))
		}
	}

	var qr mat.QR
	qr.Factorize(vander)
	var q mat.Dense
	qr.QTo(&q)

	out := mat.DenseCopyOf(q.T())
	for d := 0; d < k; d++ {
		if out.At(d, k-1) < 0 {
			for j := 0; j < k; j++ {
				out.Set(d, j, -out.At(d, j))
			}
		}
		for j := 0; j < k; j++ {
			if math.Abs(out.At(d, j)) < 1e-14 {
				out.Set(d, j, 0)
			}
		}
	}
	return out
}

func average(k int) *mat.Dense {
	return matrixutil.Filled(1, k, 1/float64(k))
}

func indexValues(k int) []float64 {
	values := make([]float64, k)
	for i := range values {
		values[i] = float64(i + 1)
	}
	return values
}

func tooFewLevels(name string, need int) error {
	return core.NewValidationError("Factor '%s' needs at least %d levels for the requested contrast", name, need)
}

func hasFactor(factors []design.BetweenFactor, name string) bool {
	for _, f := range factors {
		if f.PredictorName == name {
			return true
		}
	}
	return false
}

func hasNode(nodes []design.RepeatedMeasuresNode, name string) bool {
	for _, n := range nodes {
		if n.Dimension == name {
			return true
		}
	}
	return false
}
