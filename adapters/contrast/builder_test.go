package contrast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"powersvc/domain/core"
	"powersvc/domain/design"
)

func factor(name string, levels int) design.BetweenFactor {
	f := design.BetweenFactor{PredictorName: name}
	for i := 0; i < levels; i++ {
		f.Categories = append(f.Categories, design.Category{Name: string(rune('a' + i))})
	}
	return f
}

func rowSums(m mat.Matrix) []float64 {
	r, c := m.Dims()
	sums := make([]float64, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			sums[i] += m.At(i, j)
		}
	}
	return sums
}

func TestMainEffectBetweenShapeAndContrastProperty(t *testing.T) {
	factors := []design.BetweenFactor{factor("treatment", 3), factor("gender", 2)}
	c, err := NewBuilder().MainEffectBetween(design.BetweenMapping{Factor: factors[0]}, factors)
	require.NoError(t, err)

	r, cols := c.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 6, cols)
	for _, s := range rowSums(c) {
		assert.InDelta(t, 0, s, 1e-12)
	}
}

func TestOrthogonalPolynomialsAreOrthonormal(t *testing.T) {
	poly := orthogonalPolynomials([]float64{1, 2, 4, 8})
	var gram mat.Dense
	gram.Mul(poly, poly.T())
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, gram.At(i, j), 1e-10)
		}
	}
}

func TestLinearTrendIsMonotone(t *testing.T) {
	rows, err := trendRows("dose", design.TrendLinear, indexValues(4))
	require.NoError(t, err)
	for j := 1; j < 4; j++ {
		assert.Greater(t, rows.At(0, j), rows.At(0, j-1))
	}
	assert.InDelta(t, 1.0, mat.Norm(rows, 2), 1e-12)
}

func TestCubicTrendNeedsFourLevels(t *testing.T) {
	factors := []design.BetweenFactor{factor("dose", 3)}
	_, err := NewBuilder().TrendBetween(design.BetweenMapping{Factor: factors[0], Trend: design.TrendCubic}, factors)
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
}

func TestChangeFromBaseline(t *testing.T) {
	rows, err := trendRows("visit", design.TrendChangeFromBaseline, indexValues(3))
	require.NoError(t, err)
	want := mat.NewDense(2, 3, []float64{-1, 1, 0, -1, 0, 1})
	assert.True(t, mat.Equal(want, rows))
}

func TestInteractionBetween(t *testing.T) {
	factors := []design.BetweenFactor{factor("a", 3), factor("b", 2), factor("c", 2)}
	mappings := []design.BetweenMapping{{Factor: factors[0]}, {Factor: factors[1]}}
	c, err := NewBuilder().InteractionBetween(mappings, factors)
	require.NoError(t, err)
	r, cols := c.Dims()
	assert.Equal(t, 2, r) // (3-1) x (2-1) x 1
	assert.Equal(t, 12, cols)
}

func TestGrandMeanBetween(t *testing.T) {
	b := NewBuilder()
	c, err := b.GrandMeanBetween([]design.BetweenFactor{factor("a", 2), factor("b", 2)})
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(1, 4, []float64{0.25, 0.25, 0.25, 0.25}), c))

	empty, err := b.GrandMeanBetween(nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, empty.At(0, 0))
}

func TestUnknownFactorIsRejected(t *testing.T) {
	factors := []design.BetweenFactor{factor("a", 2)}
	_, err := NewBuilder().MainEffectBetween(design.BetweenMapping{Factor: factor("zzz", 2)}, factors)
	assert.True(t, core.IsValidationError(err))
}

func TestWithinContrasts(t *testing.T) {
	nodes := []design.RepeatedMeasuresNode{
		{Dimension: "time", NumberOfMeasurements: 3, Spacing: []float64{0, 6, 12}},
		{Dimension: "side", NumberOfMeasurements: 2},
	}
	responses := []string{"y1", "y2"}
	b := NewBuilder()

	u, err := b.MainEffectWithin(design.WithinMapping{Node: nodes[0]}, nodes, responses)
	require.NoError(t, err)
	r, c := u.Dims()
	assert.Equal(t, 12, r) // 3 x 2 x 2 responses
	assert.Equal(t, 4, c)  // 2 time contrasts x 1 side average x 2 responses

	gm, err := b.GrandMeanWithin(nodes, responses)
	require.NoError(t, err)
	r, c = gm.Dims()
	assert.Equal(t, 12, r)
	assert.Equal(t, 2, c)
	assert.InDelta(t, 1.0/6, gm.At(0, 0), 1e-12)

	manova, err := b.ManovaWithin(nodes, responses)
	require.NoError(t, err)
	r, c = manova.Dims()
	assert.Equal(t, 12, r)
	assert.Equal(t, 12, c)

	_, err = b.GrandMeanWithin(nodes, nil)
	assert.Error(t, err)
}

func TestWithinContrastsRejectEmptyFactor(t *testing.T) {
	nodes := []design.RepeatedMeasuresNode{{Dimension: "time", NumberOfMeasurements: 0}}
	b := NewBuilder()

	_, err := b.ManovaWithin(nodes, []string{"y"})
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Equal(t, "Repeated measures factor 'time' has no measurements", err.Error())

	_, err = b.GrandMeanWithin(nodes, []string{"y"})
	assert.True(t, core.IsValidationError(err))
}

func TestWithinTrendUsesSpacing(t *testing.T) {
	node := design.RepeatedMeasuresNode{Dimension: "time", NumberOfMeasurements: 3, Spacing: []float64{0, 1, 10}}
	u, err := NewBuilder().TrendWithin(design.WithinMapping{Node: node, Trend: design.TrendLinear}, []design.RepeatedMeasuresNode{node}, []string{"y"})
	require.NoError(t, err)
	// unequal spacing: the step from level 2 to 3 outweighs the step from 1 to 2
	step1 := u.At(1, 0) - u.At(0, 0)
	step2 := u.At(2, 0) - u.At(1, 0)
	assert.Greater(t, step2, step1)
	assert.False(t, math.IsNaN(step1))
}
