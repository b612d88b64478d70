package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powersvc/domain/core"
	"powersvc/domain/design"
)

func categories(n int) []design.Category {
	out := make([]design.Category, n)
	for i := range out {
		out[i] = design.Category{Name: fmt.Sprintf("c%d", i)}
	}
	return out
}

func powerDesign(samples, tests, alphas, betas, sigmas int) *design.StudyDesign {
	d := &design.StudyDesign{SolutionType: design.SolvePower}
	for i := 0; i < samples; i++ {
		d.SampleSizes = append(d.SampleSizes, 10*(i+1))
	}
	all := []design.StatisticalTest{design.TestHotelling, design.TestWilks, design.TestPillai, design.TestUnirep}
	d.StatisticalTests = all[:tests]
	for i := 0; i < alphas; i++ {
		d.Alphas = append(d.Alphas, 0.01*float64(i+1))
	}
	for i := 0; i < betas; i++ {
		d.BetaScales = append(d.BetaScales, float64(i+1))
	}
	for i := 0; i < sigmas; i++ {
		d.SigmaScales = append(d.SigmaScales, float64(i+1))
	}
	return d
}

func TestValidateAcceptsCasesAtLimit(t *testing.T) {
	d := powerDesign(3, 2, 2, 3, 2)
	assert.Equal(t, 72, CountCases(d))
	assert.NoError(t, NewValidator(DefaultLimits()).Validate(d))
}

func TestValidateRejectsTooManyCases(t *testing.T) {
	d := powerDesign(4, 2, 2, 3, 3)
	err := NewValidator(DefaultLimits()).Validate(d)
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))

	msg := err.Error()
	assert.Contains(t, msg, "no more than 72 cases.")
	assert.Contains(t, msg, "144 cases (4 × 2 × 2 × 3 × 3):")
	assert.Contains(t, msg, "<li>4 Group Sizes</li>")
	assert.Contains(t, msg, "<li>2 Statistical Tests</li>")
	assert.Contains(t, msg, "<li>2 Type I Error Rates</li>")
	assert.Contains(t, msg, "<li>3 Scale Factors for Means</li>")
	assert.Contains(t, msg, "<li>3 Scale Factors for Variability</li>")
	assert.NotContains(t, msg, "Power Method")
}

func TestCaseCountSingularNouns(t *testing.T) {
	d := powerDesign(1, 1, 1, 1, 1)
	d.SolutionType = design.SolveSampleSize
	d.NominalPowers = []float64{0.8, 0.9}
	d.PowerMethods = []design.PowerMethod{design.PowerUnconditional, design.PowerQuantile}
	d.Quantiles = []float64{0.25, 0.5, 0.75}

	err := NewValidator(Limits{MaxCases: 5}).Validate(d)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "8 cases (2 × 1 × 1 × 1 × 1 × 4):")
	assert.Contains(t, msg, "<li>2 Desired Powers</li>")
	assert.Contains(t, msg, "<li>1 Statistical Test</li>")
	assert.Contains(t, msg, "<li>1 Type I Error Rate</li>")
	assert.Contains(t, msg, "<li>1 Scale Factor For Means</li>")
	assert.Contains(t, msg, "<li>1 Scale Factor for Variability</li>")
	assert.Contains(t, msg, "<li>4 Power Methods</li>")
}

func TestEmptyListsWeighOne(t *testing.T) {
	d := powerDesign(2, 1, 0, 1, 1)
	d.Alphas = []float64{}
	assert.Equal(t, 2, CountCases(d))

	// detectable difference has no unit dimension
	d.SolutionType = design.SolveDetectableDifference
	assert.Equal(t, 1, CountCases(d))
}

func TestConditionalPowerMethodDoesNotCount(t *testing.T) {
	d := powerDesign(1, 1, 1, 1, 1)
	d.PowerMethods = []design.PowerMethod{design.PowerConditional}
	assert.Equal(t, 1, CountCases(d))
}

func TestValidateRejectsTooManyGroups(t *testing.T) {
	d := powerDesign(1, 1, 1, 1, 1)
	d.BetweenFactors = []design.BetweenFactor{
		{PredictorName: "site", Categories: categories(11)},
		{PredictorName: "arm", Categories: categories(10)},
	}
	err := NewValidator(DefaultLimits()).Validate(d)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "no more than 100 groups.")
	assert.Contains(t, msg, "110 groups (11 × 10):")
	assert.Contains(t, msg, "<li>predictor 'site' has 11 values</li>")
	assert.Contains(t, msg, "<li>predictor 'arm' has 10 values</li>")

	d.BetweenFactors[0].Categories = categories(10)
	assert.NoError(t, NewValidator(DefaultLimits()).Validate(d))
}

func TestGroupCountSaturates(t *testing.T) {
	d := powerDesign(1, 1, 1, 1, 1)
	for i := 0; i < 64; i++ {
		d.BetweenFactors = append(d.BetweenFactors, design.BetweenFactor{
			PredictorName: fmt.Sprintf("f%d", i),
			Categories:    categories(2),
		})
	}
	assert.Equal(t, MaxCount, CountGroups(d))

	err := NewValidator(DefaultLimits()).Validate(d)
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.Contains(t, err.Error(), "2,147,483,647 groups")
}

func TestCaseCountSaturates(t *testing.T) {
	d := powerDesign(1, 1, 1, 1, 1)
	d.SampleSizes = make([]int, 1<<16)
	d.Alphas = make([]float64, 1<<16)
	d.BetaScales = make([]float64, 1<<16)
	d.SigmaScales = make([]float64, 1<<16)
	assert.Equal(t, MaxCount, CountCases(d))
	assert.Error(t, NewValidator(DefaultLimits()).Validate(d))
}

func TestEmptyCategoryListWeighsOne(t *testing.T) {
	d := powerDesign(1, 1, 1, 1, 1)
	d.BetweenFactors = []design.BetweenFactor{
		{PredictorName: "arm", Categories: categories(3)},
		{PredictorName: "site"},
	}
	assert.Equal(t, 3, CountGroups(d))
}

func TestDuplicateNames(t *testing.T) {
	d := powerDesign(1, 1, 1, 1, 1)
	d.RepeatedMeasures = []design.RepeatedMeasuresNode{
		{Dimension: "time", NumberOfMeasurements: 3},
		{Dimension: "time", NumberOfMeasurements: 2},
	}
	err := NewValidator(DefaultLimits()).Validate(d)
	require.Error(t, err)
	assert.Equal(t, "Duplicate repeated measures dimension 'time'", err.Error())

	d.RepeatedMeasures = d.RepeatedMeasures[:1]
	d.Covariances = []design.Covariance{{Name: "error"}, {Name: "error"}}
	err = NewValidator(DefaultLimits()).Validate(d)
	require.Error(t, err)
	assert.Equal(t, "Duplicate covariance name 'error'", err.Error())
}

func TestMissingSolutionTypeAndNilDesign(t *testing.T) {
	v := NewValidator(DefaultLimits())
	d := powerDesign(1, 1, 1, 1, 1)
	d.SolutionType = ""
	assert.True(t, core.IsValidationError(v.Validate(d)))
	assert.True(t, core.IsValidationError(v.Validate(nil)))
}

func TestPretty(t *testing.T) {
	assert.Equal(t, "72", pretty(72))
	assert.Equal(t, "1,000", pretty(1000))
	assert.Equal(t, "1,234,567", pretty(1234567))
	assert.Equal(t, "-4,096", pretty(-4096))
}
