// Package testkit holds study design fixtures shared by tests across packages.
package testkit

import "powersvc/domain/design"

// Factor builds a between-participant factor with the given categories
func Factor(name string, categories ...string) design.BetweenFactor {
	f := design.BetweenFactor{PredictorName: name}
	for _, c := range categories {
		f.Categories = append(f.Categories, design.Category{Name: c})
	}
	return f
}

// TwoGroupDesign is a two-sample comparison of one response with unit
// variance and a mean difference of one. At 17 per group its power is
// about 0.807 at alpha 0.05.
func TwoGroupDesign() *design.StudyDesign {
	treatment := Factor("treatment", "placebo", "drug")
	return &design.StudyDesign{
		Name:           "two group",
		ViewType:       design.GuidedMode,
		BetweenFactors: []design.BetweenFactor{treatment},
		Responses:      []string{"score"},
		Covariances: []design.Covariance{
			{Name: design.ResponsesCovarianceLabel, Type: design.UnstructuredCovariance, Blob: [][]float64{{1}}},
		},
		Hypotheses: []design.Hypothesis{{
			Type:            design.MainEffect,
			BetweenMappings: []design.BetweenMapping{{Factor: treatment}},
		}},
		Matrices: []design.NamedMatrix{
			{Name: design.MatrixBeta, Rows: 2, Columns: 1, Data: [][]float64{{0}, {1}}},
		},
		StatisticalTests: []design.StatisticalTest{design.TestHotelling},
		Alphas:           []float64{0.05},
		SampleSizes:      []int{17},
		NominalPowers:    []float64{0.8},
	}
}

// RepeatedMeasuresDesign compares two groups over three LEAR-correlated
// measurements.
func RepeatedMeasuresDesign() *design.StudyDesign {
	treatment := Factor("treatment", "placebo", "drug")
	return &design.StudyDesign{
		Name:             "repeated measures",
		ViewType:         design.GuidedMode,
		BetweenFactors:   []design.BetweenFactor{treatment},
		RepeatedMeasures: []design.RepeatedMeasuresNode{{Dimension: "time", NumberOfMeasurements: 3}},
		Responses:        []string{"y"},
		Covariances: []design.Covariance{
			{Name: "time", Type: design.LearCorrelation, Rho: 0.5, Delta: 1, StandardDeviations: []float64{1}},
			{Name: design.ResponsesCovarianceLabel, Type: design.UnstructuredCovariance, Blob: [][]float64{{1}}},
		},
		Hypotheses: []design.Hypothesis{{
			Type:            design.MainEffect,
			BetweenMappings: []design.BetweenMapping{{Factor: treatment}},
		}},
		Matrices: []design.NamedMatrix{
			{Name: design.MatrixBeta, Rows: 2, Columns: 3, Data: [][]float64{{0, 0, 0}, {1, 1, 1}}},
		},
		StatisticalTests: []design.StatisticalTest{design.TestHotelling, design.TestUnirepGG},
		Alphas:           []float64{0.05},
		SampleSizes:      []int{10, 20},
		NominalPowers:    []float64{0.9},
	}
}

// CovariateDesign adds a Gaussian covariate to RepeatedMeasuresDesign
func CovariateDesign() *design.StudyDesign {
	d := RepeatedMeasuresDesign()
	d.Name = "gaussian covariate"
	d.GaussianCovariate = true
	d.Matrices = append(d.Matrices,
		design.NamedMatrix{Name: design.MatrixBetaRandom, Rows: 1, Columns: 3, Data: [][]float64{{0.5, 0.5, 0.5}}},
		design.NamedMatrix{Name: design.MatrixSigmaGaussian, Rows: 1, Columns: 1, Data: [][]float64{{1}}},
		design.NamedMatrix{Name: design.MatrixSigmaOutcomeGaussian, Rows: 3, Columns: 1, Data: [][]float64{{0.3}, {0.3}, {0.3}}},
	)
	d.StatisticalTests = []design.StatisticalTest{design.TestHotelling}
	d.SampleSizes = []int{20}
	d.PowerMethods = []design.PowerMethod{design.PowerUnconditional, design.PowerQuantile}
	d.Quantiles = []float64{0.5}
	return d
}
