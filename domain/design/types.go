package design

import "fmt"

// ViewType selects how the matrices of a study design are specified
type ViewType string

const (
	MatrixMode ViewType = "MATRIX_MODE"
	GuidedMode ViewType = "GUIDED_MODE"
)

// SolutionType is the quantity the engine solves for
type SolutionType string

const (
	SolvePower                SolutionType = "POWER"
	SolveSampleSize           SolutionType = "SAMPLE_SIZE"
	SolveDetectableDifference SolutionType = "DETECTABLE_DIFFERENCE"
)

// HypothesisType identifies the kind of contrast built for the primary hypothesis
type HypothesisType string

const (
	MainEffect  HypothesisType = "MAIN_EFFECT"
	Interaction HypothesisType = "INTERACTION"
	Trend       HypothesisType = "TREND"
	Manova      HypothesisType = "MANOVA"
)

// TrendType selects the polynomial contrast for a factor in a trend or interaction hypothesis
type TrendType string

const (
	TrendNone               TrendType = "NONE"
	TrendChangeFromBaseline TrendType = "CHANGE_FROM_BASELINE"
	TrendAllPolynomial      TrendType = "ALL_POLYNOMIAL"
	TrendLinear             TrendType = "LINEAR"
	TrendQuadratic          TrendType = "QUADRATIC"
	TrendCubic              TrendType = "CUBIC"
)

// StatisticalTest names a test in the sweep
type StatisticalTest string

const (
	TestUnirep    StatisticalTest = "UNIREP"
	TestUnirepBox StatisticalTest = "UNIREPBOX"
	TestUnirepGG  StatisticalTest = "UNIREPGG"
	TestUnirepHF  StatisticalTest = "UNIREPHF"
	TestWilks     StatisticalTest = "WL"
	TestPillai    StatisticalTest = "PBT"
	TestHotelling StatisticalTest = "HLT"
)

// PowerMethod names the strategy for handling covariate uncertainty
type PowerMethod string

const (
	PowerConditional   PowerMethod = "CONDITIONAL"
	PowerUnconditional PowerMethod = "UNCONDITIONAL"
	PowerQuantile      PowerMethod = "QUANTILE"
)

// CovarianceType names a declared covariance structure
type CovarianceType string

const (
	UnstructuredCovariance  CovarianceType = "UNSTRUCTURED_COVARIANCE"
	UnstructuredCorrelation CovarianceType = "UNSTRUCTURED_CORRELATION"
	LearCorrelation         CovarianceType = "LEAR_CORRELATION"
	CompoundSymmetric       CovarianceType = "COMPOUND_SYMMETRIC"
)

// Names of the matrices a design may carry literally, and of the matrices
// reported by the preview request.
const (
	MatrixDesign                = "design"
	MatrixBeta                  = "beta"
	MatrixBetaRandom            = "betaRandom"
	MatrixBetweenContrast       = "betweenSubjectContrast"
	MatrixBetweenContrastRandom = "betweenSubjectContrastRandom"
	MatrixWithinContrast        = "withinSubjectContrast"
	MatrixThetaNull             = "thetaNull"
	MatrixSigmaError            = "sigmaError"
	MatrixSigmaOutcome          = "sigmaOutcome"
	MatrixSigmaGaussian         = "sigmaGaussianRandom"
	MatrixSigmaOutcomeGaussian  = "sigmaOutcomeGaussianRandom"
	ResponsesCovarianceLabel    = "__RESPONSE_COVARIANCE__"
)

// Category is one level of a between-participant factor
type Category struct {
	Name string `json:"category"`
}

// BetweenFactor is a between-participant predictor with ordered categories
type BetweenFactor struct {
	PredictorName string     `json:"predictorName"`
	Categories    []Category `json:"categoryList"`
}

// RepeatedMeasuresNode is one repeated-measures factor
type RepeatedMeasuresNode struct {
	Dimension            string    `json:"dimension"`
	NumberOfMeasurements int       `json:"numberOfMeasurements"`
	Spacing              []float64 `json:"spacingList,omitempty"`
}

// ClusterNode is one level of a clustering tree
type ClusterNode struct {
	GroupName               string  `json:"groupName"`
	GroupSize               int     `json:"groupSize"`
	IntraClusterCorrelation float64 `json:"intraClusterCorrelation"`
}

// Covariance is a declared covariance structure keyed by dimension name
type Covariance struct {
	Name               string         `json:"name"`
	Type               CovarianceType `json:"type"`
	StandardDeviations []float64      `json:"standardDeviationList,omitempty"`
	Rho                float64        `json:"rho"`
	Delta              float64        `json:"delta"`
	Rows               int            `json:"rows"`
	Columns            int            `json:"columns"`
	Blob               [][]float64    `json:"blob,omitempty"`
}

// BetweenMapping ties a hypothesis to a between-participant factor
type BetweenMapping struct {
	Factor BetweenFactor `json:"betweenParticipantFactor"`
	Trend  TrendType     `json:"type,omitempty"`
}

// WithinMapping ties a hypothesis to a repeated-measures factor
type WithinMapping struct {
	Node  RepeatedMeasuresNode `json:"repeatedMeasuresNode"`
	Trend TrendType            `json:"type,omitempty"`
}

// Hypothesis is the hypothesis under test
type Hypothesis struct {
	Type            HypothesisType   `json:"type"`
	BetweenMappings []BetweenMapping `json:"betweenParticipantFactorMapList,omitempty"`
	WithinMappings  []WithinMapping  `json:"repeatedMeasuresMapTree,omitempty"`
}

// NamedMatrix is a literal matrix carried by the design
type NamedMatrix struct {
	Name    string      `json:"name"`
	Rows    int         `json:"rows"`
	Columns int         `json:"columns"`
	Data    [][]float64 `json:"data"`
}

// ConfidenceIntervalDescription declares how beta and sigma were estimated
type ConfidenceIntervalDescription struct {
	BetaFixed            bool    `json:"betaFixed"`
	SigmaFixed           bool    `json:"sigmaFixed"`
	LowerTailProbability float64 `json:"lowerTailProbability"`
	UpperTailProbability float64 `json:"upperTailProbability"`
	SampleSize           int     `json:"sampleSize"`
	RankOfDesignMatrix   int     `json:"rankOfDesignMatrix"`
}

// StudyDesign is the declarative description of a study. It is read-only
// for the lifetime of a request.
type StudyDesign struct {
	Name               string                 `json:"name,omitempty"`
	ViewType           ViewType               `json:"viewTypeEnum"`
	SolutionType       SolutionType           `json:"solutionTypeEnum"`
	GaussianCovariate  bool                   `json:"gaussianCovariate"`
	BetweenFactors     []BetweenFactor        `json:"betweenParticipantFactorList,omitempty"`
	RepeatedMeasures   []RepeatedMeasuresNode `json:"repeatedMeasuresTree,omitempty"`
	ClusteringTree     []ClusterNode          `json:"clusteringTree,omitempty"`
	Responses          []string               `json:"responseList,omitempty"`
	Covariances        []Covariance           `json:"covariance,omitempty"`
	RelativeGroupSizes []int                  `json:"relativeGroupSizeList,omitempty"`
	Hypotheses         []Hypothesis           `json:"hypothesis,omitempty"`
	Matrices           []NamedMatrix          `json:"matrixSet,omitempty"`

	StatisticalTests []StatisticalTest `json:"statisticalTestList,omitempty"`
	Alphas           []float64         `json:"alphaList,omitempty"`
	NominalPowers    []float64         `json:"nominalPowerList,omitempty"`
	SampleSizes      []int             `json:"sampleSizeList,omitempty"`
	BetaScales       []float64         `json:"betaScaleList,omitempty"`
	SigmaScales      []float64         `json:"sigmaScaleList,omitempty"`
	PowerMethods     []PowerMethod     `json:"powerMethodList,omitempty"`
	Quantiles        []float64         `json:"quantileList,omitempty"`

	ConfidenceInterval *ConfidenceIntervalDescription `json:"confidenceIntervalDescriptions,omitempty"`
}

// Matrix returns the literal matrix with the given name, or nil
func (d *StudyDesign) Matrix(name string) *NamedMatrix {
	for i := range d.Matrices {
		if d.Matrices[i].Name == name {
			return &d.Matrices[i]
		}
	}
	return nil
}

// CovarianceFor returns the covariance declared for a dimension name, or nil
func (d *StudyDesign) CovarianceFor(name string) *Covariance {
	for i := range d.Covariances {
		if d.Covariances[i].Name == name {
			return &d.Covariances[i]
		}
	}
	return nil
}

// PrimaryHypothesis returns the first hypothesis. Only the primary
// hypothesis is used to build contrasts.
func (d *StudyDesign) PrimaryHypothesis() *Hypothesis {
	if len(d.Hypotheses) == 0 {
		return nil
	}
	return &d.Hypotheses[0]
}

// HasPowerMethod reports whether the design requests the given power method
func (d *StudyDesign) HasPowerMethod(m PowerMethod) bool {
	for _, pm := range d.PowerMethods {
		if pm == m {
			return true
		}
	}
	return false
}

// ClusterSize is the product of all cluster group sizes, or 1 without clustering
func (d *StudyDesign) ClusterSize() int {
	total := 1
	for _, node := range d.ClusteringTree {
		total *= node.GroupSize
	}
	return total
}

// Validate checks the enum fields that the JSON layer cannot
func (v ViewType) Validate() error {
	switch v {
	case MatrixMode, GuidedMode:
		return nil
	}
	return fmt.Errorf("unknown view type %q", string(v))
}
