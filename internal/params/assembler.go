// Package params turns a validated study design into the numeric parameter
// bundle consumed by the power engine.
package params

import (
	"math"

	"powersvc/domain/core"
	"powersvc/domain/design"
	"powersvc/domain/power"
	"powersvc/internal"
	"powersvc/internal/matrixutil"
	"powersvc/ports"

	"gonum.org/v1/gonum/mat"
)

// Assembler builds parameter bundles and matrix previews
type Assembler struct {
	contrasts   ports.ContrastBuilder
	covariances ports.CovarianceBuilder
	logger      *internal.Logger
}

// NewAssembler creates an assembler over the given builders
func NewAssembler(contrasts ports.ContrastBuilder, covariances ports.CovarianceBuilder, logger *internal.Logger) *Assembler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Assembler{
		contrasts:   contrasts,
		covariances: covariances,
		logger:      logger,
	}
}

// BuildParameters assembles the full bundle for d. The design is expected to
// have passed validation; structural problems found here are reported as
// *core.ValidationError.
func (a *Assembler) BuildParameters(d *design.StudyDesign) (*power.Parameters, error) {
	if d == nil {
		return nil, core.NewValidationError("Invalid study design")
	}

	p := &power.Parameters{
		SolutionType:  d.SolutionType,
		Tests:         append([]design.StatisticalTest(nil), d.StatisticalTests...),
		Alphas:        append([]float64(nil), d.Alphas...),
		NominalPowers: append([]float64(nil), d.NominalPowers...),
		SampleSizes:   append([]int(nil), d.SampleSizes...),
		BetaScales:    append([]float64(nil), d.BetaScales...),
		SigmaScales:   append([]float64(nil), d.SigmaScales...),
	}

	var err error
	if p.Design, err = a.DesignMatrix(d); err != nil {
		return nil, err
	}
	a.debug("design", p.Design)

	if p.Beta, err = a.Beta(d); err != nil {
		return nil, err
	}
	a.debug("beta", p.Beta.Stacked())

	if p.BetweenContrast, err = a.BetweenContrast(d); err != nil {
		return nil, err
	}
	if p.WithinContrast, err = a.WithinContrast(d); err != nil {
		return nil, err
	}
	a.debug("withinContrast", p.WithinContrast)

	if p.ThetaNull, err = a.ThetaNull(d, p.BetweenContrast, p.WithinContrast); err != nil {
		return nil, err
	}

	if d.GaussianCovariate {
		if err := a.covariateMatrices(d, p); err != nil {
			return nil, err
		}
		p.PowerMethods = append([]design.PowerMethod(nil), d.PowerMethods...)
		p.Quantiles = append([]float64(nil), d.Quantiles...)
		return p, nil
	}

	sigma, err := a.SigmaError(d)
	if err != nil {
		return nil, err
	}
	p.SigmaError = matrixutil.ForceSymmetric(sigma)
	a.debug("sigmaError", p.SigmaError)
	p.PowerMethods = []design.PowerMethod{design.PowerConditional}
	p.ConfidenceInterval = confidenceInterval(d.ConfidenceInterval)
	return p, nil
}

// NamedMatrices builds the preview list of named matrices for d without
// computing anything.
func (a *Assembler) NamedMatrices(d *design.StudyDesign) ([]design.NamedMatrix, error) {
	if d == nil {
		return nil, core.NewValidationError("Invalid study design")
	}

	var out []design.NamedMatrix
	add := func(m *mat.Dense, name string) {
		if nm := matrixutil.ToNamed(m, name); nm != nil {
			out = append(out, *nm)
		}
	}

	x, err := a.DesignMatrix(d)
	if err != nil {
		return nil, err
	}
	add(x, design.MatrixDesign)

	beta, err := a.Beta(d)
	if err != nil {
		return nil, err
	}
	add(beta.Fixed, design.MatrixBeta)
	if d.GaussianCovariate {
		add(beta.Random, design.MatrixBetaRandom)
	}

	c, err := a.BetweenContrast(d)
	if err != nil {
		return nil, err
	}
	if c != nil {
		add(c.Fixed, design.MatrixBetweenContrast)
		if d.GaussianCovariate {
			add(c.Random, design.MatrixBetweenContrastRandom)
		}
	}

	u, err := a.WithinContrast(d)
	if err != nil {
		return nil, err
	}
	add(u, design.MatrixWithinContrast)

	theta, err := a.ThetaNull(d, c, u)
	if err != nil {
		return nil, err
	}
	add(theta, design.MatrixThetaNull)

	if d.GaussianCovariate {
		p := &power.Parameters{}
		if err := a.covariateMatrices(d, p); err != nil {
			return nil, err
		}
		add(p.SigmaOutcome, design.MatrixSigmaOutcome)
		add(p.SigmaGaussian, design.MatrixSigmaGaussian)
		add(p.SigmaOutcomeGaussian, design.MatrixSigmaOutcomeGaussian)
		return out, nil
	}

	sigma, err := a.SigmaError(d)
	if err != nil {
		return nil, err
	}
	add(sigma, design.MatrixSigmaError)
	return out, nil
}

// DesignMatrix returns the literal design matrix in matrix mode, or a cell
// means coding of the between-participant groups in guided mode.
func (a *Assembler) DesignMatrix(d *design.StudyDesign) (*mat.Dense, error) {
	if d.ViewType == design.MatrixMode {
		return matrixutil.FromNamed(d.Matrix(design.MatrixDesign))
	}

	groups := 1
	for _, f := range d.BetweenFactors {
		if len(f.Categories) > 0 {
			groups *= len(f.Categories)
		}
	}

	sizes := d.RelativeGroupSizes
	if groups == 1 || len(sizes) == 0 {
		return matrixutil.Identity(groups), nil
	}
	if len(sizes) != groups {
		return nil, core.NewValidationError("Invalid list of relative group sizes")
	}

	rows := 0
	for _, s := range sizes {
		if s < 0 {
			return nil, core.NewValidationError("Invalid list of relative group sizes")
		}
		rows += s
	}
	if rows <= 0 {
		return nil, core.NewValidationError("Unable to produce a valid design matrix")
	}

	// group g owns sizes[g] contiguous rows coded 1 in column g
	x := mat.NewDense(rows, groups, nil)
	row := 0
	for col, s := range sizes {
		for i := 0; i < s; i++ {
			x.Set(row, col, 1)
			row++
		}
	}
	return x, nil
}

// Beta returns the fixed and random regression coefficients, repeated once
// per cluster member in guided mode.
func (a *Assembler) Beta(d *design.StudyDesign) (power.FixedRandom, error) {
	var beta power.FixedRandom
	var err error
	if beta.Fixed, err = matrixutil.FromNamed(d.Matrix(design.MatrixBeta)); err != nil {
		return beta, err
	}
	if beta.Random, err = matrixutil.FromNamed(d.Matrix(design.MatrixBetaRandom)); err != nil {
		return beta, err
	}

	if d.ViewType == design.GuidedMode && len(d.ClusteringTree) > 0 {
		members, err := clusterSize(d)
		if err != nil {
			return beta, err
		}
		ones := matrixutil.Filled(1, members, 1)
		if beta.Fixed != nil {
			beta.Fixed = matrixutil.Kron(ones, beta.Fixed)
		}
		if beta.Random != nil {
			beta.Random = matrixutil.Kron(ones, beta.Random)
		}
	}
	return beta, nil
}

// BetweenContrast returns C. In guided mode it is built from the primary
// hypothesis; a design without hypotheses has no contrast.
func (a *Assembler) BetweenContrast(d *design.StudyDesign) (*power.FixedRandom, error) {
	if d.ViewType == design.MatrixMode {
		fixed, err := matrixutil.FromNamed(d.Matrix(design.MatrixBetweenContrast))
		if err != nil {
			return nil, err
		}
		random, err := matrixutil.FromNamed(d.Matrix(design.MatrixBetweenContrastRandom))
		if err != nil {
			return nil, err
		}
		return &power.FixedRandom{Fixed: fixed, Random: random}, nil
	}

	h := d.PrimaryHypothesis()
	if h == nil {
		return nil, nil
	}

	var fixed *mat.Dense
	var err error
	if len(h.BetweenMappings) > 0 {
		first := h.BetweenMappings[0]
		switch h.Type {
		case design.MainEffect:
			fixed, err = a.contrasts.MainEffectBetween(first, d.BetweenFactors)
		case design.Interaction:
			fixed, err = a.contrasts.InteractionBetween(h.BetweenMappings, d.BetweenFactors)
		case design.Trend:
			fixed, err = a.contrasts.TrendBetween(first, d.BetweenFactors)
		case design.Manova:
			fixed, err = a.contrasts.ManovaBetween(first, d.BetweenFactors)
		default:
			return nil, core.NewValidationError("Unknown hypothesis type '%s'", h.Type)
		}
	} else {
		fixed, err = a.contrasts.GrandMeanBetween(d.BetweenFactors)
	}
	if err != nil {
		return nil, err
	}

	c := &power.FixedRandom{Fixed: fixed}
	if d.GaussianCovariate && fixed != nil {
		r, _ := fixed.Dims()
		c.Random = mat.NewDense(r, 1, nil)
	}
	a.debug("betweenContrast", c.Augmented())
	return c, nil
}

// WithinContrast returns U. In guided mode it is built from the primary
// hypothesis and repeated once per cluster member.
func (a *Assembler) WithinContrast(d *design.StudyDesign) (*mat.Dense, error) {
	if d.ViewType == design.MatrixMode {
		return matrixutil.FromNamed(d.Matrix(design.MatrixWithinContrast))
	}

	h := d.PrimaryHypothesis()
	if h == nil {
		return nil, nil
	}

	var u *mat.Dense
	var err error
	switch {
	case h.Type == design.Manova:
		u, err = a.contrasts.ManovaWithin(d.RepeatedMeasures, d.Responses)
	case len(h.WithinMappings) > 0:
		first := h.WithinMappings[0]
		switch h.Type {
		case design.MainEffect:
			u, err = a.contrasts.MainEffectWithin(first, d.RepeatedMeasures, d.Responses)
		case design.Interaction:
			u, err = a.contrasts.InteractionWithin(h.WithinMappings, d.RepeatedMeasures, d.Responses)
		case design.Trend:
			u, err = a.contrasts.TrendWithin(first, d.RepeatedMeasures, d.Responses)
		default:
			return nil, core.NewValidationError("Unknown hypothesis type '%s'", h.Type)
		}
	default:
		u, err = a.contrasts.GrandMeanWithin(d.RepeatedMeasures, d.Responses)
	}
	if err != nil {
		return nil, err
	}

	if u != nil && len(d.ClusteringTree) > 0 {
		members, err := clusterSize(d)
		if err != nil {
			return nil, err
		}
		u = matrixutil.Kron(matrixutil.Filled(members, 1, 1), u)
	}
	return u, nil
}

// ThetaNull returns the literal null hypothesis matrix, or in guided mode a
// zero matrix shaped rows(C) x cols(U) when none is given.
func (a *Assembler) ThetaNull(d *design.StudyDesign, c *power.FixedRandom, u *mat.Dense) (*mat.Dense, error) {
	theta, err := matrixutil.FromNamed(d.Matrix(design.MatrixThetaNull))
	if err != nil || theta != nil || d.ViewType == design.MatrixMode {
		return theta, err
	}
	if c == nil || c.Fixed == nil || u == nil {
		return nil, nil
	}
	rows, _ := c.Fixed.Dims()
	_, cols := u.Dims()
	return mat.NewDense(rows, cols, nil), nil
}

// SigmaError returns the error covariance. Guided designs compose cluster,
// repeated-measures and response blocks by Kronecker product in that order.
func (a *Assembler) SigmaError(d *design.StudyDesign) (*mat.Dense, error) {
	if d.ViewType == design.MatrixMode {
		return matrixutil.FromNamed(d.Matrix(design.MatrixSigmaError))
	}

	if _, err := clusterSize(d); err != nil {
		return nil, err
	}
	var blocks []mat.Matrix
	for _, node := range d.ClusteringTree {
		blocks = append(blocks, clusterBlock(node))
	}

	for _, node := range d.RepeatedMeasures {
		cov := d.CovarianceFor(node.Dimension)
		if cov == nil {
			return nil, core.NewValidationError("Missing covariance information for factor: %s", node.Dimension)
		}
		m := a.covariances.CovarianceToMatrix(cov, node.NumberOfMeasurements, node.Spacing)
		if m == nil {
			return nil, core.NewValidationError("Invalid covariance information for factor: %s", node.Dimension)
		}
		blocks = append(blocks, m)
	}

	m := a.covariances.CovarianceToMatrix(d.CovarianceFor(design.ResponsesCovarianceLabel), len(d.Responses), nil)
	if m == nil {
		return nil, core.NewValidationError("Invalid covariance information for response variables")
	}
	blocks = append(blocks, m)

	return matrixutil.KronAll(blocks), nil
}

// clusterSize is the number of members per cluster; every level must have
// a positive group size.
func clusterSize(d *design.StudyDesign) (int, error) {
	for _, node := range d.ClusteringTree {
		if node.GroupSize <= 0 {
			return 0, core.NewValidationError("Invalid group size %d for cluster '%s'", node.GroupSize, node.GroupName)
		}
	}
	return d.ClusterSize(), nil
}

// clusterBlock is the compound symmetric correlation within one cluster level
func clusterBlock(node design.ClusterNode) *mat.Dense {
	n := node.GroupSize
	m := matrixutil.Filled(n, n, node.IntraClusterCorrelation)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// covariateMatrices fills the outcome, covariate and outcome-covariate
// covariances of a Gaussian-covariate design.
func (a *Assembler) covariateMatrices(d *design.StudyDesign, p *power.Parameters) error {
	var err error
	if d.ViewType == design.MatrixMode {
		if p.SigmaOutcome, err = matrixutil.FromNamed(d.Matrix(design.MatrixSigmaOutcome)); err != nil {
			return err
		}
		if p.SigmaGaussian, err = matrixutil.FromNamed(d.Matrix(design.MatrixSigmaGaussian)); err != nil {
			return err
		}
		p.SigmaOutcomeGaussian, err = matrixutil.FromNamed(d.Matrix(design.MatrixSigmaOutcomeGaussian))
		return err
	}

	if p.SigmaOutcome, err = a.SigmaError(d); err != nil {
		return err
	}
	a.debug("sigmaOutcome", p.SigmaOutcome)

	// guided designs give the covariate's standard deviation
	if p.SigmaGaussian, err = matrixutil.FromNamed(d.Matrix(design.MatrixSigmaGaussian)); err != nil {
		return err
	}
	if p.SigmaGaussian != nil {
		sd := p.SigmaGaussian.At(0, 0)
		p.SigmaGaussian.Set(0, 0, sd*sd)
	}

	p.SigmaOutcomeGaussian, err = a.outcomeCovariate(d, p.SigmaGaussian, p.SigmaOutcome)
	a.debug("sigmaOutcomeGaussian", p.SigmaOutcomeGaussian)
	return err
}

// outcomeCovariate converts per-outcome correlations with the covariate into
// covariances and repeats them once per cluster member.
func (a *Assembler) outcomeCovariate(d *design.StudyDesign, sigmaG, sigmaY *mat.Dense) (*mat.Dense, error) {
	corr, err := matrixutil.FromNamed(d.Matrix(design.MatrixSigmaOutcomeGaussian))
	if err != nil || corr == nil {
		return nil, err
	}
	if sigmaG == nil {
		return nil, core.NewValidationError("Invalid covariance for Gaussian covariate")
	}
	if sigmaY == nil {
		return nil, core.NewValidationError("Invalid covariance for outcome: no outcome covariance")
	}
	yr, yc := sigmaY.Dims()
	cr, cc := corr.Dims()
	if yr < cr || yr != yc {
		return nil, core.NewValidationError("Invalid covariance for outcome: sigmaY is %d x %d, sigmaYG is %d x %d", yr, yc, cr, cc)
	}

	varG := sigmaG.At(0, 0)
	cov := mat.NewDense(cr, 1, nil)
	for row := 0; row < cr; row++ {
		cov.Set(row, 0, corr.At(row, 0)*math.Sqrt(varG*sigmaY.At(row, row)))
	}

	if len(d.ClusteringTree) > 0 {
		members, err := clusterSize(d)
		if err != nil {
			return nil, err
		}
		cov = matrixutil.Kron(matrixutil.Filled(members, 1, 1), cov)
	}
	return cov, nil
}

func confidenceInterval(desc *design.ConfidenceIntervalDescription) power.ConfidenceIntervalParams {
	ci := power.ConfidenceIntervalParams{Type: power.CINone}
	if desc == nil {
		return ci
	}
	ci.AlphaLower = desc.LowerTailProbability
	ci.AlphaUpper = desc.UpperTailProbability
	ci.SampleSize = desc.SampleSize
	ci.Rank = desc.RankOfDesignMatrix
	switch {
	case desc.BetaFixed && !desc.SigmaFixed:
		ci.Type = power.CIBetaKnownSigmaEstimated
	case !desc.BetaFixed && !desc.SigmaFixed:
		ci.Type = power.CIBetaSigmaEstimated
	}
	return ci
}

func (a *Assembler) debug(label string, m *mat.Dense) {
	if a.logger.GetLevel() < internal.LogLevelDebug {
		return
	}
	a.logger.Debug("%s", matrixutil.Format(label, m))
}
