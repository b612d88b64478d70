package glmm

import (
	"errors"
	"fmt"
	"math"

	"powersvc/domain/core"
	"powersvc/domain/design"
	"powersvc/domain/power"
	"powersvc/internal/matrixutil"

	"gonum.org/v1/gonum/mat"
)

var (
	errTooFewDF     = errors.New("too few error degrees of freedom for this sample size")
	errSearchFailed = errors.New("unable to reach the requested power")
)

// model holds the sample-size independent parts of a GLMM(F) or GLMM(F,g)
// design. Per-group sample size n enters as X'X = n * Xe'Xe.
type model struct {
	groups    int
	rank      int
	covariate bool

	mInv      *mat.Dense // (C_F (Xe'Xe)^- C_F')^-1
	thetaBeta *mat.Dense // C B U
	thetaNull *mat.Dense
	sigmaStar *mat.Dense // U' Sigma U

	a, b int
}

// pointStats is the F approximation for one test at one sweep point
type pointStats struct {
	df1, df2         float64
	lambda           float64
	critDF1, critDF2 float64
}

func prepare(p *power.Parameters, maxElements int) (*model, error) {
	x := p.Design
	if x == nil {
		return nil, core.NewEngineValidationError("Design matrix is missing")
	}
	betaFixed := p.Beta.Fixed
	beta := p.Beta.Stacked()
	if beta == nil {
		return nil, core.NewEngineValidationError("Beta matrix is missing")
	}
	if p.BetweenContrast == nil || p.BetweenContrast.Fixed == nil {
		return nil, core.NewEngineValidationError("Between participant contrast is missing")
	}
	cFixed := p.BetweenContrast.Fixed
	c := p.BetweenContrast.Augmented()
	u := p.WithinContrast
	if u == nil {
		return nil, core.NewEngineValidationError("Within participant contrast is missing")
	}
	if p.ThetaNull == nil {
		return nil, core.NewEngineValidationError("Theta null matrix is missing")
	}

	xRows, xCols := x.Dims()
	betaRows, betaCols := beta.Dims()
	if xRows*xCols > maxElements || betaCols*betaCols > maxElements {
		return nil, fmt.Errorf("%w: design %d x %d, outcome covariance %d x %d",
			core.ErrResourceExhausted, xRows, xCols, betaCols, betaCols)
	}

	sigma, err := errorCovariance(p)
	if err != nil {
		return nil, err
	}

	if r, _ := betaFixed.Dims(); r != xCols {
		return nil, core.NewEngineValidationError("Beta has %d fixed rows but the design matrix has %d columns", r, xCols)
	}
	if _, cc := cFixed.Dims(); cc != xCols {
		return nil, core.NewEngineValidationError("Between participant contrast has %d columns, expected %d", cc, xCols)
	}
	if _, cc := c.Dims(); cc != betaRows {
		return nil, core.NewEngineValidationError("Between participant contrast has %d columns but beta has %d rows", cc, betaRows)
	}
	if ur, _ := u.Dims(); ur != betaCols {
		return nil, core.NewEngineValidationError("Within participant contrast has %d rows but beta has %d columns", ur, betaCols)
	}
	if sr, sc := sigma.Dims(); sr != betaCols || sc != betaCols {
		return nil, core.NewEngineValidationError("Sigma is %d x %d but beta has %d columns", sr, sc, betaCols)
	}

	a, _ := c.Dims()
	_, b := u.Dims()
	if tr, tc := p.ThetaNull.Dims(); tr != a || tc != b {
		return nil, core.NewEngineValidationError("Theta null is %d x %d, expected %d x %d", tr, tc, a, b)
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	xtxInv, rank := pseudoInverse(&xtx)

	var m0 mat.Dense
	m0.Product(cFixed, xtxInv, cFixed.T())
	var mInv mat.Dense
	if err := invert(&mInv, &m0); err != nil {
		return nil, core.NewEngineValidationError("Between participant contrast is not estimable")
	}

	var thetaBeta mat.Dense
	thetaBeta.Product(c, beta, u)

	var utsu mat.Dense
	utsu.Product(u.T(), sigma, u)
	sigmaStar := matrixutil.ForceSymmetric(&utsu)
	if !positiveDefinite(sigmaStar) {
		return nil, core.NewEngineValidationError("U' Sigma U is not positive definite")
	}

	return &model{
		groups:    xRows,
		rank:      rank,
		covariate: p.GaussianCovariate(),
		mInv:      &mInv,
		thetaBeta: &thetaBeta,
		thetaNull: p.ThetaNull,
		sigmaStar: sigmaStar,
		a:         a,
		b:         b,
	}, nil
}

// errorCovariance returns Sigma, conditioning the outcome covariance on the
// Gaussian covariate when there is one.
func errorCovariance(p *power.Parameters) (*mat.Dense, error) {
	if !p.GaussianCovariate() {
		if p.SigmaError == nil {
			return nil, core.NewEngineValidationError("Sigma error matrix is missing")
		}
		return p.SigmaError, nil
	}
	if p.SigmaGaussian == nil || p.SigmaOutcomeGaussian == nil {
		return nil, core.NewEngineValidationError("Gaussian covariate covariance is missing")
	}
	varG := p.SigmaGaussian.At(0, 0)
	if varG <= 0 {
		return nil, core.NewEngineValidationError("Gaussian covariate variance must be positive")
	}
	yr, yc := p.SigmaOutcome.Dims()
	gr, _ := p.SigmaOutcomeGaussian.Dims()
	if yr != yc || gr != yr {
		return nil, core.NewEngineValidationError("Outcome covariance is %d x %d but outcome covariate covariance has %d rows", yr, yc, gr)
	}

	var adj mat.Dense
	adj.Mul(p.SigmaOutcomeGaussian, p.SigmaOutcomeGaussian.T())
	adj.Scale(1/varG, &adj)
	var sigma mat.Dense
	sigma.Sub(p.SigmaOutcome, &adj)
	return &sigma, nil
}

// pseudoInverse returns the Moore-Penrose inverse of m and its rank
func pseudoInverse(m *mat.Dense) (*mat.Dense, int) {
	var svd mat.SVD
	r, c := m.Dims()
	if !svd.Factorize(m, mat.SVDThin) {
		return mat.NewDense(c, r, nil), 0
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := 1e-10
	if len(values) > 0 {
		tol *= values[0] * math.Max(float64(r), float64(c))
	}
	rank := 0
	inv := make([]float64, len(values))
	for i, s := range values {
		if s > tol {
			inv[i] = 1 / s
			rank++
		}
	}
	var tmp, out mat.Dense
	tmp.Mul(&v, mat.NewDiagDense(len(inv), inv))
	out.Mul(&tmp, u.T())
	return &out, rank
}

// invert tolerates ill-conditioning warnings but not exact singularity
func invert(dst *mat.Dense, m mat.Matrix) error {
	err := dst.Inverse(m)
	var cond mat.Condition
	if errors.As(err, &cond) && !math.IsInf(float64(cond), 1) {
		return nil
	}
	return err
}

func positiveDefinite(m *mat.Dense) bool {
	n, _ := m.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, m.At(i, j))
		}
	}
	var chol mat.Cholesky
	return chol.Factorize(sym)
}

// errorDF is the error degrees of freedom for per-group sample size n
func (m *model) errorDF(n int) float64 {
	nu := float64(n*m.groups - m.rank)
	if m.covariate {
		nu--
	}
	return nu
}

// covariateDF is the degrees of freedom of the chi-square that scales the
// noncentrality of a Gaussian-covariate design.
func (m *model) covariateDF(n int) float64 {
	return float64(n*m.groups - m.rank)
}

// stats computes the F approximation for test. hScale multiplies the
// hypothesis sum of squares and carries the covariate adjustment.
func (m *model) stats(test design.StatisticalTest, n int, betaScale, sigmaScale, hScale float64) (pointStats, error) {
	nuE := m.errorDF(n)
	if nuE <= 0 {
		return pointStats{}, errTooFewDF
	}

	var delta mat.Dense
	delta.Scale(betaScale, m.thetaBeta)
	delta.Sub(&delta, m.thetaNull)

	var h mat.Dense
	h.Product(delta.T(), m.mInv, &delta)
	h.Scale(float64(n)*hScale, &h)

	var sigma mat.Dense
	sigma.Scale(sigmaScale, m.sigmaStar)

	a, b := float64(m.a), float64(m.b)
	s := math.Min(a, b)

	switch test {
	case design.TestHotelling:
		var e, eInv, he mat.Dense
		e.Scale(nuE, &sigma)
		if err := invert(&eInv, &e); err != nil {
			return pointStats{}, core.NewEngineValidationError("Error covariance is singular")
		}
		he.Mul(&h, &eInv)
		df2 := s*(nuE-b-1) + 2
		if df2 <= 0 {
			return pointStats{}, errTooFewDF
		}
		return multivariate(a*b, df2, df2*mat.Trace(&he)/s), nil

	case design.TestPillai:
		var e, he, heInv, v mat.Dense
		e.Scale(nuE, &sigma)
		he.Add(&h, &e)
		if err := invert(&heInv, &he); err != nil {
			return pointStats{}, core.NewEngineValidationError("Error covariance is singular")
		}
		v.Mul(&h, &heInv)
		df2 := s * (nuE + s - b)
		if df2 <= 0 {
			return pointStats{}, errTooFewDF
		}
		ratio := mat.Trace(&v) / s
		if ratio >= 1 {
			return multivariate(a*b, df2, math.Inf(1)), nil
		}
		return multivariate(a*b, df2, df2*ratio/(1-ratio)), nil

	case design.TestWilks:
		var e, he mat.Dense
		e.Scale(nuE, &sigma)
		he.Add(&h, &e)
		logE, _ := mat.LogDet(&e)
		logHE, _ := mat.LogDet(&he)
		g := 1.0
		if a*a+b*b-5 > 0 {
			g = math.Sqrt((a*a*b*b - 4) / (a*a + b*b - 5))
		}
		df2 := g*(nuE-(b-a+1)/2) - (a*b-2)/2
		if df2 <= 0 {
			return pointStats{}, errTooFewDF
		}
		eta := 1 - math.Exp((logE-logHE)/g)
		if eta >= 1 {
			return multivariate(a*b, df2, math.Inf(1)), nil
		}
		return multivariate(a*b, df2, df2*eta/(1-eta)), nil

	case design.TestUnirep, design.TestUnirepBox, design.TestUnirepGG, design.TestUnirepHF:
		var sq mat.Dense
		sq.Mul(&sigma, &sigma)
		tr := mat.Trace(&sigma)
		eps := tr * tr / (b * mat.Trace(&sq))
		crit := 1.0
		switch test {
		case design.TestUnirepBox:
			crit = 1 / b
		case design.TestUnirepGG:
			crit = eps
		case design.TestUnirepHF:
			crit = huynhFeldt(eps, b, nuE)
		}
		return pointStats{
			df1:     a * b * eps,
			df2:     b * nuE * eps,
			lambda:  eps * b * mat.Trace(&h) / tr,
			critDF1: a * b * crit,
			critDF2: b * nuE * crit,
		}, nil
	}
	return pointStats{}, core.NewEngineValidationError("Unknown statistical test '%s'", test)
}

func multivariate(df1, df2, lambda float64) pointStats {
	return pointStats{df1: df1, df2: df2, lambda: lambda, critDF1: df1, critDF2: df2}
}

// huynhFeldt approximates the expected Huynh-Feldt epsilon estimate
func huynhFeldt(eps, b, nuE float64) float64 {
	den := b * (nuE - b*eps)
	if den <= 0 {
		return 1
	}
	hf := ((nuE+1)*b*eps - 2) / den
	return math.Max(eps, math.Min(1, hf))
}

func (ps pointStats) power(alpha float64) float64 {
	return ps.powerWith(alpha, ps.lambda)
}

func (ps pointStats) powerWith(alpha, lambda float64) float64 {
	if math.IsInf(lambda, 1) {
		return 1
	}
	return powerF(criticalF(alpha, ps.critDF1, ps.critDF2), ps.df1, ps.df2, lambda)
}
