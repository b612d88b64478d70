// Package covariance converts declared covariance structures into matrices.
package covariance

import (
	"math"

	"powersvc/domain/design"
	"powersvc/internal/matrixutil"

	"gonum.org/v1/gonum/mat"
)

// Builder implements ports.CovarianceBuilder
type Builder struct{}

// NewBuilder creates a covariance builder
func NewBuilder() *Builder {
	return &Builder{}
}

// CovarianceToMatrix returns the size x size covariance declared by cov, or
// nil when cov is absent or inconsistent with size.
func (b *Builder) CovarianceToMatrix(cov *design.Covariance, size int, spacing []float64) *mat.Dense {
	if cov == nil || size <= 0 {
		return nil
	}
	switch cov.Type {
	case design.UnstructuredCovariance:
		return blob(cov, size)
	case design.UnstructuredCorrelation:
		corr := blob(cov, size)
		sd := deviations(cov, size)
		if corr == nil || sd == nil {
			return nil
		}
		return scale(corr, sd)
	case design.LearCorrelation:
		sd := deviations(cov, size)
		if sd == nil {
			return nil
		}
		return scale(lear(cov.Rho, cov.Delta, positions(spacing, size)), sd)
	case design.CompoundSymmetric:
		sd := deviations(cov, size)
		if sd == nil {
			return nil
		}
		corr := matrixutil.Filled(size, size, cov.Rho)
		for i := 0; i < size; i++ {
			corr.Set(i, i, 1)
		}
		return scale(corr, sd)
	}
	return nil
}

func blob(cov *design.Covariance, size int) *mat.Dense {
	if len(cov.Blob) != size {
		return nil
	}
	m, err := matrixutil.FromRows(cov.Name, cov.Blob)
	if err != nil {
		return nil
	}
	if _, c := m.Dims(); c != size {
		return nil
	}
	return m
}

// deviations returns one standard deviation per dimension; a single value is
// shared by all dimensions.
func deviations(cov *design.Covariance, size int) []float64 {
	switch len(cov.StandardDeviations) {
	case size:
		return cov.StandardDeviations
	case 1:
		sd := make([]float64, size)
		for i := range sd {
			sd[i] = cov.StandardDeviations[0]
		}
		return sd
	}
	return nil
}

// scale turns a correlation matrix into a covariance: D R D
func scale(corr *mat.Dense, sd []float64) *mat.Dense {
	n := len(sd)
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out.Set(i, j, corr.At(i, j)*sd[i]*sd[j])
		}
	}
	return out
}

func positions(spacing []float64, size int) []float64 {
	if len(spacing) == size {
		return spacing
	}
	pos := make([]float64, size)
	for i := range pos {
		pos[i] = float64(i + 1)
	}
	return pos
}

// lear builds a linear exponent autoregressive correlation. Distances are
// scaled so the smallest is 1; the exponent grows linearly from 1 at the
// smallest distance to 1+delta at the largest.
func lear(rho, delta float64, pos []float64) *mat.Dense {
	n := len(pos)
	dmin, dmax := math.Inf(1), 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := math.Abs(pos[i] - pos[j])
			if d > 0 {
				dmin = math.Min(dmin, d)
			}
			dmax = math.Max(dmax, d)
		}
	}
	out := matrixutil.Identity(n)
	if n < 2 || dmax == 0 {
		return out
	}
	dmax /= dmin
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := math.Abs(pos[i]-pos[j]) / dmin
			exponent := 1.0
			if dmax > 1 {
				exponent = 1 + delta*(d-1)/(dmax-1)
			}
			r := math.Pow(rho, exponent)
			out.Set(i, j, r)
			out.Set(j, i, r)
		}
	}
	return out
}
