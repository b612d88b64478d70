// Package matrixutil holds the small dense-matrix helpers shared by the
// parameter assembler, the contrast and covariance builders, and the engine.
package matrixutil

import (
	"fmt"

	"powersvc/domain/core"
	"powersvc/domain/design"

	"gonum.org/v1/gonum/mat"
)

// Filled returns a rows x cols matrix with every entry set to v
func Filled(rows, cols int, v float64) *mat.Dense {
	data := make([]float64, rows*cols)
	if v != 0 {
		for i := range data {
			data[i] = v
		}
	}
	return mat.NewDense(rows, cols, data)
}

// Identity returns the n x n identity
func Identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Kron returns the Kronecker product a ⊗ b
func Kron(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Kronecker(a, b)
	return &out
}

// KronAll folds the Kronecker product left to right over the list
func KronAll(list []mat.Matrix) *mat.Dense {
	if len(list) == 0 {
		return nil
	}
	acc := mat.DenseCopyOf(list[0])
	for _, next := range list[1:] {
		acc = Kron(acc, next)
	}
	return acc
}

// ForceSymmetric mirrors the average of each off-diagonal pair so that
// m[i][j] == m[j][i] holds exactly.
func ForceSymmetric(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	if r != c {
		return m
	}
	out := mat.DenseCopyOf(m)
	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			avg := (out.At(i, j) + out.At(j, i)) / 2
			out.Set(i, j, avg)
			out.Set(j, i, avg)
		}
	}
	return out
}

// IsSquare reports whether m is non-nil and square
func IsSquare(m *mat.Dense) bool {
	if m == nil {
		return false
	}
	r, c := m.Dims()
	return r == c && r > 0
}

// FromRows builds a dense matrix from row slices, rejecting ragged or empty input
func FromRows(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, core.NewValidationError("Matrix '%s' has no data", name)
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, core.NewValidationError("Matrix '%s' row %d has %d columns, expected %d", name, i+1, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// FromNamed converts a literal named matrix. A nil input yields a nil matrix.
func FromNamed(nm *design.NamedMatrix) (*mat.Dense, error) {
	if nm == nil || nm.Data == nil {
		return nil, nil
	}
	return FromRows(nm.Name, nm.Data)
}

// ToRows copies a matrix into row slices
func ToRows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}

// ToNamed wraps a matrix with a name. A nil matrix yields nil.
func ToNamed(m *mat.Dense, name string) *design.NamedMatrix {
	if m == nil || name == "" {
		return nil
	}
	r, c := m.Dims()
	return &design.NamedMatrix{Name: name, Rows: r, Columns: c, Data: ToRows(m)}
}

// Format renders a labelled matrix for debug logs
func Format(label string, m *mat.Dense) string {
	if m == nil {
		return label + ": <nil>"
	}
	r, c := m.Dims()
	return fmt.Sprintf("%s (%dx%d):\n%v", label, r, c, mat.Formatted(m, mat.Prefix(""), mat.Squeeze()))
}
