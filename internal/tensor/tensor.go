// Package tensor provides the numeric score containers exchanged between
// model scorers and the rank evaluation pipeline.
package tensor

import (
	"math"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
)

// Vector is a one-dimensional float64 tensor, typically holding the scores
// of the true triples in a batch.
type Vector struct {
	data []float64
}

// NewVector creates a vector backed by the given data.
func NewVector(data []float64) *Vector {
	return &Vector{data: data}
}

// Zeros creates a zero-filled vector of the given length.
func Zeros(n int) *Vector {
	return &Vector{data: make([]float64, n)}
}

// Len returns the number of elements.
func (v *Vector) Len() int {
	return len(v.data)
}

// At returns the element at index i.
func (v *Vector) At(i int) float64 {
	return v.data[i]
}

// Set sets the element at index i.
func (v *Vector) Set(i int, x float64) {
	v.data[i] = x
}

// Data returns the underlying slice.
func (v *Vector) Data() []float64 {
	return v.data
}

// Clone creates a deep copy of the vector.
func (v *Vector) Clone() *Vector {
	c := make([]float64, len(v.data))
	copy(c, v.data)
	return &Vector{data: c}
}

// Matrix is a two-dimensional row-major float64 tensor, typically holding
// candidate scores of shape (batch size, number of candidates).
type Matrix struct {
	rows int
	cols int
	data []float64
}

// NewMatrix creates a zero-filled matrix with the given shape.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		rows: rows,
		cols: cols,
		data: make([]float64, rows*cols),
	}
}

// MatrixFromRows creates a matrix from row slices. All rows must have the
// same length.
func MatrixFromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 {
		return &Matrix{}, nil
	}
	cols := len(rows[0])
	m := NewMatrix(len(rows), cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.ValidationError("matrix rows have inconsistent lengths")
		}
		copy(m.Row(i), row)
	}
	return m, nil
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int {
	return m.rows
}

// Cols returns the number of columns.
func (m *Matrix) Cols() int {
	return m.cols
}

// At returns the element at (i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.data[i*m.cols+j]
}

// Set sets the element at (i, j).
func (m *Matrix) Set(i, j int, x float64) {
	m.data[i*m.cols+j] = x
}

// Row returns a mutable view of row i.
func (m *Matrix) Row(i int) []float64 {
	return m.data[i*m.cols : (i+1)*m.cols]
}

// Fill sets every element to x.
func (m *Matrix) Fill(x float64) {
	for i := range m.data {
		m.data[i] = x
	}
}

// Clone creates a deep copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	c := make([]float64, len(m.data))
	copy(c, m.data)
	return &Matrix{rows: m.rows, cols: m.cols, data: c}
}

// CountFinite returns the number of finite (non-NaN, non-Inf) entries in row i.
func (m *Matrix) CountFinite(i int) int {
	n := 0
	for _, x := range m.Row(i) {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			n++
		}
	}
	return n
}
