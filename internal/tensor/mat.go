package tensor

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Mat represents a dense row‑major matrix of float64 values.
//
// R and C are the number of rows and columns. Data holds the flattened
// values, so len(Data) == R*C and row i occupies Data[i*C : (i+1)*C].
//
// Every operation in this package treats its operands as immutable and
// returns a freshly allocated result. Shape misuse panics: a mismatch is a
// wiring bug in the caller, never a data problem.
type Mat struct {
	R    int       `json:"rows"`
	C    int       `json:"cols"`
	Data []float64 `json:"data"`
}

// New allocates a zero-filled r×c matrix.
func New(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{R: r, C: c, Data: make([]float64, r*c)}
}

// FromData wraps existing row-major data. It checks that len(data) == r*c.
func FromData(r, c int, data []float64) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	if r*c != len(data) {
		panic(fmt.Sprintf("data length mismatch: %d values for %dx%d", len(data), r, c))
	}
	return Mat{R: r, C: c, Data: data}
}

// FromRows copies a slice of equal-length rows into a new matrix.
func FromRows(rows [][]float64) Mat {
	if len(rows) == 0 {
		return Mat{}
	}
	c := len(rows[0])
	m := New(len(rows), c)
	for i, row := range rows {
		if len(row) != c {
			panic(fmt.Sprintf("ragged rows: row %d has %d values, want %d", i, len(row), c))
		}
		copy(m.Data[i*c:], row)
	}
	return m
}

// OneHot returns a 1×n row vector with a single 1 at idx.
func OneHot(n, idx int) Mat {
	if idx < 0 || idx >= n {
		panic(fmt.Sprintf("one-hot index %d out of range [0,%d)", idx, n))
	}
	m := New(1, n)
	m.Data[idx] = 1
	return m
}

// Uniform returns an r×c matrix with values drawn uniformly from
// [-limit, limit) using src.
func Uniform(r, c int, limit float64, src rand.Source) Mat {
	m := New(r, c)
	dist := distuv.Uniform{Min: -limit, Max: limit, Src: src}
	for i := range m.Data {
		m.Data[i] = dist.Rand()
	}
	return m
}

// Row returns a view of the i‑th row. Writes through the view modify m.
func (m Mat) Row(i int) []float64 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.C
	return m.Data[start : start+m.C]
}

// At returns the element at row i, column j.
func (m Mat) At(i, j int) float64 {
	if i < 0 || i >= m.R || j < 0 || j >= m.C {
		panic("index out of range")
	}
	return m.Data[i*m.C+j]
}

// Rows returns a copy of m as a slice of rows.
func (m Mat) Rows() [][]float64 {
	out := make([][]float64, m.R)
	for i := range out {
		out[i] = append([]float64(nil), m.Row(i)...)
	}
	return out
}

// Clone returns a deep copy of m.
func (m Mat) Clone() Mat {
	return Mat{R: m.R, C: m.C, Data: append([]float64(nil), m.Data...)}
}

// Empty reports whether m holds no elements.
func (m Mat) Empty() bool {
	return m.R == 0 || m.C == 0
}

// SameShape reports whether a and b have identical dimensions.
func SameShape(a, b Mat) bool {
	return a.R == b.R && a.C == b.C
}

// Equal reports whether a and b have the same shape and every pair of
// elements differs by at most tol.
func Equal(a, b Mat, tol float64) bool {
	if !SameShape(a, b) {
		return false
	}
	for i := range a.Data {
		d := a.Data[i] - b.Data[i]
		if d > tol || d < -tol {
			return false
		}
	}
	return true
}

// Argmax returns the column of the largest value in the first row of m.
// Ties resolve to the lowest index.
func Argmax(m Mat) int {
	row := m.Row(0)
	best := 0
	for j := 1; j < len(row); j++ {
		if row[j] > row[best] {
			best = j
		}
	}
	return best
}

func shapePanic(op string, a, b Mat) {
	panic(fmt.Sprintf("%s: shape mismatch (%d,%d) vs (%d,%d)", op, a.R, a.C, b.R, b.C))
}
