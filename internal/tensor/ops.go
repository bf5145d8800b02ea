package tensor

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dot computes the matrix product a·b. a.C must equal b.R.
func Dot(a, b Mat) Mat {
	if a.C != b.R {
		shapePanic("dot", a, b)
	}
	if a.Empty() || b.Empty() {
		return New(a.R, b.C)
	}
	var out mat.Dense
	out.Mul(mat.NewDense(a.R, a.C, a.Data), mat.NewDense(b.R, b.C, b.Data))
	return fromDense(&out)
}

// T returns the transpose of m.
func T(m Mat) Mat {
	if m.Empty() {
		return New(m.C, m.R)
	}
	return fromDense(mat.DenseCopyOf(mat.NewDense(m.R, m.C, m.Data).T()))
}

// Add returns a+b. Either both operands share a shape, or b is a single row
// as wide as a and is broadcast across every row of a. The broadcast is one
// directional: a 1-row a never stretches to match a taller b.
func Add(a, b Mat) Mat {
	out := New(a.R, a.C)
	switch {
	case SameShape(a, b):
		floats.AddTo(out.Data, a.Data, b.Data)
	case b.R == 1 && a.C == b.C:
		for i := 0; i < a.R; i++ {
			floats.AddTo(out.Row(i), a.Row(i), b.Data)
		}
	default:
		shapePanic("add", a, b)
	}
	return out
}

// Sub returns a-b. Shapes must match.
func Sub(a, b Mat) Mat {
	if !SameShape(a, b) {
		shapePanic("subtract", a, b)
	}
	out := New(a.R, a.C)
	floats.SubTo(out.Data, a.Data, b.Data)
	return out
}

// Mul returns the Hadamard product a⊙b. Shapes must match.
func Mul(a, b Mat) Mat {
	if !SameShape(a, b) {
		shapePanic("multiply", a, b)
	}
	out := New(a.R, a.C)
	floats.MulTo(out.Data, a.Data, b.Data)
	return out
}

// Scale returns s·m.
func Scale(m Mat, s float64) Mat {
	out := New(m.R, m.C)
	floats.ScaleTo(out.Data, s, m.Data)
	return out
}

// Map applies fn to every element of m.
func Map(m Mat, fn func(float64) float64) Mat {
	out := New(m.R, m.C)
	for i, v := range m.Data {
		out.Data[i] = fn(v)
	}
	return out
}

// Clip bounds every element of m to [lo, hi].
func Clip(m Mat, lo, hi float64) Mat {
	out := New(m.R, m.C)
	for i, v := range m.Data {
		switch {
		case v < lo:
			out.Data[i] = lo
		case v > hi:
			out.Data[i] = hi
		default:
			out.Data[i] = v
		}
	}
	return out
}

// AddScalar returns m with s added to every element.
func AddScalar(m Mat, s float64) Mat {
	out := m.Clone()
	floats.AddConst(s, out.Data)
	return out
}

func fromDense(d *mat.Dense) Mat {
	raw := d.RawMatrix()
	if raw.Stride == raw.Cols {
		return Mat{R: raw.Rows, C: raw.Cols, Data: raw.Data[:raw.Rows*raw.Cols]}
	}
	out := New(raw.Rows, raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		copy(out.Row(i), raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols])
	}
	return out
}
