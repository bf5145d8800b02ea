package tensor

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Epsilon keeps CrossEntropy finite when the target probability is zero.
const Epsilon = 1e-9

// Tanh applies tanh element-wise.
func Tanh(m Mat) Mat {
	return Map(m, math.Tanh)
}

// Sigmoid applies the logistic function element-wise.
func Sigmoid(m Mat) Mat {
	return Map(m, sigmoid)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// DTanh returns the tanh derivative given the forward output y: 1 - y².
func DTanh(y Mat) Mat {
	return Map(y, func(v float64) float64 { return 1 - v*v })
}

// DSigmoid returns the sigmoid derivative given the forward output y: y(1-y).
func DSigmoid(y Mat) Mat {
	return Map(y, func(v float64) float64 { return v * (1 - v) })
}

// Softmax normalises each row of m into a probability distribution. The row
// maximum is subtracted before exponentiating so large logits cannot
// overflow; a zero denominator divides by one instead.
func Softmax(m Mat) Mat {
	out := New(m.R, m.C)
	if m.C == 0 {
		return out
	}
	for i := 0; i < m.R; i++ {
		src, dst := m.Row(i), out.Row(i)
		maxv := floats.Max(src)
		for j, v := range src {
			dst[j] = math.Exp(v - maxv)
		}
		sum := floats.Sum(dst)
		if sum == 0 {
			sum = 1
		}
		floats.Scale(1/sum, dst)
	}
	return out
}

// CrossEntropy returns -log(p[target] + Epsilon) for the first row of probs.
func CrossEntropy(probs Mat, target int) float64 {
	return -math.Log(probs.Row(0)[target] + Epsilon)
}

// SoftmaxCrossEntropyGrad returns the gradient of CrossEntropy(Softmax(z))
// with respect to the logits z: probs with one subtracted at target.
func SoftmaxCrossEntropyGrad(probs Mat, target int) Mat {
	d := probs.Clone()
	d.Row(0)[target]--
	return d
}
