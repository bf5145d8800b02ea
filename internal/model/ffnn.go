package model

import (
	"math/rand/v2"

	"github.com/samcharles93/charnet/internal/tensor"
)

// FFNN predicts the next token from the current one through a single tanh
// hidden layer. It carries no state between tokens.
type FFNN struct {
	vocab  *Vocab
	Hidden Layer // [vocab x hidden]
	Output Layer // [hidden x vocab]
}

// NewFFNN creates a feed-forward model with weights drawn from src.
func NewFFNN(vocab *Vocab, hidden int, src rand.Source) (*FFNN, error) {
	m, err := New(ArchFFNN, vocab, hidden, src)
	if err != nil {
		return nil, err
	}
	return m.(*FFNN), nil
}

func newFFNN(vocab *Vocab, hidden int, init initFunc) *FFNN {
	return &FFNN{
		vocab:  vocab,
		Hidden: newLayer(vocab.Size(), hidden, init),
		Output: newLayer(hidden, vocab.Size(), init),
	}
}

func (m *FFNN) Arch() Arch      { return ArchFFNN }
func (m *FFNN) Vocab() *Vocab   { return m.vocab }
func (m *FFNN) HiddenSize() int { return m.Hidden.W.C }
func (m *FFNN) State() State    { return State{} }

func (m *FFNN) Params() []Param {
	return []Param{
		{"hidden.w", &m.Hidden.W},
		{"hidden.b", &m.Hidden.B},
		{"output.w", &m.Output.W},
		{"output.b", &m.Output.B},
	}
}

func (m *FFNN) Forward(token int, _ State) (State, tensor.Mat) {
	return State{}, m.forward(token).logits
}

func (m *FFNN) withState(State) Model {
	next := *m
	return &next
}

type ffnnFrame struct {
	x      tensor.Mat
	hidden tensor.Mat
	logits tensor.Mat
	probs  tensor.Mat
}

func (m *FFNN) forward(token int) ffnnFrame {
	x := tensor.OneHot(m.vocab.Size(), token)
	hidden := tensor.Tanh(m.Hidden.apply(x))
	logits := m.Output.apply(hidden)
	return ffnnFrame{x: x, hidden: hidden, logits: logits, probs: tensor.Softmax(logits)}
}

func (m *FFNN) backward(f ffnnFrame, target int, g Grads) {
	dlogits := tensor.SoftmaxCrossEntropyGrad(f.probs, target)
	g.acc("output.w", tensor.Dot(tensor.T(f.hidden), dlogits))
	g.acc("output.b", dlogits)

	dhidden := tensor.Mul(tensor.Dot(dlogits, tensor.T(m.Output.W)), tensor.DTanh(f.hidden))
	g.acc("hidden.w", tensor.Dot(tensor.T(f.x), dhidden))
	g.acc("hidden.b", dhidden)
}

// TrainFFNN trains on the pairs (corpus[i], corpus[i+1]) for i in
// [cursor, cursor+batch), clamped to the end of the corpus. Gradients are
// averaged over the batch, clipped and applied once. The returned
// activations belong to the last pair.
func TrainFFNN(m *FFNN, corpus []int, cursor, batch int, opts TrainOptions) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	end, err := span(m.vocab.Size(), corpus, cursor, batch)
	if err != nil {
		return nil, err
	}
	if end == cursor {
		return emptyResult(m), nil
	}

	n := end - cursor
	g := newGrads(m)
	res := &Result{Predictions: make([]Prediction, 0, n)}
	var (
		total float64
		last  ffnnFrame
	)
	for i := cursor; i < end; i++ {
		x, y := corpus[i], corpus[i+1]
		f := m.forward(x)
		total += tensor.CrossEntropy(f.probs, y)
		m.backward(f, y, g)
		res.record(m.vocab, x, y, f.probs)
		last = f
	}

	next := m.withState(State{})
	res.Gradients = applyUpdate(next, g, 1/float64(n), opts.LearningRate)
	res.Model = next
	res.Loss = total / float64(n)
	res.Activations = Activations{Hidden: last.hidden, Output: last.probs, Logits: last.logits}
	return res, nil
}
