package model

import (
	"math/rand/v2"

	"github.com/samcharles93/charnet/internal/tensor"
)

// RNN is an Elman network: h_t = tanh(x_t·Wxh + h_{t-1}·Whh + b).
type RNN struct {
	vocab *Vocab
	Wxh   Layer      // [vocab x hidden], carries the hidden bias
	Whh   tensor.Mat // [hidden x hidden]
	Why   Layer      // [hidden x vocab]
	H     tensor.Mat // [1 x hidden] carried hidden state
}

// NewRNN creates a vanilla recurrent model with weights drawn from src.
func NewRNN(vocab *Vocab, hidden int, src rand.Source) (*RNN, error) {
	m, err := New(ArchRNN, vocab, hidden, src)
	if err != nil {
		return nil, err
	}
	return m.(*RNN), nil
}

func newRNN(vocab *Vocab, hidden int, init initFunc) *RNN {
	return &RNN{
		vocab: vocab,
		Wxh:   newLayer(vocab.Size(), hidden, init),
		Whh:   init(hidden, hidden),
		Why:   newLayer(hidden, vocab.Size(), init),
		H:     tensor.New(1, hidden),
	}
}

func (m *RNN) Arch() Arch      { return ArchRNN }
func (m *RNN) Vocab() *Vocab   { return m.vocab }
func (m *RNN) HiddenSize() int { return m.Whh.R }
func (m *RNN) State() State    { return State{H: m.H} }

func (m *RNN) Params() []Param {
	return []Param{
		{"wxh.w", &m.Wxh.W},
		{"wxh.b", &m.Wxh.B},
		{"whh", &m.Whh},
		{"why.w", &m.Why.W},
		{"why.b", &m.Why.B},
	}
}

func (m *RNN) Forward(token int, st State) (State, tensor.Mat) {
	next, _ := m.forwardStep(token, orZero(st, ArchRNN, m.HiddenSize()))
	return next, m.Why.apply(next.H)
}

func (m *RNN) withState(st State) Model {
	next := *m
	next.H = st.H
	return &next
}

func (m *RNN) readout() Layer { return m.Why }

type rnnCache struct {
	h tensor.Mat // tanh output before dropout
}

func (m *RNN) forwardStep(x int, prev State) (State, rnnCache) {
	xv := tensor.OneHot(m.vocab.Size(), x)
	h := gate(tensor.Tanh, m.Wxh, m.Whh, xv, prev.H)
	return State{H: h}, rnnCache{h: h}
}

func (m *RNN) backwardStep(x int, prev State, c rnnCache, dh, _ tensor.Mat, g Grads) (tensor.Mat, tensor.Mat) {
	draw := tensor.Mul(dh, tensor.DTanh(c.h))
	g.acc("wxh.w", inputGrad(m.vocab.Size(), x, draw))
	g.acc("wxh.b", draw)
	g.acc("whh", tensor.Dot(tensor.T(prev.H), draw))
	return tensor.Dot(draw, tensor.T(m.Whh)), tensor.Mat{}
}

func (m *RNN) gates(rnnCache) map[string]tensor.Mat { return nil }

// TrainRNN runs truncated BPTT over the inputs corpus[cursor:cursor+window]
// starting from m's carried hidden state. The summed gradients are clipped
// and applied once, and the last hidden state is carried into the returned
// model.
func TrainRNN(m *RNN, corpus []int, cursor, window int, opts TrainOptions) (*Result, error) {
	return trainSequence[rnnCache](m, corpus, cursor, window, opts)
}
