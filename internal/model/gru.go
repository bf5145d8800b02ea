package model

import (
	"math/rand/v2"

	"github.com/samcharles93/charnet/internal/tensor"
)

// GRU is a gated recurrent unit network:
//
//	r  = σ(x·Wr + h·Ur + br)
//	z  = σ(x·Wz + h·Uz + bz)
//	ĥ  = tanh(x·Wh + (r⊙h)·Uh + bh)
//	h' = (1-z)⊙h + z⊙ĥ
type GRU struct {
	vocab *Vocab
	Wz    Layer // update gate, [vocab x hidden]
	Uz    tensor.Mat
	Wr    Layer // reset gate
	Ur    tensor.Mat
	Wh    Layer // candidate
	Uh    tensor.Mat
	Why   Layer      // [hidden x vocab]
	H     tensor.Mat // [1 x hidden] carried hidden state
}

// NewGRU creates a GRU model with weights drawn from src.
func NewGRU(vocab *Vocab, hidden int, src rand.Source) (*GRU, error) {
	m, err := New(ArchGRU, vocab, hidden, src)
	if err != nil {
		return nil, err
	}
	return m.(*GRU), nil
}

func newGRU(vocab *Vocab, hidden int, init initFunc) *GRU {
	v := vocab.Size()
	return &GRU{
		vocab: vocab,
		Wz:    newLayer(v, hidden, init),
		Uz:    init(hidden, hidden),
		Wr:    newLayer(v, hidden, init),
		Ur:    init(hidden, hidden),
		Wh:    newLayer(v, hidden, init),
		Uh:    init(hidden, hidden),
		Why:   newLayer(hidden, v, init),
		H:     tensor.New(1, hidden),
	}
}

func (m *GRU) Arch() Arch      { return ArchGRU }
func (m *GRU) Vocab() *Vocab   { return m.vocab }
func (m *GRU) HiddenSize() int { return m.Uz.R }
func (m *GRU) State() State    { return State{H: m.H} }

func (m *GRU) Params() []Param {
	return []Param{
		{"wz.w", &m.Wz.W},
		{"wz.b", &m.Wz.B},
		{"uz", &m.Uz},
		{"wr.w", &m.Wr.W},
		{"wr.b", &m.Wr.B},
		{"ur", &m.Ur},
		{"wh.w", &m.Wh.W},
		{"wh.b", &m.Wh.B},
		{"uh", &m.Uh},
		{"why.w", &m.Why.W},
		{"why.b", &m.Why.B},
	}
}

func (m *GRU) Forward(token int, st State) (State, tensor.Mat) {
	next, _ := m.forwardStep(token, orZero(st, ArchGRU, m.HiddenSize()))
	return next, m.Why.apply(next.H)
}

func (m *GRU) withState(st State) Model {
	next := *m
	next.H = st.H
	return &next
}

func (m *GRU) readout() Layer { return m.Why }

type gruCache struct {
	z, r tensor.Mat
	cand tensor.Mat // ĥ
	rh   tensor.Mat // r⊙h_{t-1}
}

func (m *GRU) forwardStep(x int, prev State) (State, gruCache) {
	xv := tensor.OneHot(m.vocab.Size(), x)
	var c gruCache
	c.r = gate(tensor.Sigmoid, m.Wr, m.Ur, xv, prev.H)
	c.z = gate(tensor.Sigmoid, m.Wz, m.Uz, xv, prev.H)
	c.rh = tensor.Mul(c.r, prev.H)
	c.cand = gate(tensor.Tanh, m.Wh, m.Uh, xv, c.rh)

	keep := tensor.Mul(oneMinus(c.z), prev.H)
	h := tensor.Add(keep, tensor.Mul(c.z, c.cand))
	return State{H: h}, c
}

// backwardStep splits dh over the interpolation h' = (1-z)⊙h + z⊙ĥ. The
// gradient for h_{t-1} merges four paths: the direct (1-z) path, the update
// gate through Uz, the reset gate through Ur, and the candidate through the
// reset-gated Uh product.
func (m *GRU) backwardStep(x int, prev State, c gruCache, dh, _ tensor.Mat, g Grads) (tensor.Mat, tensor.Mat) {
	v := m.vocab.Size()

	dDirect := tensor.Mul(dh, oneMinus(c.z))
	dz := tensor.Mul(dh, tensor.Sub(c.cand, prev.H))
	dcand := tensor.Mul(dh, c.z)

	dcandRaw := tensor.Mul(dcand, tensor.DTanh(c.cand))
	g.acc("wh.w", inputGrad(v, x, dcandRaw))
	g.acc("wh.b", dcandRaw)
	g.acc("uh", tensor.Dot(tensor.T(c.rh), dcandRaw))

	drh := tensor.Dot(dcandRaw, tensor.T(m.Uh))
	dViaCand := tensor.Mul(drh, c.r)
	dr := tensor.Mul(drh, prev.H)

	dzRaw := tensor.Mul(dz, tensor.DSigmoid(c.z))
	g.acc("wz.w", inputGrad(v, x, dzRaw))
	g.acc("wz.b", dzRaw)
	g.acc("uz", tensor.Dot(tensor.T(prev.H), dzRaw))

	drRaw := tensor.Mul(dr, tensor.DSigmoid(c.r))
	g.acc("wr.w", inputGrad(v, x, drRaw))
	g.acc("wr.b", drRaw)
	g.acc("ur", tensor.Dot(tensor.T(prev.H), drRaw))

	dhPrev := tensor.Add(dDirect, dViaCand)
	dhPrev = tensor.Add(dhPrev, tensor.Dot(dzRaw, tensor.T(m.Uz)))
	dhPrev = tensor.Add(dhPrev, tensor.Dot(drRaw, tensor.T(m.Ur)))
	return dhPrev, tensor.Mat{}
}

func (m *GRU) gates(c gruCache) map[string]tensor.Mat {
	return map[string]tensor.Mat{"z": c.z, "r": c.r}
}

// TrainGRU runs BPTT over the inputs corpus[cursor:cursor+window] starting
// from m's carried hidden state, with the same windowing, dropout and
// continuity rules as TrainRNN.
func TrainGRU(m *GRU, corpus []int, cursor, window int, opts TrainOptions) (*Result, error) {
	return trainSequence[gruCache](m, corpus, cursor, window, opts)
}

func oneMinus(m tensor.Mat) tensor.Mat {
	return tensor.AddScalar(tensor.Scale(m, -1), 1)
}
