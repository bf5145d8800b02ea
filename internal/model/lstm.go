package model

import (
	"math/rand/v2"

	"github.com/samcharles93/charnet/internal/tensor"
)

// LSTM is a long short-term memory network carrying a hidden state H and a
// cell state C:
//
//	f = σ(x·Wf + h·Uf + bf)    i = σ(x·Wi + h·Ui + bi)
//	o = σ(x·Wo + h·Uo + bo)    ĉ = tanh(x·Wc + h·Uc + bc)
//	c' = f⊙c + i⊙ĉ             h' = o⊙tanh(c')
type LSTM struct {
	vocab *Vocab
	Wf    Layer // forget gate, [vocab x hidden]
	Uf    tensor.Mat
	Wi    Layer // input gate
	Ui    tensor.Mat
	Wo    Layer // output gate
	Uo    tensor.Mat
	Wc    Layer // cell candidate
	Uc    tensor.Mat
	Why   Layer      // [hidden x vocab]
	H     tensor.Mat // [1 x hidden] carried hidden state
	C     tensor.Mat // [1 x hidden] carried cell state
}

// NewLSTM creates an LSTM model with weights drawn from src.
func NewLSTM(vocab *Vocab, hidden int, src rand.Source) (*LSTM, error) {
	m, err := New(ArchLSTM, vocab, hidden, src)
	if err != nil {
		return nil, err
	}
	return m.(*LSTM), nil
}

func newLSTM(vocab *Vocab, hidden int, init initFunc) *LSTM {
	v := vocab.Size()
	return &LSTM{
		vocab: vocab,
		Wf:    newLayer(v, hidden, init),
		Uf:    init(hidden, hidden),
		Wi:    newLayer(v, hidden, init),
		Ui:    init(hidden, hidden),
		Wo:    newLayer(v, hidden, init),
		Uo:    init(hidden, hidden),
		Wc:    newLayer(v, hidden, init),
		Uc:    init(hidden, hidden),
		Why:   newLayer(hidden, v, init),
		H:     tensor.New(1, hidden),
		C:     tensor.New(1, hidden),
	}
}

func (m *LSTM) Arch() Arch      { return ArchLSTM }
func (m *LSTM) Vocab() *Vocab   { return m.vocab }
func (m *LSTM) HiddenSize() int { return m.Uf.R }
func (m *LSTM) State() State    { return State{H: m.H, C: m.C} }

func (m *LSTM) Params() []Param {
	return []Param{
		{"wf.w", &m.Wf.W},
		{"wf.b", &m.Wf.B},
		{"uf", &m.Uf},
		{"wi.w", &m.Wi.W},
		{"wi.b", &m.Wi.B},
		{"ui", &m.Ui},
		{"wo.w", &m.Wo.W},
		{"wo.b", &m.Wo.B},
		{"uo", &m.Uo},
		{"wc.w", &m.Wc.W},
		{"wc.b", &m.Wc.B},
		{"uc", &m.Uc},
		{"why.w", &m.Why.W},
		{"why.b", &m.Why.B},
	}
}

func (m *LSTM) Forward(token int, st State) (State, tensor.Mat) {
	next, _ := m.forwardStep(token, orZero(st, ArchLSTM, m.HiddenSize()))
	return next, m.Why.apply(next.H)
}

func (m *LSTM) withState(st State) Model {
	next := *m
	next.H, next.C = st.H, st.C
	return &next
}

func (m *LSTM) readout() Layer { return m.Why }

type lstmCache struct {
	f, i, o tensor.Mat
	cand    tensor.Mat // ĉ
	tc      tensor.Mat // tanh(c')
}

func (m *LSTM) forwardStep(x int, prev State) (State, lstmCache) {
	xv := tensor.OneHot(m.vocab.Size(), x)
	var c lstmCache
	c.f = gate(tensor.Sigmoid, m.Wf, m.Uf, xv, prev.H)
	c.i = gate(tensor.Sigmoid, m.Wi, m.Ui, xv, prev.H)
	c.o = gate(tensor.Sigmoid, m.Wo, m.Uo, xv, prev.H)
	c.cand = gate(tensor.Tanh, m.Wc, m.Uc, xv, prev.H)

	cell := tensor.Add(tensor.Mul(c.f, prev.C), tensor.Mul(c.i, c.cand))
	c.tc = tensor.Tanh(cell)
	return State{H: tensor.Mul(c.o, c.tc), C: cell}, c
}

// backwardStep threads two gradients. dh feeds the output gate and, through
// tanh(c'), the cell; dc then splits into the candidate, input and forget
// gates. The cell gradient reaching c_{t-1} is dc⊙f.
func (m *LSTM) backwardStep(x int, prev State, c lstmCache, dh, dcNext tensor.Mat, g Grads) (tensor.Mat, tensor.Mat) {
	v := m.vocab.Size()

	doRaw := tensor.Mul(tensor.Mul(dh, c.tc), tensor.DSigmoid(c.o))
	dc := tensor.Mul(tensor.Mul(dh, c.o), tensor.DTanh(c.tc))
	dc = tensor.Add(dc, dcNext)

	dcandRaw := tensor.Mul(tensor.Mul(dc, c.i), tensor.DTanh(c.cand))
	diRaw := tensor.Mul(tensor.Mul(dc, c.cand), tensor.DSigmoid(c.i))
	dfRaw := tensor.Mul(tensor.Mul(dc, prev.C), tensor.DSigmoid(c.f))

	dhPrev := tensor.New(1, m.HiddenSize())
	for _, gr := range []struct {
		w, b, u string
		d, rec  tensor.Mat
	}{
		{"wf.w", "wf.b", "uf", dfRaw, m.Uf},
		{"wi.w", "wi.b", "ui", diRaw, m.Ui},
		{"wo.w", "wo.b", "uo", doRaw, m.Uo},
		{"wc.w", "wc.b", "uc", dcandRaw, m.Uc},
	} {
		g.acc(gr.w, inputGrad(v, x, gr.d))
		g.acc(gr.b, gr.d)
		g.acc(gr.u, tensor.Dot(tensor.T(prev.H), gr.d))
		dhPrev = tensor.Add(dhPrev, tensor.Dot(gr.d, tensor.T(gr.rec)))
	}
	return dhPrev, tensor.Mul(dc, c.f)
}

func (m *LSTM) gates(c lstmCache) map[string]tensor.Mat {
	return map[string]tensor.Mat{"f": c.f, "i": c.i, "o": c.o}
}

// TrainLSTM runs BPTT over the inputs corpus[cursor:cursor+window] starting
// from m's carried hidden and cell states. Both states of the last step are
// carried into the returned model.
func TrainLSTM(m *LSTM, corpus []int, cursor, window int, opts TrainOptions) (*Result, error) {
	return trainSequence[lstmCache](m, corpus, cursor, window, opts)
}
