package model

import (
	"math/rand/v2"
	"strings"

	"github.com/samcharles93/charnet/internal/tensor"
)

// Arch tags the architecture of a Model.
type Arch string

const (
	ArchFFNN Arch = "ffnn"
	ArchRNN  Arch = "rnn"
	ArchGRU  Arch = "gru"
	ArchLSTM Arch = "lstm"
)

// Archs lists every supported architecture.
var Archs = []Arch{ArchFFNN, ArchRNN, ArchGRU, ArchLSTM}

// ParseArch maps a case-insensitive name onto an Arch.
func ParseArch(s string) (Arch, error) {
	a := Arch(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Archs {
		if a == known {
			return a, nil
		}
	}
	return "", newInputError("unknown architecture %q", s)
}

const (
	// InitRange bounds the uniform distribution used for initial weights.
	InitRange = 0.05
	// ClipValue bounds every gradient element before an update is applied.
	ClipValue = 5.0
)

// Model is a trainable character-level sequence model. The concrete types
// are *FFNN, *RNN, *GRU and *LSTM; the set is closed.
//
// A Model value is never mutated by this package. Training returns a new
// Model with fresh parameter matrices and recurrent state.
type Model interface {
	Arch() Arch
	Vocab() *Vocab
	HiddenSize() int
	// State returns the recurrent memory carried into the next call. It is
	// empty for FFNN.
	State() State
	// Params returns named pointers to every trainable matrix in a fixed
	// order.
	Params() []Param
	// Forward runs one inference step for token starting from st and
	// returns the next state and the output logits.
	Forward(token int, st State) (State, tensor.Mat)

	withState(st State) Model
}

// State is the recurrent memory of a model: the hidden vector H and, for
// LSTM, the cell vector C. Both are 1×hidden.
type State struct {
	H tensor.Mat
	C tensor.Mat
}

// Param names one trainable matrix of a model.
type Param struct {
	Name  string
	Value *tensor.Mat
}

// Layer is an affine map x·W + B with W in×out and B 1×out.
type Layer struct {
	W tensor.Mat
	B tensor.Mat
}

func (l Layer) apply(x tensor.Mat) tensor.Mat {
	return tensor.Add(tensor.Dot(x, l.W), l.B)
}

// initFunc produces an r×c weight matrix.
type initFunc func(r, c int) tensor.Mat

func uniformInit(src rand.Source) initFunc {
	return func(r, c int) tensor.Mat {
		return tensor.Uniform(r, c, InitRange, src)
	}
}

func zeroInit(r, c int) tensor.Mat {
	return tensor.New(r, c)
}

func newLayer(in, out int, init initFunc) Layer {
	return Layer{W: init(in, out), B: tensor.New(1, out)}
}

// New creates a freshly initialised model of the given architecture. Weights
// are drawn from src uniformly in ±InitRange; biases and recurrent state
// start at zero.
func New(arch Arch, vocab *Vocab, hidden int, src rand.Source) (Model, error) {
	if src == nil {
		return nil, newInputError("nil random source")
	}
	return build(arch, vocab, hidden, uniformInit(src))
}

func build(arch Arch, vocab *Vocab, hidden int, init initFunc) (Model, error) {
	if vocab == nil || vocab.Size() == 0 {
		return nil, newInputError("empty vocabulary")
	}
	if hidden <= 0 {
		return nil, newInputError("hidden size must be positive, got %d", hidden)
	}
	switch arch {
	case ArchFFNN:
		return newFFNN(vocab, hidden, init), nil
	case ArchRNN:
		return newRNN(vocab, hidden, init), nil
	case ArchGRU:
		return newGRU(vocab, hidden, init), nil
	case ArchLSTM:
		return newLSTM(vocab, hidden, init), nil
	default:
		return nil, newInputError("unknown architecture %q", arch)
	}
}

// Restore rebuilds a model from stored parameters and state. Every parameter
// named by the architecture must be present with the expected shape.
func Restore(arch Arch, vocab *Vocab, hidden int, params map[string]tensor.Mat, st State) (Model, error) {
	m, err := build(arch, vocab, hidden, zeroInit)
	if err != nil {
		return nil, err
	}
	for _, p := range m.Params() {
		v, ok := params[p.Name]
		if !ok {
			return nil, newInputError("missing parameter %q", p.Name)
		}
		if !tensor.SameShape(v, *p.Value) || len(v.Data) != v.R*v.C {
			return nil, newInputError("parameter %q: shape (%d,%d), want (%d,%d)",
				p.Name, v.R, v.C, p.Value.R, p.Value.C)
		}
		*p.Value = v.Clone()
	}
	if arch == ArchFFNN {
		return m, nil
	}
	want := m.State()
	if err := checkState("h", st.H, want.H); err != nil {
		return nil, err
	}
	next := State{H: st.H.Clone()}
	if arch == ArchLSTM {
		if err := checkState("c", st.C, want.C); err != nil {
			return nil, err
		}
		next.C = st.C.Clone()
	}
	return m.withState(next), nil
}

func checkState(name string, got, want tensor.Mat) error {
	if !tensor.SameShape(got, want) || len(got.Data) != got.R*got.C {
		return newInputError("state %q: shape (%d,%d), want (%d,%d)", name, got.R, got.C, want.R, want.C)
	}
	return nil
}

// ResetState returns a copy of m whose recurrent state is zero. Parameters
// are shared with m.
func ResetState(m Model) Model {
	return m.withState(zeroState(m.Arch(), m.HiddenSize()))
}

func zeroState(arch Arch, hidden int) State {
	switch arch {
	case ArchFFNN:
		return State{}
	case ArchLSTM:
		return State{H: tensor.New(1, hidden), C: tensor.New(1, hidden)}
	default:
		return State{H: tensor.New(1, hidden)}
	}
}

// orZero substitutes a zero state when st has not been populated.
func orZero(st State, arch Arch, hidden int) State {
	z := zeroState(arch, hidden)
	if st.H.Empty() {
		st.H = z.H
	}
	if arch == ArchLSTM && st.C.Empty() {
		st.C = z.C
	}
	return st
}

func (a Arch) String() string { return string(a) }
