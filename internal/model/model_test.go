package model

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/samcharles93/charnet/internal/tensor"
)

var abc = []int{0, 1, 2, 0, 1, 2} // "abcabc"

func testVocab(t *testing.T, tokens ...string) *Vocab {
	t.Helper()
	if len(tokens) == 0 {
		tokens = []string{"a", "b", "c"}
	}
	v, err := NewVocab(tokens)
	if err != nil {
		t.Fatalf("NewVocab: %v", err)
	}
	return v
}

func newTestModel(t *testing.T, arch Arch, hidden int, seed uint64) Model {
	t.Helper()
	m, err := New(arch, testVocab(t), hidden, rand.NewPCG(seed, seed+1))
	if err != nil {
		t.Fatalf("New(%s): %v", arch, err)
	}
	return m
}

// snapshot deep-copies every parameter and the recurrent state of m.
func snapshot(m Model) map[string]tensor.Mat {
	out := make(map[string]tensor.Mat)
	for _, p := range m.Params() {
		out[p.Name] = p.Value.Clone()
	}
	st := m.State()
	out["state.h"] = st.H.Clone()
	out["state.c"] = st.C.Clone()
	return out
}

func sameSnapshot(a, b map[string]tensor.Mat) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if !tensor.Equal(v, b[k], 0) {
			return false
		}
	}
	return true
}

func TestNewVocab(t *testing.T) {
	t.Parallel()
	v := testVocab(t, "a", " ", "b")
	if id, ok := v.ID(" "); !ok || id != 1 {
		t.Fatalf("ID(\" \") = %d, %v", id, ok)
	}
	if v.Token(2) != "b" || v.Token(9) != "" {
		t.Fatalf("unexpected token lookup")
	}
	for i, tok := range v.Tokens {
		if v.Index[tok] != i {
			t.Fatalf("index inconsistent for %q", tok)
		}
	}
	if _, err := NewVocab([]string{"a", "a"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicates, got %v", err)
	}
	if _, err := NewVocab(nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty vocab, got %v", err)
	}
	ids, err := v.Encode([]string{"b", " ", "a"})
	if err != nil || len(ids) != 3 || ids[0] != 2 || ids[1] != 1 || ids[2] != 0 {
		t.Fatalf("Encode = %v, %v", ids, err)
	}
	if _, err := v.Encode([]string{"z"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown token, got %v", err)
	}
}

func TestParseArch(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"ffnn", "RNN", " gru ", "Lstm"} {
		if _, err := ParseArch(s); err != nil {
			t.Fatalf("ParseArch(%q): %v", s, err)
		}
	}
	if _, err := ParseArch("transformer"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNewInitialisation(t *testing.T) {
	t.Parallel()
	wantParams := map[Arch]int{ArchFFNN: 4, ArchRNN: 5, ArchGRU: 11, ArchLSTM: 14}
	for _, arch := range Archs {
		m := newTestModel(t, arch, 4, 1)
		if m.Arch() != arch || m.HiddenSize() != 4 || m.Vocab().Size() != 3 {
			t.Fatalf("%s: unexpected shape %s/%d/%d", arch, m.Arch(), m.HiddenSize(), m.Vocab().Size())
		}
		params := m.Params()
		if len(params) != wantParams[arch] {
			t.Fatalf("%s: expected %d params, got %d", arch, wantParams[arch], len(params))
		}
		for _, p := range params {
			for _, v := range p.Value.Data {
				if math.Abs(v) > InitRange {
					t.Fatalf("%s %s: weight %v outside ±%v", arch, p.Name, v, InitRange)
				}
				if p.Value.R == 1 && v != 0 {
					t.Fatalf("%s %s: bias should start at zero", arch, p.Name)
				}
			}
		}
		st := m.State()
		switch arch {
		case ArchFFNN:
			if !st.H.Empty() {
				t.Fatalf("ffnn should carry no state")
			}
		case ArchLSTM:
			if st.C.R != 1 || st.C.C != 4 {
				t.Fatalf("lstm cell state shape %dx%d", st.C.R, st.C.C)
			}
			fallthrough
		default:
			if st.H.R != 1 || st.H.C != 4 || !tensor.Equal(st.H, tensor.New(1, 4), 0) {
				t.Fatalf("%s: hidden state should start at zero", arch)
			}
		}
	}
	if _, err := New(ArchRNN, testVocab(t), 0, rand.NewPCG(1, 1)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero hidden size, got %v", err)
	}
	if _, err := New(ArchRNN, testVocab(t), 2, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for nil source, got %v", err)
	}
}

// TestFFNNSingleStep is the a→b scenario on "abcabc".
func TestFFNNSingleStep(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, ArchFFNN, 4, 11).(*FFNN)
	before := m.Hidden.W.Clone()

	res, err := TrainFFNN(m, abc, 0, 1, TrainOptions{LearningRate: 0.1})
	if err != nil {
		t.Fatalf("TrainFFNN: %v", err)
	}
	if res.InputToken != "a" || res.TargetToken != "b" {
		t.Fatalf("expected a→b, got %s→%s", res.InputToken, res.TargetToken)
	}
	if res.Loss <= 0 || math.IsInf(res.Loss, 0) || math.IsNaN(res.Loss) {
		t.Fatalf("expected finite positive loss, got %v", res.Loss)
	}
	if len(res.Predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(res.Predictions))
	}
	next := res.Model.(*FFNN)
	if tensor.Equal(next.Hidden.W, before, 0) {
		t.Fatalf("hidden weights did not change")
	}
	if !tensor.Equal(m.Hidden.W, before, 0) {
		t.Fatalf("input model was mutated")
	}
	if res.Activations.Logits.Empty() || res.Activations.Hidden.C != 4 || res.Activations.Output.C != 3 {
		t.Fatalf("missing activation snapshot")
	}
	if len(res.Gradients) != 4 {
		t.Fatalf("expected gradients for 4 params, got %d", len(res.Gradients))
	}
}

// TestRNNWindow is the three-step RNN scenario on "abcabc".
func TestRNNWindow(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, ArchRNN, 4, 5).(*RNN)
	res, err := TrainRNN(m, abc, 0, 3, TrainOptions{LearningRate: 0.1})
	if err != nil {
		t.Fatalf("TrainRNN: %v", err)
	}
	want := [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}}
	if len(res.Predictions) != len(want) {
		t.Fatalf("expected %d predictions, got %d", len(want), len(res.Predictions))
	}
	for i, p := range res.Predictions {
		if p.Input != want[i][0] || p.Target != want[i][1] {
			t.Fatalf("prediction %d: got %s→%s, want %s→%s", i, p.Input, p.Target, want[i][0], want[i][1])
		}
	}

	// Replaying the window with the pre-update weights reproduces the
	// hidden state the step carried forward.
	st := m.State()
	for _, x := range abc[:3] {
		st, _ = m.Forward(x, st)
	}
	next := res.Model.(*RNN)
	if !tensor.Equal(next.H, st.H, 1e-12) {
		t.Fatalf("carried state %v, want %v", next.H.Data, st.H.Data)
	}
	if !tensor.Equal(res.Activations.Hidden, next.H, 0) {
		t.Fatalf("activation snapshot differs from carried state")
	}
	if res.Gates != nil {
		t.Fatalf("rnn should not report gates")
	}
}

func TestEmptyWindow(t *testing.T) {
	t.Parallel()
	for _, arch := range Archs {
		m := newTestModel(t, arch, 3, 2)
		for _, c := range []struct{ cursor, window int }{{5, 3}, {9, 1}, {0, 0}} {
			res, err := Train(m, abc, c.cursor, c.window, TrainOptions{LearningRate: 0.1})
			if err != nil {
				t.Fatalf("%s: %v", arch, err)
			}
			if res.Loss != 0 || len(res.Predictions) != 0 || res.Model != m {
				t.Fatalf("%s cursor=%d window=%d: expected no-op result", arch, c.cursor, c.window)
			}
		}
	}
}

func TestTrainRejectsBadInput(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, ArchGRU, 3, 2)
	cases := []struct {
		name   string
		corpus []int
		cursor int
		opts   TrainOptions
	}{
		{"negative cursor", abc, -1, TrainOptions{LearningRate: 0.1}},
		{"token out of range", []int{0, 1, 7, 2}, 0, TrainOptions{LearningRate: 0.1}},
		{"negative token", []int{0, -1}, 0, TrainOptions{LearningRate: 0.1}},
		{"dropout of one", abc, 0, TrainOptions{LearningRate: 0.1, DropoutRate: 1}},
		{"negative learning rate", abc, 0, TrainOptions{LearningRate: -1}},
	}
	for _, tc := range cases {
		if _, err := Train(m, tc.corpus, tc.cursor, 3, tc.opts); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestTrainLeavesInputModelUntouched(t *testing.T) {
	t.Parallel()
	for _, arch := range Archs {
		m := newTestModel(t, arch, 3, 9)
		before := snapshot(m)
		res, err := Train(m, abc, 0, 4, TrainOptions{LearningRate: 0.5, DropoutRate: 0.2, Rand: rand.New(rand.NewPCG(1, 2))})
		if err != nil {
			t.Fatalf("%s: %v", arch, err)
		}
		if !sameSnapshot(before, snapshot(m)) {
			t.Fatalf("%s: input model changed", arch)
		}
		if sameSnapshot(before, snapshot(res.Model)) {
			t.Fatalf("%s: returned model equals input", arch)
		}
		if res.Model.Vocab() != m.Vocab() {
			t.Fatalf("%s: vocabulary should be shared", arch)
		}
	}
}

// TestSingleStepReducesLoss re-evaluates the same window from the same
// starting state after one update.
func TestSingleStepReducesLoss(t *testing.T) {
	t.Parallel()
	for _, arch := range Archs {
		for _, window := range []int{1, 3} {
			m := newTestModel(t, arch, 5, 21)
			res, err := Train(m, abc, 0, window, TrainOptions{LearningRate: 0.1})
			if err != nil {
				t.Fatalf("%s: %v", arch, err)
			}
			eval, err := Train(ResetState(res.Model), abc, 0, window, TrainOptions{})
			if err != nil {
				t.Fatalf("%s: %v", arch, err)
			}
			if eval.Loss >= res.Loss {
				t.Fatalf("%s window=%d: loss did not decrease: %v -> %v", arch, window, res.Loss, eval.Loss)
			}
		}
	}
}

// TestStateContinuity checks that two consecutive windows of k thread the
// same state as one window of 2k when weights are frozen.
func TestStateContinuity(t *testing.T) {
	t.Parallel()
	corpus := []int{0, 1, 2, 2, 1, 0, 1, 1, 2, 0, 0}
	const k = 4
	for _, arch := range []Arch{ArchRNN, ArchGRU, ArchLSTM} {
		m := newTestModel(t, arch, 4, 33)
		frozen := TrainOptions{}

		first, err := Train(m, corpus, 0, k, frozen)
		if err != nil {
			t.Fatalf("%s: %v", arch, err)
		}
		second, err := Train(first.Model, corpus, k, k, frozen)
		if err != nil {
			t.Fatalf("%s: %v", arch, err)
		}
		whole, err := Train(m, corpus, 0, 2*k, frozen)
		if err != nil {
			t.Fatalf("%s: %v", arch, err)
		}

		split, joined := second.Model.State(), whole.Model.State()
		if !tensor.Equal(split.H, joined.H, 1e-12) {
			t.Fatalf("%s: hidden state differs: %v vs %v", arch, split.H.Data, joined.H.Data)
		}
		if arch == ArchLSTM && !tensor.Equal(split.C, joined.C, 1e-12) {
			t.Fatalf("%s: cell state differs: %v vs %v", arch, split.C.Data, joined.C.Data)
		}
		if sum := (first.Loss + second.Loss) * k; math.Abs(sum-whole.Loss*2*k) > 1e-9 {
			t.Fatalf("%s: summed loss %v vs %v", arch, sum, whole.Loss*2*k)
		}
	}
}

func TestGateSnapshots(t *testing.T) {
	t.Parallel()
	want := map[Arch][]string{ArchGRU: {"z", "r"}, ArchLSTM: {"f", "i", "o"}}
	for arch, names := range want {
		res, err := Train(newTestModel(t, arch, 3, 4), abc, 0, 2, TrainOptions{LearningRate: 0.1})
		if err != nil {
			t.Fatalf("%s: %v", arch, err)
		}
		if len(res.Gates) != len(names) {
			t.Fatalf("%s: expected %d gates, got %d", arch, len(names), len(res.Gates))
		}
		for _, n := range names {
			g, ok := res.Gates[n]
			if !ok || g.C != 3 {
				t.Fatalf("%s: missing gate %q", arch, n)
			}
			for _, v := range g.Data {
				if v <= 0 || v >= 1 {
					t.Fatalf("%s gate %s: %v not in (0,1)", arch, n, v)
				}
			}
		}
	}
}

func TestDropoutMasks(t *testing.T) {
	t.Parallel()
	opts := TrainOptions{DropoutRate: 0.25, Rand: rand.New(rand.NewPCG(8, 9))}
	masks := opts.dropoutMasks(50, 8)
	again := TrainOptions{DropoutRate: 0.25, Rand: rand.New(rand.NewPCG(8, 9))}.dropoutMasks(50, 8)
	var dropped int
	for t2, m := range masks {
		if !tensor.Equal(m, again[t2], 0) {
			t.Fatalf("masks not reproducible at step %d", t2)
		}
		for _, v := range m.Data {
			switch v {
			case 0:
				dropped++
			case 1 / 0.75:
			default:
				t.Fatalf("unexpected mask value %v", v)
			}
		}
	}
	if frac := float64(dropped) / 400; frac < 0.1 || frac > 0.4 {
		t.Fatalf("dropped fraction %v far from 0.25", frac)
	}
	if (TrainOptions{}).dropoutMasks(3, 3) != nil {
		t.Fatalf("no masks expected without dropout")
	}
}

func TestUpdateClipsGradients(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, ArchFFNN, 2, 3)
	next := m.withState(State{})
	g := newGrads(m)
	g["output.b"] = tensor.FromRows([][]float64{{100, -100, 0.5}})
	applyUpdate(next, g, 1, 0.1)
	got := next.(*FFNN).Output.B
	want := tensor.FromRows([][]float64{{-0.5, 0.5, -0.05}})
	if !tensor.Equal(got, want, 1e-12) {
		t.Fatalf("clipped update = %v, want %v", got.Data, want.Data)
	}
	if !tensor.Equal(m.(*FFNN).Output.B, tensor.New(1, 3), 0) {
		t.Fatalf("update leaked into the source model")
	}
}

func TestRestoreAndResetState(t *testing.T) {
	t.Parallel()
	for _, arch := range Archs {
		m := newTestModel(t, arch, 3, 12)
		res, err := Train(m, abc, 0, 3, TrainOptions{LearningRate: 0.3})
		if err != nil {
			t.Fatalf("%s: %v", arch, err)
		}
		trained := res.Model
		params := make(map[string]tensor.Mat)
		for _, p := range trained.Params() {
			params[p.Name] = *p.Value
		}
		restored, err := Restore(arch, trained.Vocab(), 3, params, trained.State())
		if err != nil {
			t.Fatalf("%s: Restore: %v", arch, err)
		}
		if !sameSnapshot(snapshot(trained), snapshot(restored)) {
			t.Fatalf("%s: restored model differs", arch)
		}

		reset := ResetState(trained)
		if arch != ArchFFNN && tensor.Equal(reset.State().H, trained.State().H, 0) {
			t.Fatalf("%s: reset kept the hidden state", arch)
		}
		delete(params, trained.Params()[0].Name)
		if _, err := Restore(arch, trained.Vocab(), 3, params, trained.State()); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput for missing param, got %v", arch, err)
		}
	}
}

func TestForwardFromEmptyState(t *testing.T) {
	t.Parallel()
	for _, arch := range Archs {
		m := newTestModel(t, arch, 3, 6)
		st, logits := m.Forward(1, State{})
		if logits.R != 1 || logits.C != 3 {
			t.Fatalf("%s: logits shape %dx%d", arch, logits.R, logits.C)
		}
		if arch != ArchFFNN && st.H.C != 3 {
			t.Fatalf("%s: expected a populated next state", arch)
		}
	}
}
