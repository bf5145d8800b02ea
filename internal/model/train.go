package model

import (
	"math/rand/v2"

	"github.com/samcharles93/charnet/internal/tensor"
)

// TrainOptions configures a single training step.
type TrainOptions struct {
	// LearningRate scales the clipped gradient applied to every parameter.
	// Zero evaluates the window and threads state without moving weights.
	LearningRate float64
	// DropoutRate is the probability of zeroing a hidden unit at each time
	// step of a recurrent unroll. Ignored by FFNN.
	DropoutRate float64
	// Rand drives dropout masks. When nil and DropoutRate > 0 a randomly
	// seeded generator is used.
	Rand *rand.Rand
}

func (o TrainOptions) validate() error {
	if o.LearningRate < 0 {
		return newInputError("learning rate must not be negative, got %g", o.LearningRate)
	}
	if o.DropoutRate < 0 || o.DropoutRate >= 1 {
		return newInputError("dropout rate must be in [0,1), got %g", o.DropoutRate)
	}
	return nil
}

// dropoutMasks draws one inverted-dropout mask per step. Kept units carry
// 1/(1-rate) so the expected activation is unchanged. It returns nil when
// dropout is disabled.
func (o TrainOptions) dropoutMasks(steps, size int) []tensor.Mat {
	if o.DropoutRate == 0 {
		return nil
	}
	rng := o.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	keep := 1 / (1 - o.DropoutRate)
	masks := make([]tensor.Mat, steps)
	for t := range masks {
		m := tensor.New(1, size)
		for j := range m.Data {
			if rng.Float64() >= o.DropoutRate {
				m.Data[j] = keep
			}
		}
		masks[t] = m
	}
	return masks
}

// Prediction records the outcome of one (input, target) pair.
type Prediction struct {
	Input     string `json:"input"`
	Target    string `json:"target"`
	Predicted string `json:"predicted"`
	Correct   bool   `json:"correct"`
}

// Activations is a snapshot of the last processed example.
type Activations struct {
	Hidden tensor.Mat `json:"hidden"`
	Output tensor.Mat `json:"output"`
	// Logits holds the pre-softmax output. Only FFNN fills it.
	Logits tensor.Mat `json:"logits"`
}

// Result describes one training step.
type Result struct {
	Model Model `json:"-"`
	// Loss is the mean cross-entropy over the processed pairs.
	Loss           float64      `json:"loss"`
	InputToken     string       `json:"input_token"`
	TargetToken    string       `json:"target_token"`
	PredictedToken string       `json:"predicted_token"`
	Predictions    []Prediction `json:"predictions"`
	Activations    Activations  `json:"activations"`
	// Gates holds gate activations of the last step: z and r for GRU,
	// f, i and o for LSTM.
	Gates map[string]tensor.Mat `json:"gates,omitempty"`
	// Gradients holds the gradient of every parameter as handed to the
	// clipping stage.
	Gradients Grads `json:"-"`
}

// Correct returns how many predictions matched their target.
func (r *Result) Correct() int {
	n := 0
	for _, p := range r.Predictions {
		if p.Correct {
			n++
		}
	}
	return n
}

func (r *Result) record(v *Vocab, x, y int, probs tensor.Mat) {
	pred := tensor.Argmax(probs)
	p := Prediction{
		Input:     v.Token(x),
		Target:    v.Token(y),
		Predicted: v.Token(pred),
		Correct:   pred == y,
	}
	r.Predictions = append(r.Predictions, p)
	r.InputToken, r.TargetToken, r.PredictedToken = p.Input, p.Target, p.Predicted
}

func emptyResult(m Model) *Result {
	return &Result{Model: m, Predictions: []Prediction{}}
}

// Grads maps parameter names to gradient matrices.
type Grads map[string]tensor.Mat

func newGrads(m Model) Grads {
	g := make(Grads, len(m.Params()))
	for _, p := range m.Params() {
		g[p.Name] = tensor.New(p.Value.R, p.Value.C)
	}
	return g
}

func (g Grads) acc(name string, d tensor.Mat) {
	g[name] = tensor.Add(g[name], d)
}

// span validates a training window and returns the exclusive end of the
// input positions it covers. Inputs are corpus[cursor:end], targets are
// shifted by one. end == cursor denotes an empty window.
func span(vocab int, corpus []int, cursor, size int) (int, error) {
	if cursor < 0 {
		return 0, newInputError("cursor must not be negative, got %d", cursor)
	}
	end := min(cursor+size, len(corpus)-1)
	if size <= 0 || end <= cursor {
		return cursor, nil
	}
	for i := cursor; i <= end; i++ {
		if id := corpus[i]; id < 0 || id >= vocab {
			return 0, newInputError("token id %d at position %d outside vocabulary of %d", id, i, vocab)
		}
	}
	return end, nil
}

// applyUpdate replaces every parameter of next with param - lr·clip(scale·grad).
// next must be a copy whose matrices may be replaced. The scaled, unclipped
// gradients are returned.
func applyUpdate(next Model, g Grads, scale, lr float64) Grads {
	out := make(Grads, len(g))
	for _, p := range next.Params() {
		grad := g[p.Name]
		if scale != 1 {
			grad = tensor.Scale(grad, scale)
		}
		out[p.Name] = grad
		step := tensor.Scale(tensor.Clip(grad, -ClipValue, ClipValue), -lr)
		*p.Value = tensor.Add(*p.Value, step)
	}
	return out
}

// Train runs one training step on whichever architecture m is.
func Train(m Model, corpus []int, cursor, window int, opts TrainOptions) (*Result, error) {
	switch m := m.(type) {
	case *FFNN:
		return TrainFFNN(m, corpus, cursor, window, opts)
	case *RNN:
		return TrainRNN(m, corpus, cursor, window, opts)
	case *GRU:
		return TrainGRU(m, corpus, cursor, window, opts)
	case *LSTM:
		return TrainLSTM(m, corpus, cursor, window, opts)
	default:
		return nil, newInputError("unsupported model %T", m)
	}
}
