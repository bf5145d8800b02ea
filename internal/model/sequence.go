package model

import "github.com/samcharles93/charnet/internal/tensor"

// recurrent is implemented by the architectures trained with BPTT. C is the
// per-step cache the cell needs for its own backward pass.
//
// The unroll owns everything shared between cells: the output projection
// Why, softmax, loss, dropout and the backward-in-time loop. A cell only maps
// (x_t, state_{t-1}) to state_t and, given dL/dh_t (and dL/dc_t), returns
// the gradients for state_{t-1} while accumulating its own parameters'.
type recurrent[C any] interface {
	Model
	readout() Layer
	forwardStep(x int, prev State) (State, C)
	backwardStep(x int, prev State, cache C, dh, dc tensor.Mat, g Grads) (dhPrev, dcPrev tensor.Mat)
	gates(cache C) map[string]tensor.Mat
}

type frame[C any] struct {
	x, y  int
	prev  State
	next  State // H is post-dropout
	mask  tensor.Mat
	probs tensor.Mat
	loss  float64
	cache C
}

// unroll runs the forward pass over inputs corpus[start:end] starting from
// m's carried state. masks is either nil or holds one mask per step.
func unroll[C any](m recurrent[C], corpus []int, start, end int, masks []tensor.Mat) []frame[C] {
	out := m.readout()
	st := m.State()
	frames := make([]frame[C], 0, end-start)
	for t := start; t < end; t++ {
		f := frame[C]{x: corpus[t], y: corpus[t+1], prev: st}
		f.next, f.cache = m.forwardStep(f.x, st)
		if masks != nil {
			f.mask = masks[t-start]
			f.next.H = tensor.Mul(f.next.H, f.mask)
		}
		f.probs = tensor.Softmax(out.apply(f.next.H))
		f.loss = tensor.CrossEntropy(f.probs, f.y)
		frames = append(frames, f)
		st = f.next
	}
	return frames
}

// backprop walks frames from last to first, threading dh_next (and dc_next)
// back through time. It returns the summed gradients and the gradient that
// reaches the state the unroll started from.
func backprop[C any](m recurrent[C], frames []frame[C]) (Grads, State) {
	g := newGrads(m)
	why := m.readout().W
	dhNext := tensor.New(1, m.HiddenSize())
	dcNext := tensor.New(1, m.HiddenSize())
	for t := len(frames) - 1; t >= 0; t-- {
		f := frames[t]
		dlogits := tensor.SoftmaxCrossEntropyGrad(f.probs, f.y)
		g.acc("why.w", tensor.Dot(tensor.T(f.next.H), dlogits))
		g.acc("why.b", dlogits)

		dh := tensor.Add(tensor.Dot(dlogits, tensor.T(why)), dhNext)
		if !f.mask.Empty() {
			dh = tensor.Mul(dh, f.mask)
		}
		dhNext, dcNext = m.backwardStep(f.x, f.prev, f.cache, dh, dcNext, g)
	}
	return g, State{H: dhNext, C: dcNext}
}

// trainSequence is the training step shared by RNN, GRU and LSTM: unroll
// the window, backpropagate through time, apply one clipped update with the
// summed gradients and carry the final state into the returned model.
func trainSequence[C any](m recurrent[C], corpus []int, cursor, window int, opts TrainOptions) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	end, err := span(m.Vocab().Size(), corpus, cursor, window)
	if err != nil {
		return nil, err
	}
	if end == cursor {
		return emptyResult(m), nil
	}

	masks := opts.dropoutMasks(end-cursor, m.HiddenSize())
	frames := unroll(m, corpus, cursor, end, masks)
	g, _ := backprop(m, frames)

	res := &Result{Predictions: make([]Prediction, 0, len(frames))}
	var total float64
	for _, f := range frames {
		total += f.loss
		res.record(m.Vocab(), f.x, f.y, f.probs)
	}
	last := frames[len(frames)-1]

	next := m.withState(last.next)
	res.Gradients = applyUpdate(next, g, 1, opts.LearningRate)
	res.Model = next
	res.Loss = total / float64(len(frames))
	res.Activations = Activations{Hidden: last.next.H, Output: last.probs}
	res.Gates = m.gates(last.cache)
	return res, nil
}

// inputGrad returns onehot(x)ᵀ·d for a vocabulary of size v.
func inputGrad(v, x int, d tensor.Mat) tensor.Mat {
	return tensor.Dot(tensor.T(tensor.OneHot(v, x)), d)
}

// gate computes σ or tanh of x·W + h·U + b.
func gate(act func(tensor.Mat) tensor.Mat, w Layer, u tensor.Mat, x, h tensor.Mat) tensor.Mat {
	return act(tensor.Add(w.apply(x), tensor.Dot(h, u)))
}
