package logits

import (
	"math/rand/v2"

	"github.com/samcharles93/charnet/internal/tensor"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed uint64
	// Temperature divides the logits before softmax. Values below 1 sharpen
	// the distribution, values above 1 flatten it. Zero or less selects the
	// argmax.
	Temperature float64
	// Rand, when set, is used instead of a generator seeded from Seed.
	Rand *rand.Rand
}

type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool
	prob   []float64
}

// NewSampler returns a new sampler with the provided configuration.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if greedy {
		cfg.Temperature = 1
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d))
	}
	return &Sampler{rng: rng, cfg: cfg, greedy: greedy}
}

// Greedy reports whether the sampler always returns the most likely index.
func (s *Sampler) Greedy() bool { return s.greedy }

// Temperature returns the effective temperature. Greedy samplers report 1.
func (s *Sampler) Temperature() float64 { return s.cfg.Temperature }

// Sample draws a single index from the first row of logits:
//
//  1. The logits are divided by the temperature and passed through softmax.
//  2. If suppress is a valid index, its probability is removed and the rest
//     renormalised (see Suppress).
//  3. Greedy samplers return the argmax. Otherwise a uniform value r is drawn
//     and the first index whose cumulative probability exceeds r is
//     returned, defaulting to the last index.
//
// Pass suppress < 0 to sample from the unmodified distribution.
func (s *Sampler) Sample(logits tensor.Mat, suppress int) int {
	prob := s.Distribution(logits)
	if suppress >= 0 {
		Suppress(prob, suppress)
	}
	if s.greedy {
		return argmax(prob)
	}
	return Pick(prob, s.rng.Float64())
}

// Distribution returns softmax(logits/T) for the first row of logits. The
// returned slice is reused by the next call.
func (s *Sampler) Distribution(logits tensor.Mat) []float64 {
	scaled := logits
	if s.cfg.Temperature != 1 {
		scaled = tensor.Scale(logits, 1/s.cfg.Temperature)
	}
	probs := tensor.Softmax(scaled).Row(0)
	s.prob = append(s.prob[:0], probs...)
	return s.prob
}

// Suppress zeroes prob[idx] and renormalises the remainder in place. It is a
// no-op unless 0 < prob[idx] < 1, so a token that is the only viable choice
// stays selectable. It reports whether the distribution changed.
func Suppress(prob []float64, idx int) bool {
	if idx < 0 || idx >= len(prob) {
		return false
	}
	p := prob[idx]
	if p <= 0 || p >= 1 {
		return false
	}
	prob[idx] = 0
	scale := 1 / (1 - p)
	for i := range prob {
		prob[i] *= scale
	}
	return true
}

// Pick walks the cumulative distribution and returns the first index whose
// running sum exceeds r. When rounding leaves the total at or below r the
// last index is returned.
func Pick(prob []float64, r float64) int {
	if len(prob) == 0 {
		panic("pick: empty distribution")
	}
	var c float64
	for i, p := range prob {
		c += p
		if c > r {
			return i
		}
	}
	return len(prob) - 1
}

// argmax returns the index of the maximum value, the lowest on ties. If the
// slice is empty it panics.
func argmax(x []float64) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}
