package inference

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/samcharles93/charnet/internal/logits"
	"github.com/samcharles93/charnet/internal/model"
	"github.com/samcharles93/charnet/internal/tensor"
)

// Generate samples up to opts.MaxLength tokens after seed. Each step runs one
// forward step of m from the state it carries, so generation continues from
// wherever training left off; m itself is never modified.
//
// An unknown seed yields an empty result. The separator is never appended.
func Generate(ctx context.Context, m model.Model, seed string, opts GenerateOptions) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if m == nil {
		return nil, fmt.Errorf("model is required")
	}
	res := &Result{Tokens: []string{}}

	vocab := m.Vocab()
	cur, ok := vocab.ID(seed)
	if !ok {
		return res, nil
	}
	sampler := opts.Sampler
	if sampler == nil {
		sampler = logits.NewSampler(logits.SamplerConfig{Temperature: 1, Seed: rand.Uint64()})
	}
	sepTok := opts.Separator
	if sepTok == "" {
		sepTok = DefaultSeparator
	}
	sep, hasSep := vocab.ID(sepTok)

	var sb strings.Builder
	sb.WriteString(seed)
	start := time.Now()
	st := m.State()
	for i := 0; i < opts.MaxLength; i++ {
		if err := ctx.Err(); err != nil {
			res.Text = sb.String()
			res.Stats = finish(res.Stats, start)
			return res, err
		}
		var logitsVec tensor.Mat
		st, logitsVec = m.Forward(cur, st)

		suppress := -1
		if hasSep && i < MinWordLength {
			suppress = sep
		}
		next := sampler.Sample(logitsVec, suppress)
		if hasSep && next == sep {
			res.Stopped = true
			break
		}
		tok := vocab.Token(next)
		if tok == "" {
			break
		}
		sb.WriteString(tok)
		res.Tokens = append(res.Tokens, tok)
		res.Stats.TokensGenerated++
		if opts.Stream != nil {
			opts.Stream(tok)
		}
		cur = next
	}

	res.Text = sb.String()
	res.Stats = finish(res.Stats, start)
	return res, nil
}

func finish(stats Stats, start time.Time) Stats {
	stats.Duration = time.Since(start)
	if stats.Duration.Seconds() > 0 {
		stats.TPS = float64(stats.TokensGenerated) / stats.Duration.Seconds()
	}
	return stats
}
