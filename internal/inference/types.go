package inference

import (
	"time"

	"github.com/samcharles93/charnet/internal/logits"
)

const (
	// DefaultSeparator is the token that ends a generated word.
	DefaultSeparator = " "
	// MinWordLength is the number of leading generated tokens for which the
	// separator is suppressed.
	MinWordLength = 2
)

type StreamFunc func(token string)

// GenerateOptions configures a single Generate call.
type GenerateOptions struct {
	// MaxLength bounds the number of generated tokens, excluding the seed.
	MaxLength int
	// Separator stops generation when sampled. Empty selects
	// DefaultSeparator. A separator missing from the vocabulary disables
	// both the stop and the suppression.
	Separator string
	// Sampler carries the temperature and random source. When nil a
	// randomly seeded sampler at temperature 1 is used.
	Sampler *logits.Sampler
	// Stream, if set, receives every generated token as it is produced.
	Stream StreamFunc
}

type Stats struct {
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

type Result struct {
	// Text is the seed followed by every generated token.
	Text string
	// Tokens holds the generated tokens without the seed.
	Tokens []string
	// Stopped reports whether the separator ended generation before
	// MaxLength was reached.
	Stopped bool
	Stats   Stats
}
