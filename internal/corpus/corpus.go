// Package corpus turns raw text into the character vocabulary and token IDs
// the models train on.
package corpus

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"unicode"

	"github.com/samcharles93/charnet/internal/model"
)

// Options controls text normalisation before tokenisation.
type Options struct {
	// Lowercase folds every letter to lower case.
	Lowercase bool
	// CollapseSpace replaces every run of whitespace with a single space and
	// trims the ends.
	CollapseSpace bool
}

// Corpus is an encoded training text.
type Corpus struct {
	Text  string
	Vocab *model.Vocab
	IDs   []int
}

// New normalises text, builds a sorted character vocabulary from it and
// encodes it.
func New(text string, opts Options) (*Corpus, error) {
	text = Normalize(text, opts)
	tokens := Tokenize(text)
	if len(tokens) < 2 {
		return nil, fmt.Errorf("corpus needs at least two characters, got %d", len(tokens))
	}
	vocab, err := model.NewVocab(Alphabet(tokens))
	if err != nil {
		return nil, err
	}
	ids, err := vocab.Encode(tokens)
	if err != nil {
		return nil, err
	}
	return &Corpus{Text: text, Vocab: vocab, IDs: ids}, nil
}

// Load reads path and builds a corpus from its contents.
func Load(path string, opts Options) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	c, err := New(string(data), opts)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	return c, nil
}

// Len returns the number of encoded tokens.
func (c *Corpus) Len() int { return len(c.IDs) }

// Pairs returns the number of (input, target) pairs the corpus holds.
func (c *Corpus) Pairs() int { return max(len(c.IDs)-1, 0) }

// Normalize applies opts to text.
func Normalize(text string, opts Options) string {
	if opts.Lowercase {
		text = strings.ToLower(text)
	}
	if opts.CollapseSpace {
		text = strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
	}
	return text
}

// Tokenize splits text into single-character tokens.
func Tokenize(text string) []string {
	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// Alphabet returns the distinct tokens in sorted order.
func Alphabet(tokens []string) []string {
	out := slices.Clone(tokens)
	slices.Sort(out)
	return slices.Compact(out)
}
