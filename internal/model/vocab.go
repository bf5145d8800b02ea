package model

// Vocab is the ordered token set of a model. A token's position in Tokens is
// its integer ID and Index is the inverse mapping.
type Vocab struct {
	Tokens []string
	Index  map[string]int
}

// NewVocab builds a vocabulary from unique tokens, preserving their order.
func NewVocab(tokens []string) (*Vocab, error) {
	if len(tokens) == 0 {
		return nil, newInputError("empty vocabulary")
	}
	v := &Vocab{
		Tokens: append([]string(nil), tokens...),
		Index:  make(map[string]int, len(tokens)),
	}
	for i, tok := range v.Tokens {
		if _, dup := v.Index[tok]; dup {
			return nil, newInputError("duplicate token %q at index %d", tok, i)
		}
		v.Index[tok] = i
	}
	return v, nil
}

// Size returns the number of tokens.
func (v *Vocab) Size() int {
	return len(v.Tokens)
}

// ID looks up the integer ID of tok.
func (v *Vocab) ID(tok string) (int, bool) {
	id, ok := v.Index[tok]
	return id, ok
}

// Token returns the token with the given ID, or "" when out of range.
func (v *Vocab) Token(id int) string {
	if id < 0 || id >= len(v.Tokens) {
		return ""
	}
	return v.Tokens[id]
}

// Encode maps tokens to IDs, failing on the first unknown token.
func (v *Vocab) Encode(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		id, ok := v.Index[tok]
		if !ok {
			return nil, newInputError("token %q at position %d is not in the vocabulary", tok, i)
		}
		ids[i] = id
	}
	return ids, nil
}
