package tokenizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wbrown/gpt_bpe"

	"github.com/dshills/shardex/internal/encoder"
)

// Tokenizer names
const (
	NameWhitespace = "whitespace"
	NameGPT2       = "gpt2"
	NamePile       = "pile"
)

var (
	// ErrEncodeFailed is returned when the BPE encoder yields no tokens slice
	ErrEncodeFailed = errors.New("bpe encoder returned no tokens")
	// ErrNotSingleToken is returned when a special token string encodes to
	// more than one id
	ErrNotSingleToken = errors.New("not a single token")
)

// aliases maps short names to the vocabularies embedded in gpt_bpe
var aliases = map[string]string{
	NameGPT2: "gpt2-tokenizer",
	NamePile: "pile-tokenizer",
}

// BPE adapts a gpt_bpe.GPTEncoder to encoder.Tokenizer
type BPE struct {
	name string
	enc  *gpt_bpe.GPTEncoder
}

// NewBPE loads the vocabulary for id. Short names "gpt2" and "pile" map to
// the embedded vocabularies; anything else is resolved by gpt_bpe.
func NewBPE(id string) (*BPE, error) {
	vocab := id
	if alias, ok := aliases[strings.ToLower(id)]; ok {
		vocab = alias
	}
	enc, err := gpt_bpe.NewEncoder(vocab)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", id, err)
	}
	return &BPE{name: id, enc: enc}, nil
}

// Encode tokenizes text
func (b *BPE) Encode(text string) ([]int, error) {
	tokens := b.enc.Encode(&text)
	if tokens == nil {
		return nil, ErrEncodeFailed
	}
	ids := make([]int, len(*tokens))
	for i, tok := range *tokens {
		ids[i] = int(tok)
	}
	return ids, nil
}

// TokenID looks token up in the vocabulary; if absent, it must encode to
// exactly one token.
func (b *BPE) TokenID(token string) (int, error) {
	token = strings.ReplaceAll(token, "\\n", "\n")
	if id := b.enc.Get(token); id != nil {
		return int(*id), nil
	}
	tokens := b.enc.Encode(&token)
	if tokens == nil || len(*tokens) != 1 {
		return 0, fmt.Errorf("%w: %q for %s", ErrNotSingleToken, token, b.name)
	}
	return int((*tokens)[0]), nil
}

// Name returns the tokenizer id this adapter was built with
func (b *BPE) Name() string {
	return b.name
}

// IsWhitespace reports whether name selects whitespace splitting
func IsWhitespace(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameWhitespace, "none":
		return true
	}
	return false
}

// NewFactory returns an encoder.Factory for the named tokenizer. A BPE
// vocabulary is loaded once here so a bad name fails before any worker
// starts; every encoder the factory builds then loads its own copy.
func NewFactory(name, boundary string) (encoder.Factory, error) {
	if IsWhitespace(name) {
		return encoder.WordsFactory(boundary), nil
	}
	probe, err := NewBPE(name)
	if err != nil {
		return nil, err
	}
	if _, err := encoder.NewTokenized(probe, boundary); err != nil {
		return nil, err
	}
	return encoder.TokenizedFactory(func() (encoder.Tokenizer, error) {
		return NewBPE(name)
	}, boundary), nil
}
