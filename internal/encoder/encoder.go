package encoder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/shardex/pkg/types"
)

// DefaultBoundary marks the start of every record inside a flattened chunk
const DefaultBoundary = "<|endoftext|>"

// Common errors
var (
	ErrNilTokenizer   = errors.New("tokenized mode requires a tokenizer")
	ErrTokenizeFailed = errors.New("tokenizer failed")
)

// Tokenizer turns text into token ids. Implementations must be deterministic.
type Tokenizer interface {
	Encode(text string) ([]int, error)

	// TokenID resolves a special token such as "<|endoftext|>" to its id
	TokenID(token string) (int, error)

	// Name identifies the vocabulary, e.g. "gpt2"
	Name() string
}

// Mode selects how records are split into units
type Mode string

const (
	ModeTokenized Mode = "tokenized"
	ModeWords     Mode = "words"
)

// RecordEncoder turns one record into units, prefixed with a boundary
// sentinel. It is not safe for concurrent use when its tokenizer is not.
type RecordEncoder struct {
	mode      Mode
	tokenizer Tokenizer
	boundary  string
	sentinel  int
}

// NewWords creates an encoder that splits records on whitespace
func NewWords(boundary string) *RecordEncoder {
	if boundary == "" {
		boundary = DefaultBoundary
	}
	return &RecordEncoder{mode: ModeWords, boundary: boundary}
}

// NewTokenized creates an encoder that delegates to tok. The boundary
// string is resolved to a single token id once, here.
func NewTokenized(tok Tokenizer, boundary string) (*RecordEncoder, error) {
	if tok == nil {
		return nil, ErrNilTokenizer
	}
	if boundary == "" {
		boundary = DefaultBoundary
	}
	id, err := tok.TokenID(boundary)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve boundary token %q: %w", boundary, err)
	}
	return &RecordEncoder{
		mode:      ModeTokenized,
		tokenizer: tok,
		boundary:  boundary,
		sentinel:  id,
	}, nil
}

// Mode returns the encoder's unit mode
func (e *RecordEncoder) Mode() Mode {
	return e.mode
}

// Boundary returns the boundary marker string
func (e *RecordEncoder) Boundary() string {
	return e.boundary
}

// Sentinel returns the boundary token id in tokenized mode
func (e *RecordEncoder) Sentinel() int {
	return e.sentinel
}

// Skip reports whether text produces no units at all
func Skip(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Encode returns the units of one record, starting with the sentinel.
// Empty and whitespace-only texts return types.ErrEmptyRecord.
func (e *RecordEncoder) Encode(text string) (types.Units, error) {
	if Skip(text) {
		return types.Units{}, types.ErrEmptyRecord
	}

	if e.mode == ModeWords {
		fields := strings.Fields(text)
		words := make([]string, 0, len(fields)+1)
		words = append(words, e.boundary)
		words = append(words, fields...)
		return types.WordUnits(words), nil
	}

	ids, err := e.tokenizer.Encode(text)
	if err != nil {
		return types.Units{}, fmt.Errorf("%w: %w", ErrTokenizeFailed, err)
	}
	out := make([]int, 0, len(ids)+1)
	out = append(out, e.sentinel)
	out = append(out, ids...)
	return types.TokenUnits(out), nil
}

// Factory builds one RecordEncoder per worker so workers never share
// tokenizer state.
type Factory func() (*RecordEncoder, error)

// WordsFactory returns a Factory for whitespace encoders
func WordsFactory(boundary string) Factory {
	return func() (*RecordEncoder, error) {
		return NewWords(boundary), nil
	}
}

// TokenizedFactory returns a Factory that builds a fresh tokenizer for
// every encoder via newTokenizer.
func TokenizedFactory(newTokenizer func() (Tokenizer, error), boundary string) Factory {
	return func() (*RecordEncoder, error) {
		tok, err := newTokenizer()
		if err != nil {
			return nil, err
		}
		return NewTokenized(tok, boundary)
	}
}
