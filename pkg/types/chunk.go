package types

import (
	"encoding/json"
	"errors"
)

// UnitKind distinguishes token id units from raw string units
type UnitKind string

const (
	UnitToken UnitKind = "token"
	UnitWord  UnitKind = "word"
)

// Record is one logical input unit: the text field of one input line
type Record struct {
	Text string
	Line int // 0-based line number in the source file
}

// Units is an ordered batch of encoded units.
// Exactly one of IDs or Words is populated, matching Kind.
type Units struct {
	Kind  UnitKind
	IDs   []int
	Words []string
}

// TokenUnits wraps token ids as Units
func TokenUnits(ids []int) Units {
	return Units{Kind: UnitToken, IDs: ids}
}

// WordUnits wraps string tokens as Units
func WordUnits(words []string) Units {
	return Units{Kind: UnitWord, Words: words}
}

// Len returns the number of units in the batch
func (u Units) Len() int {
	if u.Kind == UnitWord {
		return len(u.Words)
	}
	return len(u.IDs)
}

// Append appends other to u. Both batches must be of the same kind,
// except that an empty batch with no kind adopts the kind of other.
func (u *Units) Append(other Units) error {
	if u.Kind == "" {
		u.Kind = other.Kind
	}
	if other.Len() == 0 {
		return nil
	}
	if u.Kind != other.Kind {
		return ErrUnitKindMismatch
	}
	if u.Kind == UnitWord {
		u.Words = append(u.Words, other.Words...)
	} else {
		u.IDs = append(u.IDs, other.IDs...)
	}
	return nil
}

// Slice returns units [from, to) sharing the underlying storage
func (u Units) Slice(from, to int) Units {
	if u.Kind == UnitWord {
		return Units{Kind: u.Kind, Words: u.Words[from:to]}
	}
	return Units{Kind: u.Kind, IDs: u.IDs[from:to]}
}

// Reset empties the batch while keeping its capacity and kind
func (u *Units) Reset() {
	u.IDs = u.IDs[:0]
	u.Words = u.Words[:0]
}

// MarshalJSON encodes the batch as a flat JSON array of numbers or strings
func (u Units) MarshalJSON() ([]byte, error) {
	if u.Kind == UnitWord {
		if u.Words == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(u.Words)
	}
	if u.IDs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(u.IDs)
}

// UnmarshalJSON decodes a flat JSON array. Arrays of numbers become token
// units, arrays of strings become word units.
func (u *Units) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.IDs, u.Words, u.Kind = nil, nil, ""
	if len(raw) == 0 {
		return nil
	}
	if len(raw[0]) > 0 && raw[0][0] == '"' {
		u.Kind = UnitWord
		return json.Unmarshal(data, &u.Words)
	}
	u.Kind = UnitToken
	return json.Unmarshal(data, &u.IDs)
}

// Chunk describes one flushed output file
type Chunk struct {
	Path   string
	Items  int
	Index  int // worker-local, 0-based
	Worker int
}

// Validate checks that the chunk describes a written, non-empty file
func (c *Chunk) Validate() error {
	if c.Path == "" {
		return errors.New("chunk path is required")
	}
	if c.Items <= 0 {
		return errors.New("chunk must contain at least one item")
	}
	if c.Index < 0 || c.Worker < 0 {
		return errors.New("chunk and worker indexes must be non-negative")
	}
	return nil
}
