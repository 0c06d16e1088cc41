// Package encoder turns record text into units for sharding.
//
// Every encoded record starts with a boundary sentinel. In words mode the
// units are whitespace-separated words and the sentinel is the boundary
// string itself. In tokenized mode a Tokenizer produces token ids and the
// sentinel is the id of the boundary token.
//
// A RecordEncoder is not shared between workers. Each worker builds its own
// from a Factory:
//
//	factory := encoder.WordsFactory(encoder.DefaultBoundary)
//	enc, err := factory()
//	if err != nil {
//		return err
//	}
//	units, err := enc.Encode("hello world")
//
// Records that are empty after trimming whitespace are skipped, see Skip.
package encoder
