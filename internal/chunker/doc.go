// Package chunker packs encoded units into bounded chunk files.
//
// Each worker owns one Writer. Units are appended a record at a time and the
// buffer is flushed to a new file whenever it holds at least the configured
// capacity:
//
//	w, err := chunker.NewWriter(chunker.Config{
//	    Dir:      "out",
//	    Dataset:  "wiki",
//	    Ext:      ".jsonl",
//	    Worker:   3,
//	    Capacity: 2048,
//	})
//
//	chunk, offset := w.Position() // where the next record starts
//	ev, err := w.Append(units)    // ev != nil when a chunk was written
//	...
//	ev, err = w.Close()           // flushes the remainder, if any
//
// # Chunk Files
//
// Files are named {dataset}_{worker}_{chunk}{ext} and hold a single JSON
// array line: token ids as numbers, or words as strings. A record is
// appended whole before the capacity check, so a chunk can exceed the
// capacity but a record never spans two files. A record that brings the
// buffer to exactly the capacity belongs to the chunk it filled.
//
// Files are written to a temporary name and renamed into place. Abort
// removes every file a failed worker produced.
package chunker
