// Package types provides shared type definitions for the shardex pipeline.
//
// This package defines the domain types passed between the sharding stages:
// records read from input files, encoded unit batches, flushed chunks, the
// per-worker LocalResult and the merged GlobalIndex.
//
// # Core Types
//
// Units is a batch of encoded symbols, either token ids or string tokens:
//
//	ids := types.TokenUnits([]int{50256, 464, 2068})
//	words := types.WordUnits([]string{"<|endoftext|>", "hello"})
//
// LocalResult holds one worker's chunk files and record offsets, all relative
// to the worker's own chunk sequence:
//
//	res := &types.LocalResult{
//	    WorkerID:      0,
//	    FileNames:     []string{"out/wiki_0_0.jsonl"},
//	    ItemsPerChunk: []int{10},
//	    RecordStarts:  []int{0, 4},
//	    RecordChunks:  []int{0, 0},
//	    TotalItems:    10,
//	}
//
// GlobalIndex is the merged table with corpus-wide offsets:
//
//	idx.ChunkGlobalOffsets  // [0, 10, 20]
//	idx.RecordGlobalOffsets // [0, 4, 10, 13, 20]
//
// # Validation
//
// Both LocalResult and GlobalIndex implement Validate. A GlobalIndex that
// fails validation is corrupt and must not be written:
//
//	if err := idx.Validate(); err != nil {
//	    var inv *types.InvariantError
//	    errors.As(err, &inv) // inv.Check names the failed invariant
//	}
//
// # Errors
//
// EncodingError, PartitionError, InvariantError and WorkerError carry the
// file, line and worker context needed to investigate a failed run.
// ErrLookupMiss is returned by index readers for out-of-range lookups.
package types
