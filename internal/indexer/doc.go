// Package indexer coordinates sharding runs over line-delimited corpora.
//
// A run turns every input file into bounded chunk files plus one global
// index giving O(1) access to each record.
//
// # Basic Usage
//
//	factory, err := tokenizer.NewFactory("gpt2", "")
//	idx := indexer.New(
//	    indexer.WithLogger(logger),
//	    indexer.WithStorage(catalog),
//	    indexer.WithEncoderFactory(factory),
//	)
//
//	stats, err := idx.ShardFiles(ctx, &indexer.Config{
//	    Inputs:          []string{"data/**/*.jsonl"},
//	    OutputDir:       "out",
//	    IndexFile:       "out/index.jsonl",
//	    MaxItemsPerFile: 2048,
//	    Workers:         16,
//	})
//
//	fmt.Printf("%d records in %d chunks\n", stats.Records, stats.Chunks)
//
// # Pipeline
//
// For each input file, in order:
//
//  1. Stage: .zst and .gz inputs are inflated next to the outputs
//  2. Partition: lines [0, n) are split into Workers contiguous half-open
//     ranges; the remainder goes one line each to the lowest worker ids
//  3. Shard: workers run on an errgroup limited to Parallelism. Each builds
//     its own encoder, so no tokenizer state is shared
//  4. Barrier: every worker of the file finishes before anything is merged
//  5. Merge: results are folded in worker-id order into a running item
//     offset and chunk counter that carry over to the next file
//
// After the last file the merged index is validated (strictly increasing
// offsets, total identity, every record inside its chunk, offset round
// trip) and written atomically.
//
// # Merge
//
// For worker w with chunk sizes c[0..m) and records (chunk r, start s):
//
//	chunkOffset[j] = itemOffset + c[0] + ... + c[j-1]
//	recordOffset   = chunkOffset[r + chunkCounter] + s
//	itemOffset    += c[0] + ... + c[m-1]
//	chunkCounter  += m
//
// A worker with no chunks leaves both accumulators untouched.
//
// # Failure
//
// Any worker error cancels the rest of the pool. The run then removes the
// chunk files it wrote, leaves no index behind and, with a catalog, marks
// the run failed. Errors carry the file, line and worker:
//
//	worker 2 on data.jsonl lines [10, 15) failed: data.jsonl:13 (worker 2): record has no "text" field
//
// One Indexer runs one sharding at a time; a second call while a run is
// active returns ErrShardingInProgress.
package indexer
