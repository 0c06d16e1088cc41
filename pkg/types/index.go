package types

import (
	"fmt"
	"sort"
)

// GlobalIndex is the merged, corpus-wide offset table persisted by a run
type GlobalIndex struct {
	MaxItemsPerFile     int      `json:"max_items_per_file"`
	FileNames           []string `json:"file_names"`
	ChunkGlobalOffsets  []int64  `json:"chunk_global_offsets"`
	ChunkItems          []int64  `json:"chunk_items"`
	RecordGlobalOffsets []int64  `json:"record_global_offsets"`
	TotalItems          int64    `json:"total_items"`
	TotalRecords        int      `json:"total_records"`

	// Corpus-wide 0-based chunk of each record. Persisted as the
	// per-record lines of the index file, not in the summary.
	RecordChunks []int `json:"-"`
}

// NumChunks returns the number of chunks in the index
func (g *GlobalIndex) NumChunks() int {
	return len(g.ChunkGlobalOffsets)
}

// NumRecords returns the number of records in the index
func (g *GlobalIndex) NumRecords() int {
	return len(g.RecordGlobalOffsets)
}

// ChunkOf returns the chunk containing the given global item offset,
// found by binary search over the chunk boundary table.
func (g *GlobalIndex) ChunkOf(offset int64) (int, bool) {
	if offset < 0 || offset >= g.TotalItems || len(g.ChunkGlobalOffsets) == 0 {
		return 0, false
	}
	i := sort.Search(len(g.ChunkGlobalOffsets), func(i int) bool {
		return g.ChunkGlobalOffsets[i] > offset
	})
	return i - 1, true
}

// LocalOffset returns record k's item offset inside its chunk
func (g *GlobalIndex) LocalOffset(k int) int64 {
	return g.RecordGlobalOffsets[k] - g.ChunkGlobalOffsets[g.RecordChunks[k]]
}

// RecordEnd returns the global offset one past record k's last unit
func (g *GlobalIndex) RecordEnd(k int) int64 {
	c := g.RecordChunks[k]
	if k+1 < len(g.RecordChunks) && g.RecordChunks[k+1] == c {
		return g.RecordGlobalOffsets[k+1]
	}
	return g.ChunkGlobalOffsets[c] + g.ChunkItems[c]
}

// Validate checks every structural invariant of the index. Any failure
// means the merge produced a corrupt table that must not be persisted.
func (g *GlobalIndex) Validate() error {
	n := len(g.ChunkGlobalOffsets)
	if len(g.FileNames) != n {
		return NewInvariantError("file_count",
			"%d file names for %d chunk offsets", len(g.FileNames), n)
	}
	if len(g.ChunkItems) != n {
		return NewInvariantError("chunk_items",
			"%d chunk item counts for %d chunk offsets", len(g.ChunkItems), n)
	}
	if len(g.RecordChunks) != len(g.RecordGlobalOffsets) {
		return NewInvariantError("record_chunks",
			"%d record chunks for %d record offsets", len(g.RecordChunks), len(g.RecordGlobalOffsets))
	}
	if g.TotalRecords != len(g.RecordGlobalOffsets) {
		return NewInvariantError("total_records",
			"total_records is %d, index holds %d", g.TotalRecords, len(g.RecordGlobalOffsets))
	}

	seen := make(map[string]int, n)
	for i, name := range g.FileNames {
		if prev, ok := seen[name]; ok {
			return NewInvariantError("unique_files",
				"file %q used by chunks %d and %d", name, prev, i)
		}
		seen[name] = i
	}

	if i, ok := firstNotIncreasing(g.ChunkGlobalOffsets); !ok {
		return NewInvariantError("chunk_offsets_increasing",
			"chunk %d offset %d does not exceed %d", i, g.ChunkGlobalOffsets[i], g.ChunkGlobalOffsets[i-1])
	}
	if i, ok := firstNotIncreasing(g.RecordGlobalOffsets); !ok {
		return NewInvariantError("record_offsets_increasing",
			"record %d offset %d does not exceed %d", i, g.RecordGlobalOffsets[i], g.RecordGlobalOffsets[i-1])
	}

	var sum int64
	for i, items := range g.ChunkItems {
		if items <= 0 {
			return NewInvariantError("chunk_items", "chunk %d has %d items", i, items)
		}
		if g.ChunkGlobalOffsets[i] != sum {
			return NewInvariantError("chunk_offsets_contiguous",
				"chunk %d starts at %d, preceding chunks hold %d items", i, g.ChunkGlobalOffsets[i], sum)
		}
		sum += items
	}
	if n == 0 {
		if g.TotalItems != 0 {
			return NewInvariantError("total_items", "no chunks but total_items is %d", g.TotalItems)
		}
	} else if last := g.ChunkGlobalOffsets[n-1] + g.ChunkItems[n-1]; last != g.TotalItems {
		return NewInvariantError("total_items",
			"last chunk ends at %d, total_items is %d", last, g.TotalItems)
	}

	for k, c := range g.RecordChunks {
		if c < 0 || c >= n {
			return NewInvariantError("record_chunk_resolves",
				"record %d references chunk %d of %d", k, c, n)
		}
		off := g.RecordGlobalOffsets[k]
		if off < g.ChunkGlobalOffsets[c] || off >= g.ChunkGlobalOffsets[c]+g.ChunkItems[c] {
			return NewInvariantError("record_inside_chunk",
				"record %d offset %d outside chunk %d span [%d, %d)",
				k, off, c, g.ChunkGlobalOffsets[c], g.ChunkGlobalOffsets[c]+g.ChunkItems[c])
		}
	}
	return nil
}

// VerifyRoundTrip re-derives each record's chunk from its global offset and
// checks it matches the chunk assigned at shard time.
func (g *GlobalIndex) VerifyRoundTrip() error {
	for k, off := range g.RecordGlobalOffsets {
		c, ok := g.ChunkOf(off)
		if !ok || c != g.RecordChunks[k] {
			return NewInvariantError("round_trip",
				"record %d offset %d resolves to chunk %d, assigned %d", k, off, c, g.RecordChunks[k])
		}
	}
	return nil
}

func firstNotIncreasing(xs []int64) (int, bool) {
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return i, false
		}
	}
	return 0, true
}

// String summarizes the index for logs
func (g *GlobalIndex) String() string {
	return fmt.Sprintf("%d chunks, %d records, %d items", g.NumChunks(), g.NumRecords(), g.TotalItems)
}
