package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/shardex/internal/chunker"
	"github.com/dshills/shardex/internal/source"
	"github.com/dshills/shardex/pkg/types"
)

// ErrEmptyIndex is returned when the index file has no summary line
var ErrEmptyIndex = errors.New("index file is empty")

// Location describes where one record lives
type Location struct {
	Record       int    `json:"record"`
	ChunkID      int    `json:"chunk_id"` // 1-based
	File         string `json:"file"`
	LocalOffset  int64  `json:"local_offset"`
	GlobalOffset int64  `json:"global_offset"`
	End          int64  `json:"end"` // global offset one past the record
}

// Units returns the number of units in the record, sentinel included
func (l Location) Units() int64 {
	return l.End - l.GlobalOffset
}

// Reader gives O(1) access to the records of a persisted index. Record
// lines are read on demand through a line-offset table; only the summary
// is decoded up front.
type Reader struct {
	path    string
	src     *source.LineSource
	summary types.GlobalIndex

	mu     sync.Mutex
	chunks *lru.Cache[int, types.Units]
}

// Open maps the index at path and decodes its summary line
func Open(path string) (*Reader, error) {
	src, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	if src.Lines() == 0 {
		_ = src.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyIndex)
	}

	line, err := src.Line(0)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	r := &Reader{path: path, src: src}
	if err := json.Unmarshal(line, &r.summary); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to decode index summary: %w", err)
	}
	if err := checkSummary(&r.summary); err != nil {
		_ = src.Close()
		return nil, err
	}

	// One chunk stays decoded; sequential reads mostly hit it
	r.chunks, _ = lru.New[int, types.Units](1)
	return r, nil
}

// checkSummary rejects summaries whose per-chunk and per-record tables
// disagree in length. Locate and Record index these tables directly.
func checkSummary(g *types.GlobalIndex) error {
	n := len(g.ChunkGlobalOffsets)
	if len(g.FileNames) != n {
		return types.NewInvariantError("file_count",
			"%d file names for %d chunk offsets", len(g.FileNames), n)
	}
	if len(g.ChunkItems) != n {
		return types.NewInvariantError("chunk_items",
			"%d chunk item counts for %d chunk offsets", len(g.ChunkItems), n)
	}
	if len(g.RecordGlobalOffsets) != g.TotalRecords {
		return types.NewInvariantError("total_records",
			"total_records is %d, summary holds %d record offsets", g.TotalRecords, len(g.RecordGlobalOffsets))
	}
	return nil
}

// Path returns the index file path
func (r *Reader) Path() string {
	return r.path
}

// Summary returns the decoded summary. RecordChunks is not populated.
func (r *Reader) Summary() types.GlobalIndex {
	return r.summary
}

// NumRecords returns the number of indexed records
func (r *Reader) NumRecords() int {
	return r.summary.TotalRecords
}

// readEntry decodes the [chunk_id, local_offset] line of record k
func (r *Reader) readEntry(k int) (chunk int, local int64, err error) {
	line, err := r.src.Line(k + 1)
	if err != nil {
		return 0, 0, fmt.Errorf("record %d: %w", k, err)
	}
	var entry [2]int64
	if err := json.Unmarshal(line, &entry); err != nil {
		return 0, 0, fmt.Errorf("failed to decode record %d: %w", k, err)
	}
	return int(entry[0]) - 1, entry[1], nil
}

// Locate returns the chunk and offsets of record k
func (r *Reader) Locate(k int) (Location, error) {
	g := &r.summary
	if k < 0 || k >= g.TotalRecords || k >= len(g.RecordGlobalOffsets) {
		return Location{}, fmt.Errorf("%w: record %d of %d", types.ErrLookupMiss, k, g.TotalRecords)
	}
	c, local, err := r.readEntry(k)
	if err != nil {
		return Location{}, err
	}
	if c < 0 || c >= g.NumChunks() {
		return Location{}, types.NewInvariantError("record_chunk_resolves",
			"record %d references chunk %d of %d", k, c+1, g.NumChunks())
	}
	global := g.ChunkGlobalOffsets[c] + local
	if global != g.RecordGlobalOffsets[k] {
		return Location{}, types.NewInvariantError("record_offset",
			"record %d entry resolves to %d, summary holds %d", k, global, g.RecordGlobalOffsets[k])
	}

	end := g.ChunkGlobalOffsets[c] + g.ChunkItems[c]
	if k+1 < len(g.RecordGlobalOffsets) && g.RecordGlobalOffsets[k+1] < end {
		end = g.RecordGlobalOffsets[k+1]
	}

	return Location{
		Record:       k,
		ChunkID:      c + 1,
		File:         g.FileNames[c],
		LocalOffset:  local,
		GlobalOffset: global,
		End:          end,
	}, nil
}

// Record returns the units of record k, boundary sentinel first
func (r *Reader) Record(k int) (types.Units, error) {
	loc, err := r.Locate(k)
	if err != nil {
		return types.Units{}, err
	}
	units, err := r.chunk(loc.ChunkID - 1)
	if err != nil {
		return types.Units{}, err
	}
	from, to := int(loc.LocalOffset), int(loc.LocalOffset+loc.Units())
	if to > units.Len() {
		return types.Units{}, types.NewInvariantError("chunk_items",
			"chunk %s holds %d units, record %d needs [%d, %d)", loc.File, units.Len(), k, from, to)
	}
	return units.Slice(from, to), nil
}

func (r *Reader) chunk(c int) (types.Units, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if units, ok := r.chunks.Get(c); ok {
		return units, nil
	}
	units, err := chunker.ReadChunkFile(r.summary.FileNames[c])
	if err != nil {
		return types.Units{}, err
	}
	r.chunks.Add(c, units)
	return units, nil
}

// Load reads every record line and returns the full index
func (r *Reader) Load() (*types.GlobalIndex, error) {
	g := r.summary
	if got := r.src.Lines() - 1; got != g.TotalRecords {
		return nil, types.NewInvariantError("total_records",
			"summary declares %d records, file holds %d", g.TotalRecords, got)
	}
	g.RecordChunks = make([]int, g.TotalRecords)
	for k := range g.RecordChunks {
		c, local, err := r.readEntry(k)
		if err != nil {
			return nil, err
		}
		g.RecordChunks[k] = c
		if c >= 0 && c < g.NumChunks() && k < len(g.RecordGlobalOffsets) &&
			g.ChunkGlobalOffsets[c]+local != g.RecordGlobalOffsets[k] {
			return nil, types.NewInvariantError("record_offset",
				"record %d entry resolves to %d, summary holds %d",
				k, g.ChunkGlobalOffsets[c]+local, g.RecordGlobalOffsets[k])
		}
	}
	return &g, nil
}

// Verify re-checks every index invariant and the round trip from global
// offset back to chunk for each record
func (r *Reader) Verify() error {
	g, err := r.Load()
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	return g.VerifyRoundTrip()
}

// Close releases the index mapping and the chunk cache
func (r *Reader) Close() error {
	r.mu.Lock()
	r.chunks.Purge()
	r.mu.Unlock()
	return r.src.Close()
}
