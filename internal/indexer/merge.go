package indexer

import (
	"github.com/dshills/shardex/pkg/types"
)

// Merger stitches worker results into one global index. Results must be
// added file by file in input order and, within a file, in worker-id order.
// The item offset and chunk counter carry across both workers and files.
type Merger struct {
	index        types.GlobalIndex
	itemOffset   int64
	chunkCounter int
}

// NewMerger creates an empty Merger
func NewMerger(maxItemsPerFile int) *Merger {
	return &Merger{index: types.GlobalIndex{
		MaxItemsPerFile:     maxItemsPerFile,
		FileNames:           []string{},
		ChunkGlobalOffsets:  []int64{},
		ChunkItems:          []int64{},
		RecordGlobalOffsets: []int64{},
		RecordChunks:        []int{},
	}}
}

// Add appends one worker's chunks and records. A worker with no chunks
// contributes nothing.
func (m *Merger) Add(r *types.LocalResult) error {
	if err := r.Validate(); err != nil {
		return types.NewInvariantError("local_result", "%v", err)
	}

	g := &m.index
	offset := m.itemOffset
	for _, n := range r.ItemsPerChunk {
		g.ChunkGlobalOffsets = append(g.ChunkGlobalOffsets, offset)
		g.ChunkItems = append(g.ChunkItems, int64(n))
		offset += int64(n)
	}
	for i, local := range r.RecordChunks {
		c := local + m.chunkCounter
		g.RecordChunks = append(g.RecordChunks, c)
		g.RecordGlobalOffsets = append(g.RecordGlobalOffsets, g.ChunkGlobalOffsets[c]+int64(r.RecordStarts[i]))
	}
	g.FileNames = append(g.FileNames, r.FileNames...)

	m.itemOffset += r.TotalItems
	m.chunkCounter += r.NumChunks()
	return nil
}

// NumChunks returns the number of chunks merged so far
func (m *Merger) NumChunks() int {
	return m.chunkCounter
}

// Finish validates the merged index and returns it
func (m *Merger) Finish() (*types.GlobalIndex, error) {
	g := m.index
	g.TotalItems = m.itemOffset
	g.TotalRecords = len(g.RecordGlobalOffsets)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := g.VerifyRoundTrip(); err != nil {
		return nil, err
	}
	return &g, nil
}
