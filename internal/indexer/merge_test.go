package indexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/shardex/pkg/types"
)

// local builds a LocalResult from chunk sizes and (chunk, start) records
func local(worker int, names []string, items []int, records [][2]int) *types.LocalResult {
	r := &types.LocalResult{WorkerID: worker, FileNames: names, ItemsPerChunk: items}
	for _, n := range items {
		r.TotalItems += int64(n)
	}
	for _, rec := range records {
		r.RecordChunks = append(r.RecordChunks, rec[0])
		r.RecordStarts = append(r.RecordStarts, rec[1])
	}
	return r
}

func TestMerge_SingleWorker(t *testing.T) {
	// One worker, five 2-unit records, capacity 4
	m := NewMerger(4)
	require.NoError(t, m.Add(local(0,
		[]string{"d_0_0", "d_0_1", "d_0_2"},
		[]int{4, 4, 2},
		[][2]int{{0, 0}, {0, 2}, {1, 0}, {1, 2}, {2, 0}})))

	g, err := m.Finish()
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 4, 8}, g.ChunkGlobalOffsets)
	assert.Equal(t, []int64{4, 4, 2}, g.ChunkItems)
	assert.Equal(t, []int64{0, 2, 4, 6, 8}, g.RecordGlobalOffsets)
	assert.Equal(t, []int{0, 0, 1, 1, 2}, g.RecordChunks)
	assert.Equal(t, int64(10), g.TotalItems)
	assert.Equal(t, 5, g.TotalRecords)
}

func TestMerge_TwoWorkersFullChunks(t *testing.T) {
	m := NewMerger(10)
	require.NoError(t, m.Add(local(0, []string{"d_0_0"}, []int{10}, [][2]int{{0, 0}, {0, 5}})))
	require.NoError(t, m.Add(local(1, []string{"d_1_0"}, []int{10}, [][2]int{{0, 0}, {0, 3}})))

	g, err := m.Finish()
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 10}, g.ChunkGlobalOffsets)
	assert.Equal(t, int64(20), g.TotalItems)
	assert.Equal(t, []int64{0, 5, 10, 13}, g.RecordGlobalOffsets)
	assert.Equal(t, []int{0, 0, 1, 1}, g.RecordChunks)
}

func TestMerge_EmptyWorkerIsNeutral(t *testing.T) {
	w0 := func() *types.LocalResult {
		return local(0, []string{"d_0_0", "d_0_1"}, []int{4, 3}, [][2]int{{0, 0}, {1, 0}})
	}
	w2 := func() *types.LocalResult {
		return local(2, []string{"d_2_0"}, []int{5}, [][2]int{{0, 0}, {0, 2}})
	}
	empty := &types.LocalResult{WorkerID: 1, Range: types.LineRange{Start: 7, End: 7}}

	with := NewMerger(4)
	require.NoError(t, with.Add(w0()))
	require.NoError(t, with.Add(empty))
	assert.Equal(t, 2, with.NumChunks(), "empty worker leaves the chunk counter unchanged")
	require.NoError(t, with.Add(w2()))

	without := NewMerger(4)
	require.NoError(t, without.Add(w0()))
	require.NoError(t, without.Add(w2()))

	g1, err := with.Finish()
	require.NoError(t, err)
	g2, err := without.Finish()
	require.NoError(t, err)
	if diff := cmp.Diff(g2, g1); diff != "" {
		t.Errorf("empty worker changed the index (-without +with):\n%s", diff)
	}
	assert.Equal(t, []int64{0, 4, 7}, g1.ChunkGlobalOffsets)
	assert.Equal(t, []int64{0, 4, 7, 9}, g1.RecordGlobalOffsets)
}

func TestMerge_AccumulatorsCarryAcrossFiles(t *testing.T) {
	m := NewMerger(4)
	// file 1, workers 0 and 1
	require.NoError(t, m.Add(local(0, []string{"a_0_0"}, []int{4}, [][2]int{{0, 0}})))
	require.NoError(t, m.Add(local(1, []string{"a_1_0", "a_1_1"}, []int{5, 1}, [][2]int{{0, 0}, {1, 0}})))
	// file 2, workers 0 and 1
	require.NoError(t, m.Add(local(0, []string{"b_0_0"}, []int{2}, [][2]int{{0, 0}})))
	require.NoError(t, m.Add(local(1, []string{"b_1_0"}, []int{6}, [][2]int{{0, 0}, {0, 3}})))

	g, err := m.Finish()
	require.NoError(t, err)
	assert.Equal(t, []string{"a_0_0", "a_1_0", "a_1_1", "b_0_0", "b_1_0"}, g.FileNames)
	assert.Equal(t, []int64{0, 4, 9, 10, 12}, g.ChunkGlobalOffsets)
	assert.Equal(t, []int64{0, 4, 9, 10, 12, 15}, g.RecordGlobalOffsets)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 4}, g.RecordChunks)
	assert.Equal(t, int64(18), g.TotalItems)
}

func TestMerge_NoChunks(t *testing.T) {
	m := NewMerger(4)
	require.NoError(t, m.Add(&types.LocalResult{}))
	g, err := m.Finish()
	require.NoError(t, err)
	assert.Equal(t, 0, g.NumChunks())
	assert.Equal(t, int64(0), g.TotalItems)
	assert.Equal(t, 0, g.TotalRecords)
}

func TestMerge_RejectsInconsistentResult(t *testing.T) {
	m := NewMerger(4)
	bad := local(0, []string{"d_0_0"}, []int{4}, [][2]int{{1, 0}})
	err := m.Add(bad)
	assert.ErrorIs(t, err, types.ErrInvariantViolation)
}

func TestMerge_DuplicateFileNames(t *testing.T) {
	m := NewMerger(4)
	require.NoError(t, m.Add(local(0, []string{"d_0_0"}, []int{4}, [][2]int{{0, 0}})))
	require.NoError(t, m.Add(local(0, []string{"d_0_0"}, []int{4}, [][2]int{{0, 0}})))

	_, err := m.Finish()
	var ierr *types.InvariantError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "unique_files", ierr.Check)
}
