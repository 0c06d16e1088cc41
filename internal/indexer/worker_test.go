package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/shardex/internal/chunker"
	"github.com/dshills/shardex/internal/encoder"
	"github.com/dshills/shardex/internal/source"
	"github.com/dshills/shardex/pkg/types"
)

// writeJSONL writes one {"text": ...} object per text
func writeJSONL(t testing.TB, path string, texts ...string) {
	t.Helper()
	var b strings.Builder
	for _, text := range texts {
		data, err := json.Marshal(map[string]string{"text": text})
		require.NoError(t, err)
		b.Write(data)
		b.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
}

func openSource(t *testing.T, path string) *source.LineSource {
	t.Helper()
	src, err := source.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func workerConfig(dir string, worker, capacity int) chunker.Config {
	return chunker.Config{Dir: dir, Dataset: "data", Ext: ".jsonl", Worker: worker, Capacity: capacity}
}

func TestRunWorker_BoundaryAttribution(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "data.jsonl")
	// 2, 2, 3 and 2 units with the sentinel
	writeJSONL(t, in, "a", "b", "c d", "e")
	out := t.TempDir()

	r, err := RunWorker(context.Background(), openSource(t, in), encoder.NewWords(""),
		workerConfig(out, 0, 4), types.LineRange{Start: 0, End: 4})
	require.NoError(t, err)

	// Record 1 fills chunk 0 to exactly 4 and belongs to it; record 2
	// starts chunk 1
	assert.Equal(t, []int{4, 5}, r.ItemsPerChunk)
	assert.Equal(t, []int{0, 0, 1, 1}, r.RecordChunks)
	assert.Equal(t, []int{0, 2, 0, 3}, r.RecordStarts)
	assert.Equal(t, int64(9), r.TotalItems)
	assert.Equal(t, 4, r.Lines)
	assert.NoError(t, r.Validate())
	assert.Equal(t, []string{
		filepath.Join(out, "data_0_0.jsonl"),
		filepath.Join(out, "data_0_1.jsonl"),
	}, r.FileNames)

	units, err := chunker.ReadChunkFile(r.FileNames[1])
	require.NoError(t, err)
	assert.Equal(t, []string{"<|endoftext|>", "c", "d", "<|endoftext|>", "e"}, units.Words)
}

func TestRunWorker_SkipsEmptyRecords(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "data.jsonl")
	writeJSONL(t, in, "one", "", "   ", "two")

	// A blank line is an empty record too
	data, err := os.ReadFile(in)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in, append(data, '\n'), 0644))

	r, err := RunWorker(context.Background(), openSource(t, in), encoder.NewWords(""),
		workerConfig(t.TempDir(), 0, 100), types.LineRange{Start: 0, End: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, r.NumRecords())
	assert.Equal(t, 3, r.Skipped)
	assert.Equal(t, 5, r.Lines)
	assert.Equal(t, []int{0, 2}, r.RecordStarts)
}

func TestRunWorker_OnlySubrange(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "data.jsonl")
	writeJSONL(t, in, "a", "b c", "d e f", "g")

	r, err := RunWorker(context.Background(), openSource(t, in), encoder.NewWords(""),
		workerConfig(t.TempDir(), 1, 100), types.LineRange{Start: 1, End: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, r.NumRecords())
	assert.Equal(t, int64(3+4), r.TotalItems)
	assert.Equal(t, 1, r.WorkerID)
}

func TestRunWorker_EmptyRange(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "data.jsonl")
	writeJSONL(t, in, "a")
	out := t.TempDir()

	r, err := RunWorker(context.Background(), openSource(t, in), encoder.NewWords(""),
		workerConfig(out, 3, 4), types.LineRange{Start: 1, End: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, r.NumChunks())
	assert.Equal(t, 0, r.NumRecords())

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunWorker_DecodeErrorAborts(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "data.jsonl")
	writeJSONL(t, in, "a b c d", "e f g h")
	f, err := os.OpenFile(in, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"title\": \"no text\"}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	out := t.TempDir()

	_, err = RunWorker(context.Background(), openSource(t, in), encoder.NewWords(""),
		workerConfig(out, 2, 4), types.LineRange{Start: 0, End: 3})
	require.Error(t, err)

	var encErr *types.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, 2, encErr.Line)
	assert.Equal(t, 2, encErr.Worker)
	assert.Equal(t, in, encErr.Path)
	assert.ErrorIs(t, err, source.ErrMissingText)
	assert.Contains(t, err.Error(), "data.jsonl:3 (worker 2)")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries, "chunks of a failed worker are removed")
}

type failingTokenizer struct{}

func (failingTokenizer) Encode(string) ([]int, error) { return nil, errors.New("vocab exploded") }
func (failingTokenizer) TokenID(string) (int, error)  { return 0, nil }
func (failingTokenizer) Name() string                 { return "failing" }

func TestRunWorker_EncoderErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "data.jsonl")
	writeJSONL(t, in, "a")

	enc, err := encoder.NewTokenized(failingTokenizer{}, "")
	require.NoError(t, err)

	_, err = RunWorker(context.Background(), openSource(t, in), enc,
		workerConfig(t.TempDir(), 0, 4), types.LineRange{Start: 0, End: 1})
	assert.ErrorIs(t, err, encoder.ErrTokenizeFailed)
	assert.Contains(t, err.Error(), "vocab exploded")
}

func TestRunWorker_Canceled(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "data.jsonl")
	writeJSONL(t, in, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunWorker(ctx, openSource(t, in), encoder.NewWords(""),
		workerConfig(t.TempDir(), 0, 4), types.LineRange{Start: 0, End: 2})
	assert.ErrorIs(t, err, context.Canceled)
}
