package chunker

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/shardex/pkg/types"
)

// Common errors
var (
	ErrClosed          = errors.New("chunk writer is closed")
	ErrInvalidCapacity = errors.New("max items per file must be positive")
	ErrNoDataset       = errors.New("dataset name is required")
)

// Config describes where and how one worker writes its chunks
type Config struct {
	Dir      string // output directory, must exist
	Dataset  string // input file stem
	Ext      string // input file extension, e.g. ".jsonl"
	Worker   int
	Capacity int // max_items_per_file
	Logger   *zap.Logger
}

// FlushEvent is returned by Append when the buffer reached capacity and was
// written out.
type FlushEvent struct {
	Chunk types.Chunk
}

// Writer buffers units for one worker and writes a chunk file each time the
// buffer reaches capacity. A record is always appended whole before the
// capacity check, so a chunk may exceed Capacity but a record never spans
// two chunks.
type Writer struct {
	cfg    Config
	buf    types.Units
	chunks []types.Chunk
	closed bool
	logger *zap.Logger
}

// NewWriter creates a Writer
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if cfg.Dataset == "" {
		return nil, ErrNoDataset
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{cfg: cfg, logger: logger}, nil
}

// FileName returns the chunk file name for a worker-local chunk index
func FileName(dataset string, worker, chunk int, ext string) string {
	return fmt.Sprintf("%s_%d_%d%s", dataset, worker, chunk, ext)
}

// Position returns the index of the chunk currently being filled and the
// number of units already buffered for it. A record appended next starts
// exactly there.
func (w *Writer) Position() (chunk, offset int) {
	return len(w.chunks), w.buf.Len()
}

// Append buffers units and flushes when the buffer holds Capacity or more
// units. The returned event is nil when nothing was flushed.
func (w *Writer) Append(units types.Units) (*FlushEvent, error) {
	if w.closed {
		return nil, ErrClosed
	}
	if err := w.buf.Append(units); err != nil {
		return nil, err
	}
	if w.buf.Len() < w.cfg.Capacity {
		return nil, nil
	}
	chunk, err := w.flush()
	if err != nil {
		return nil, err
	}
	return &FlushEvent{Chunk: chunk}, nil
}

// Close flushes a non-empty remainder. Empty chunks are never written.
func (w *Writer) Close() (*FlushEvent, error) {
	if w.closed {
		return nil, nil
	}
	w.closed = true
	if w.buf.Len() == 0 {
		return nil, nil
	}
	chunk, err := w.flush()
	if err != nil {
		return nil, err
	}
	return &FlushEvent{Chunk: chunk}, nil
}

// Abort discards the buffer and removes every chunk file written so far
func (w *Writer) Abort() error {
	w.closed = true
	w.buf.Reset()
	var errs []error
	for _, c := range w.chunks {
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	w.chunks = nil
	return errors.Join(errs...)
}

// Chunks returns the chunks flushed so far, in order
func (w *Writer) Chunks() []types.Chunk {
	out := make([]types.Chunk, len(w.chunks))
	copy(out, w.chunks)
	return out
}

func (w *Writer) flush() (types.Chunk, error) {
	index := len(w.chunks)
	name := FileName(w.cfg.Dataset, w.cfg.Worker, index, w.cfg.Ext)
	path := filepath.Join(w.cfg.Dir, name)

	if err := writeChunkFile(path, w.buf); err != nil {
		return types.Chunk{}, fmt.Errorf("failed to write chunk %s: %w", name, err)
	}

	chunk := types.Chunk{
		Path:   path,
		Items:  w.buf.Len(),
		Index:  index,
		Worker: w.cfg.Worker,
	}
	w.chunks = append(w.chunks, chunk)
	w.buf.Reset()

	w.logger.Debug("chunk flushed",
		zap.String("path", path),
		zap.Int("worker", chunk.Worker),
		zap.Int("chunk", chunk.Index),
		zap.Int("items", chunk.Items))
	return chunk, nil
}

// writeChunkFile writes units as a single JSON array line, through a temp
// file renamed into place.
func writeChunkFile(path string, units types.Units) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".chunk-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = json.NewEncoder(bw).Encode(units); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadChunkFile loads the units stored in a chunk file
func ReadChunkFile(path string) (types.Units, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Units{}, fmt.Errorf("failed to read chunk: %w", err)
	}
	var units types.Units
	if err := json.Unmarshal(data, &units); err != nil {
		return types.Units{}, fmt.Errorf("failed to decode chunk %s: %w", path, err)
	}
	return units, nil
}
