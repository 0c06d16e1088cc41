package indexer

import (
	"context"

	"github.com/dshills/shardex/internal/chunker"
	"github.com/dshills/shardex/internal/encoder"
	"github.com/dshills/shardex/internal/source"
	"github.com/dshills/shardex/pkg/types"
)

// RunWorker encodes the records in rng and packs them into chunk files.
// The result holds only worker-local offsets. On any error the files this
// worker wrote are removed and no result is returned.
func RunWorker(ctx context.Context, src *source.LineSource, enc *encoder.RecordEncoder,
	cfg chunker.Config, rng types.LineRange) (result *types.LocalResult, err error) {

	w, err := chunker.NewWriter(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = w.Abort()
		}
	}()

	result = &types.LocalResult{WorkerID: cfg.Worker, Range: rng}
	for line := rng.Start; line < rng.End; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Lines++

		rec, err := src.Record(line)
		if err != nil {
			return nil, &types.EncodingError{Path: src.Path(), Line: line, Worker: cfg.Worker, Err: err}
		}
		if encoder.Skip(rec.Text) {
			result.Skipped++
			continue
		}

		units, err := enc.Encode(rec.Text)
		if err != nil {
			return nil, &types.EncodingError{Path: src.Path(), Line: line, Worker: cfg.Worker, Err: err}
		}

		chunk, start := w.Position()
		if _, err := w.Append(units); err != nil {
			return nil, err
		}
		result.RecordChunks = append(result.RecordChunks, chunk)
		result.RecordStarts = append(result.RecordStarts, start)
	}

	if _, err := w.Close(); err != nil {
		return nil, err
	}

	for _, c := range w.Chunks() {
		result.FileNames = append(result.FileNames, c.Path)
		result.ItemsPerChunk = append(result.ItemsPerChunk, c.Items)
		result.TotalItems += int64(c.Items)
	}
	return result, nil
}
