package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yargevad/filepathx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/shardex/internal/chunker"
	"github.com/dshills/shardex/internal/encoder"
	"github.com/dshills/shardex/internal/index"
	"github.com/dshills/shardex/internal/source"
	"github.com/dshills/shardex/internal/storage"
	"github.com/dshills/shardex/pkg/types"
)

var (
	// ErrShardingInProgress is returned when a run is already active
	ErrShardingInProgress = errors.New("sharding already in progress")
	// ErrNoInputs is returned when the input patterns match no files
	ErrNoInputs = errors.New("no input files")
	// ErrDuplicateDataset is returned when two inputs share a file stem and
	// would write to the same chunk names
	ErrDuplicateDataset = errors.New("duplicate dataset name")
)

// Publisher uploads a finished run's outputs
type Publisher interface {
	Publish(ctx context.Context, chunkPaths []string, indexPath string) error
}

// Indexer coordinates a sharding run: partition -> encode/chunk -> merge -> persist
type Indexer struct {
	logger    *zap.Logger
	storage   storage.Storage
	publisher Publisher
	factory   encoder.Factory
	lock      RunLock
}

// Config contains configuration for one sharding run
type Config struct {
	Inputs          []string // file paths or glob patterns, "**" supported
	OutputDir       string   // chunk files are written here
	IndexFile       string   // index path, replaced on success
	MaxItemsPerFile int      // flush threshold per chunk file
	Workers         int      // line ranges per input file (default: runtime.NumCPU())
	Parallelism     int      // workers run at once (default: Workers)
	Tokenizer       string   // recorded in the run catalog

	// Encoder overrides the indexer's encoder factory for this run
	Encoder encoder.Factory
}

// Statistics contains statistics about a sharding run
type Statistics struct {
	RunID     string
	IndexFile string
	Files     int
	Lines     int
	Records   int
	Skipped   int
	Chunks    int
	Items     int64
	Duration  time.Duration
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = logger }
}

// WithStorage records every run in a catalog
func WithStorage(store storage.Storage) Option {
	return func(idx *Indexer) { idx.storage = store }
}

// WithPublisher uploads outputs after a successful run
func WithPublisher(p Publisher) Option {
	return func(idx *Indexer) { idx.publisher = p }
}

// WithEncoderFactory sets how each worker builds its encoder. The default
// splits on whitespace.
func WithEncoderFactory(f encoder.Factory) Option {
	return func(idx *Indexer) { idx.factory = f }
}

// New creates a new Indexer instance
func New(opts ...Option) *Indexer {
	idx := &Indexer{
		logger:  zap.NewNop(),
		factory: encoder.WordsFactory(""),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Busy reports whether a run is in progress
func (idx *Indexer) Busy() bool {
	return idx.lock.Held()
}

// validate fills defaults and checks required fields
func (c *Config) validate(factory encoder.Factory) error {
	if len(c.Inputs) == 0 {
		return ErrNoInputs
	}
	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if c.IndexFile == "" {
		return errors.New("index file is required")
	}
	if c.MaxItemsPerFile <= 0 {
		return chunker.ErrInvalidCapacity
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Parallelism <= 0 || c.Parallelism > c.Workers {
		c.Parallelism = c.Workers
	}
	if c.Encoder == nil {
		c.Encoder = factory
	}
	return nil
}

// inputFile is one resolved input of a run
type inputFile struct {
	path    string
	dataset string
	ext     string
	size    int64
}

// ShardFiles shards every input and writes the global index. On failure no
// index is left at cfg.IndexFile and the chunk files of the run are removed.
func (idx *Indexer) ShardFiles(ctx context.Context, cfg *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrShardingInProgress
	}
	defer idx.lock.Release()

	if cfg == nil {
		return nil, ErrNoInputs
	}
	c := *cfg
	if err := c.validate(idx.factory); err != nil {
		return nil, err
	}

	startTime := time.Now()

	inputs, err := discoverInputs(c.Inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to discover inputs: %w", err)
	}

	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := index.Remove(c.IndexFile); err != nil {
		return nil, err
	}

	var run *storage.Run
	if idx.storage != nil {
		run = storage.NewRun(c.IndexFile, c.OutputDir)
		run.Tokenizer = c.Tokenizer
		run.MaxItemsPerFile = c.MaxItemsPerFile
		run.Workers = c.Workers
		if err := idx.storage.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	}

	stats, g, results, err := idx.shard(ctx, &c, inputs)
	if err == nil {
		err = index.Write(c.IndexFile, g)
	}
	if err != nil {
		removeChunks(results)
		idx.failRun(run, err)
		return nil, err
	}

	if run != nil {
		if err := idx.recordRun(ctx, run, inputs, results, g); err != nil {
			err = fmt.Errorf("failed to record run: %w", err)
			if rmErr := index.Remove(c.IndexFile); rmErr != nil {
				idx.logger.Warn("failed to remove index", zap.String("path", c.IndexFile), zap.Error(rmErr))
			}
			removeChunks(results)
			idx.failRun(run, err)
			return nil, err
		}
		stats.RunID = run.ID
	}

	if idx.publisher != nil {
		if err := idx.publisher.Publish(ctx, g.FileNames, c.IndexFile); err != nil {
			return nil, fmt.Errorf("failed to publish run: %w", err)
		}
	}

	stats.IndexFile = c.IndexFile
	stats.Duration = time.Since(startTime)
	idx.logger.Info("sharding complete",
		zap.Int("files", stats.Files),
		zap.String("records", humanize.Comma(int64(stats.Records))),
		zap.String("items", humanize.Comma(stats.Items)),
		zap.Int("chunks", stats.Chunks),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// shard runs every input through the worker pool and merges the results.
// results holds the worker results of every input that completed, even on
// error, so the caller can clean up their chunk files.
func (idx *Indexer) shard(ctx context.Context, c *Config, inputs []inputFile) (
	*Statistics, *types.GlobalIndex, [][]*types.LocalResult, error) {

	stats := &Statistics{Files: len(inputs)}
	merger := NewMerger(c.MaxItemsPerFile)
	results := make([][]*types.LocalResult, 0, len(inputs))

	sources := source.NewCache(source.DefaultCacheSize)
	defer func() { _ = sources.Close() }()

	for _, in := range inputs {
		fileResults, err := idx.shardFile(ctx, c, sources, in)
		results = append(results, fileResults)
		if err != nil {
			return nil, nil, results, err
		}

		for _, r := range fileResults {
			if err := merger.Add(r); err != nil {
				return nil, nil, results, err
			}
			stats.Lines += r.Lines
			stats.Records += r.NumRecords()
			stats.Skipped += r.Skipped
		}
	}

	g, err := merger.Finish()
	if err != nil {
		return nil, nil, results, err
	}
	stats.Chunks = g.NumChunks()
	stats.Items = g.TotalItems
	return stats, g, results, nil
}

// shardFile partitions one input and runs its workers. Results are indexed
// by worker id. On error, results of the workers that succeeded are still
// returned.
func (idx *Indexer) shardFile(ctx context.Context, c *Config, sources *source.Cache,
	in inputFile) ([]*types.LocalResult, error) {

	staged, cleanup, err := source.Stage(in.path, c.OutputDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		// The mapping must go before the staged copy
		_ = sources.Close()
		_ = cleanup()
	}()

	src, err := sources.Get(staged)
	if err != nil {
		return nil, err
	}

	ranges := Partition(src.Lines(), c.Workers)
	if err := ValidatePartition(in.path, src.Lines(), ranges); err != nil {
		return nil, err
	}

	idx.logger.Info("sharding input",
		zap.String("path", in.path),
		zap.String("size", humanize.Bytes(uint64(in.size))),
		zap.String("lines", humanize.Comma(int64(src.Lines()))),
		zap.Int("workers", c.Workers))

	results := make([]*types.LocalResult, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Parallelism)

	for w, rng := range ranges {
		g.Go(func() error {
			enc, err := c.Encoder()
			if err != nil {
				return &types.WorkerError{Path: in.path, Worker: w, Range: rng,
					Err: fmt.Errorf("failed to create encoder: %w", err)}
			}
			r, err := RunWorker(gctx, src, enc, chunker.Config{
				Dir:      c.OutputDir,
				Dataset:  in.dataset,
				Ext:      in.ext,
				Worker:   w,
				Capacity: c.MaxItemsPerFile,
				Logger:   idx.logger,
			}, rng)
			if err != nil {
				return &types.WorkerError{Path: in.path, Worker: w, Range: rng, Err: err}
			}
			results[w] = r
			idx.logger.Debug("worker done",
				zap.String("path", in.path),
				zap.Int("worker", w),
				zap.Int("records", r.NumRecords()),
				zap.Int("chunks", r.NumChunks()),
				zap.Int64("items", r.TotalItems))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return compact(results), err
	}
	return results, nil
}

// compact drops the nil entries of failed workers
func compact(results []*types.LocalResult) []*types.LocalResult {
	out := results[:0:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// removeChunks deletes the chunk files of a failed run
func removeChunks(results [][]*types.LocalResult) {
	for _, file := range results {
		for _, r := range file {
			for _, name := range r.FileNames {
				_ = os.Remove(name)
			}
		}
	}
}

// discoverInputs expands glob patterns in order. Matches of one pattern are
// sorted; a path matched twice is kept at its first position.
func discoverInputs(patterns []string) ([]inputFile, error) {
	var inputs []inputFile
	seenPath := make(map[string]bool)
	seenDataset := make(map[string]string)

	for _, pattern := range patterns {
		matches, err := filepathx.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			if !strings.ContainsAny(pattern, "*?[") {
				return nil, fmt.Errorf("input %s: %w", pattern, os.ErrNotExist)
			}
			continue
		}
		sort.Strings(matches)

		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				continue
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return nil, err
			}
			if seenPath[abs] {
				continue
			}
			seenPath[abs] = true

			dataset, ext := source.DatasetName(path)
			if prev, ok := seenDataset[dataset]; ok {
				return nil, fmt.Errorf("%w: %q from %s and %s", ErrDuplicateDataset, dataset, prev, path)
			}
			seenDataset[dataset] = path

			inputs = append(inputs, inputFile{path: path, dataset: dataset, ext: ext, size: info.Size()})
		}
	}

	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	return inputs, nil
}

// recordRun writes inputs, chunks and the completed state in one transaction
func (idx *Indexer) recordRun(ctx context.Context, run *storage.Run, inputs []inputFile,
	results [][]*types.LocalResult, g *types.GlobalIndex) error {

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chunkID := 0
	for pos, in := range inputs {
		input := &storage.Input{
			RunID:     run.ID,
			Position:  pos,
			Path:      in.path,
			Dataset:   in.dataset,
			SizeBytes: in.size,
		}
		for _, r := range results[pos] {
			input.Lines += r.Lines
			input.Records += r.NumRecords()
			input.Skipped += r.Skipped
			input.Items += r.TotalItems
		}
		if err := tx.InsertInput(ctx, input); err != nil {
			return err
		}

		for _, r := range results[pos] {
			for local, name := range r.FileNames {
				err := tx.InsertChunk(ctx, &storage.Chunk{
					RunID:        run.ID,
					InputID:      input.ID,
					ChunkID:      chunkID + 1,
					FileName:     name,
					Worker:       r.WorkerID,
					LocalIndex:   local,
					Items:        g.ChunkItems[chunkID],
					GlobalOffset: g.ChunkGlobalOffsets[chunkID],
				})
				if err != nil {
					return err
				}
				chunkID++
			}
		}
	}

	run.State = storage.RunComplete
	run.TotalChunks = g.NumChunks()
	run.TotalItems = g.TotalItems
	run.TotalRecords = int64(g.TotalRecords)
	if err := tx.FinishRun(ctx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// failRun marks a run failed. The run error is what the caller reports, so
// a catalog failure here is only logged.
func (idx *Indexer) failRun(run *storage.Run, cause error) {
	if run == nil {
		return
	}
	run.State = storage.RunFailed
	run.Error = cause.Error()
	if err := idx.storage.FinishRun(context.Background(), run); err != nil {
		idx.logger.Warn("failed to mark run failed", zap.String("run", run.ID), zap.Error(err))
	}
}
