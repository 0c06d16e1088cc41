package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/shardex/internal/indexer"
	"github.com/dshills/shardex/internal/publish"
	"github.com/dshills/shardex/internal/tokenizer"
)

var shardFlags struct {
	inputs          []string
	outputDir       string
	indexFile       string
	maxItems        int
	tokenizer       string
	eot             string
	workers         int
	parallelism     int
	publishEndpoint string
	publishBucket   string
	publishPrefix   string
	publishInsecure bool
}

var shardCmd = &cobra.Command{
	Use:   "shard",
	Short: "Encode inputs into chunk files and write the global index",
	Long: `Encodes every input, writes chunk files named {dataset}_{worker}_{chunk}{ext}
to --output-dir and writes the index to --index-file (relative paths are
placed in the output directory).

Inputs may be glob patterns, including "**". Files ending in .zst or .gz are
decompressed into the output directory first.

Example:
  shardex shard -i 'data/**/*.jsonl.zst' -o shards --max-items 2048 --tokenizer gpt2`,
	RunE: runShard,
}

func init() {
	f := shardCmd.Flags()
	f.StringArrayVarP(&shardFlags.inputs, "input", "i", nil, "Input file or glob (repeatable)")
	f.StringVarP(&shardFlags.outputDir, "output-dir", "o", "", "Directory for chunk files")
	f.StringVar(&shardFlags.indexFile, "index-file", "", "Index file path")
	f.IntVar(&shardFlags.maxItems, "max-items", 0, "Units per chunk before it is flushed")
	f.StringVar(&shardFlags.tokenizer, "tokenizer", "", "whitespace, gpt2, pile, or a gpt_bpe vocabulary id")
	f.StringVar(&shardFlags.eot, "eot", "", "Record boundary token")
	f.IntVarP(&shardFlags.workers, "workers", "w", 0, "Line ranges per input file")
	f.IntVar(&shardFlags.parallelism, "parallelism", 0, "Workers running at once (default: --workers)")
	f.StringVar(&shardFlags.publishEndpoint, "publish-endpoint", "", "S3-compatible endpoint to upload the run to")
	f.StringVar(&shardFlags.publishBucket, "publish-bucket", "", "Bucket to upload the run to")
	f.StringVar(&shardFlags.publishPrefix, "publish-prefix", "", "Object name prefix")
	f.BoolVar(&shardFlags.publishInsecure, "publish-insecure", false, "Use plain HTTP for uploads")
}

// applyShardFlags overrides config values with the flags that were set
func applyShardFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	s := &cfg.Shard
	if f.Changed("input") {
		s.Inputs = shardFlags.inputs
	}
	if f.Changed("output-dir") {
		s.OutputDir = shardFlags.outputDir
	}
	if f.Changed("index-file") {
		s.IndexFile = shardFlags.indexFile
	}
	if f.Changed("max-items") {
		s.MaxItemsPerFile = shardFlags.maxItems
	}
	if f.Changed("tokenizer") {
		s.Tokenizer = shardFlags.tokenizer
	}
	if f.Changed("eot") {
		s.EOT = shardFlags.eot
	}
	if f.Changed("workers") {
		s.Workers = shardFlags.workers
	}
	if f.Changed("parallelism") {
		s.Parallelism = shardFlags.parallelism
	}

	p := &cfg.Publish
	if f.Changed("publish-endpoint") {
		p.Endpoint = shardFlags.publishEndpoint
	}
	if f.Changed("publish-bucket") {
		p.Bucket = shardFlags.publishBucket
	}
	if f.Changed("publish-prefix") {
		p.Prefix = shardFlags.publishPrefix
	}
	if f.Changed("publish-insecure") {
		p.Secure = !shardFlags.publishInsecure
	}
}

func runShard(cmd *cobra.Command, args []string) error {
	applyShardFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Shard.Inputs) == 0 {
		return indexer.ErrNoInputs
	}

	factory, err := tokenizer.NewFactory(cfg.Shard.Tokenizer, cfg.Shard.EOT)
	if err != nil {
		return err
	}

	opts := []indexer.Option{
		indexer.WithLogger(logger),
		indexer.WithEncoderFactory(factory),
	}

	store, err := openCatalog()
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
		opts = append(opts, indexer.WithStorage(store))
	}

	if cfg.Publish.Enabled() {
		pub, err := publish.New(cfg.Publish, publish.WithLogger(logger))
		if err != nil {
			return err
		}
		opts = append(opts, indexer.WithPublisher(pub))
	}

	indexPath, err := filepath.Abs(cfg.IndexPath())
	if err != nil {
		return fmt.Errorf("failed to resolve index path: %w", err)
	}

	stats, err := indexer.New(opts...).ShardFiles(cmd.Context(), &indexer.Config{
		Inputs:          cfg.Shard.Inputs,
		OutputDir:       cfg.Shard.OutputDir,
		IndexFile:       indexPath,
		MaxItemsPerFile: cfg.Shard.MaxItemsPerFile,
		Workers:         cfg.Shard.Workers,
		Parallelism:     cfg.Shard.Parallelism,
		Tokenizer:       cfg.Shard.Tokenizer,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Index:    %s\n", stats.IndexFile)
	fmt.Fprintf(out, "Files:    %d\n", stats.Files)
	fmt.Fprintf(out, "Records:  %s (%s empty skipped)\n", humanize.Comma(int64(stats.Records)), humanize.Comma(int64(stats.Skipped)))
	fmt.Fprintf(out, "Chunks:   %s\n", humanize.Comma(int64(stats.Chunks)))
	fmt.Fprintf(out, "Items:    %s\n", humanize.Comma(stats.Items))
	fmt.Fprintf(out, "Duration: %s\n", stats.Duration.Round(time.Millisecond))
	if stats.RunID != "" {
		fmt.Fprintf(out, "Run:      %s\n", stats.RunID)
	}
	return nil
}
