package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/shardex/internal/index"
	"github.com/dshills/shardex/internal/storage"
	"github.com/dshills/shardex/pkg/types"
)

var showUnits bool

var verifyCmd = &cobra.Command{
	Use:   "verify <index>",
	Short: "Check an index file's invariants and offset round trip",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var locateCmd = &cobra.Command{
	Use:   "locate <index> <record>",
	Short: "Resolve a record number to its chunk file and offsets",
	Args:  cobra.ExactArgs(2),
	RunE:  runLocate,
}

var statusCmd = &cobra.Command{
	Use:   "status <index>",
	Short: "Show the latest catalog run for an index",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	locateCmd.Flags().BoolVar(&showUnits, "units", false, "Also print the record's units")
}

func runVerify(cmd *cobra.Command, args []string) error {
	r, err := index.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	if err := r.Verify(); err != nil {
		return err
	}

	g := r.Summary()
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s records, %s chunks, %s items\n",
		humanize.Comma(int64(g.TotalRecords)),
		humanize.Comma(int64(g.NumChunks())),
		humanize.Comma(g.TotalItems))
	return nil
}

func runLocate(cmd *cobra.Command, args []string) error {
	k, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid record number %q: %w", args[1], err)
	}

	r, err := index.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	loc, err := r.Locate(k)
	if errors.Is(err, types.ErrLookupMiss) {
		logger.Debug("record lookup miss", zap.String("index", args[0]), zap.Int("record", k))
	}
	if err != nil {
		return err
	}

	out := struct {
		index.Location
		UnitCount int64        `json:"units"`
		Content   *types.Units `json:"content,omitempty"`
	}{Location: loc, UnitCount: loc.Units()}

	if showUnits {
		units, err := r.Record(k)
		if err != nil {
			return err
		}
		out.Content = &units
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("catalog is disabled")
	}
	defer func() { _ = store.Close() }()

	indexPath, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	run, err := store.GetLatestRun(ctx, indexPath)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no catalog run for %s", indexPath)
	}
	if err != nil {
		return err
	}
	status, err := store.GetStatus(ctx, run.ID)
	if err != nil {
		return err
	}
	inputs, err := store.ListInputs(ctx, run.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s (%s)\n", run.ID, run.State)
	fmt.Fprintf(out, "Started:   %s\n", humanize.Time(run.StartedAt))
	if run.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", run.Error)
	}
	fmt.Fprintf(out, "Tokenizer: %s\n", tokenizerLabel(run.Tokenizer))
	fmt.Fprintf(out, "Chunks:    %s (%s items)\n", humanize.Comma(int64(status.ChunksCount)), humanize.Comma(status.ChunkItems))
	fmt.Fprintf(out, "Records:   %s\n", humanize.Comma(run.TotalRecords))
	fmt.Fprintf(out, "Catalog:   %.2f MB, consistent=%t\n", status.DBSizeMB, status.Health.ChunksConsistent)
	for _, in := range inputs {
		fmt.Fprintf(out, "  %s  %s  %s records, %s skipped\n",
			in.Path, humanize.Bytes(uint64(in.SizeBytes)),
			humanize.Comma(int64(in.Records)), humanize.Comma(int64(in.Skipped)))
	}
	return nil
}

func tokenizerLabel(name string) string {
	if name == "" {
		return "whitespace"
	}
	return name
}
