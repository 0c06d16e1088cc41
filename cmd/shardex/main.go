package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/shardex/internal/config"
	"github.com/dshills/shardex/internal/logging"
	"github.com/dshills/shardex/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	// Global flags
	configPath  string
	catalogPath string
	noCatalog   bool
	verbose     bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shardex",
	Short: "Shard JSONL corpora into bounded chunk files with a global record index",
	Long: `shardex encodes the "text" field of every JSONL line, packs the units into
chunk files of at most --max-items units per flush, and writes an index that
maps every record to its chunk and offset.

Each input file is split into line ranges processed in parallel. Every record
reads back with the same units for any worker count.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("catalog") {
			cfg.Catalog.Path = catalogPath
		}
		if noCatalog {
			cfg.Catalog.Disabled = true
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "shardex %s\n", version)
		fmt.Fprintf(out, "Build Time: %s\n", buildTime)
		fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
		fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
		fmt.Fprintf(out, "Catalog Schema: %s\n", storage.CurrentSchemaVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "shardex.yaml", "Config file (YAML); missing file means defaults")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", config.DefaultCatalogPath, "Run catalog database")
	rootCmd.PersistentFlags().BoolVar(&noCatalog, "no-catalog", false, "Do not record runs in the catalog")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(shardCmd, verifyCmd, locateCmd, statusCmd, serveCmd, versionCmd)
}

// openCatalog opens the run catalog, or returns nil when it is disabled
func openCatalog() (storage.Storage, error) {
	if cfg.Catalog.Disabled {
		return nil, nil
	}
	path, err := cfg.CatalogPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return store, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
