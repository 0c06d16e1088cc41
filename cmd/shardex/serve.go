package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/shardex/internal/mcp"
	"github.com/dshills/shardex/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP inspection server on stdio",
	Long: `Starts a Model Context Protocol server on stdin/stdout exposing the
shard_corpus, get_status, locate_record and verify_index tools. Logs go to
stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info("starting MCP server",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.String("driver", storage.DriverName))

	server, err := mcp.NewServer(cfg, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	errChan := make(chan error, 1)
	go func() {
		logger.Info("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		_ = server.Close()
		return nil
	case err := <-errChan:
		return err
	}
}
