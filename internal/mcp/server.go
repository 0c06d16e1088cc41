package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/shardex/internal/config"
	"github.com/dshills/shardex/internal/encoder"
	"github.com/dshills/shardex/internal/indexer"
	"github.com/dshills/shardex/internal/publish"
	"github.com/dshills/shardex/internal/storage"
	"github.com/dshills/shardex/internal/tokenizer"
)

const (
	// ServerName is the MCP server name
	ServerName = "shardex"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	cfg     *config.Config
	storage storage.Storage // nil when the catalog is disabled
	indexer *indexer.Indexer
	logger  *zap.Logger
}

// NewServer creates a new MCP server instance. The catalog is opened (and
// created if needed) unless cfg.Catalog.Disabled is set.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var store storage.Storage
	if !cfg.Catalog.Disabled {
		dbFile, err := cfg.CatalogPath()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dbFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
		sqlStore, err := storage.NewSQLiteStorage(dbFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		store = sqlStore
	}

	opts := []indexer.Option{indexer.WithLogger(logger)}
	if store != nil {
		opts = append(opts, indexer.WithStorage(store))
	}
	if cfg.Publish.Enabled() {
		pub, err := publish.New(cfg.Publish, publish.WithLogger(logger))
		if err != nil {
			closeStorage(store)
			return nil, err
		}
		opts = append(opts, indexer.WithPublisher(pub))
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		cfg:     cfg,
		storage: store,
		indexer: indexer.New(opts...),
		logger:  logger,
	}

	if err := s.registerTools(); err != nil {
		closeStorage(store)
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.Close() }()
	return server.ServeStdio(s.mcp)
}

// Close releases the catalog
func (s *Server) Close() error {
	if s.storage == nil {
		return nil
	}
	return s.storage.Close()
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(shardCorpusTool(), s.handleShardCorpus)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(locateRecordTool(), s.handleLocateRecord)
	s.mcp.AddTool(verifyIndexTool(), s.handleVerifyIndex)
	return nil
}

// encoderFor builds the encoder factory for a tokenizer name. Runs share
// one indexer so its lock rejects overlapping requests.
func (s *Server) encoderFor(name string) (encoder.Factory, error) {
	return tokenizer.NewFactory(name, s.cfg.Shard.EOT)
}

func closeStorage(store storage.Storage) {
	if store != nil {
		_ = store.Close()
	}
}
