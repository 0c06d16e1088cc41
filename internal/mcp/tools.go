package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/shardex/internal/index"
	"github.com/dshills/shardex/internal/indexer"
	"github.com/dshills/shardex/internal/storage"
	"github.com/dshills/shardex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexNotFound      = -32001 // Index file does not exist
	ErrorCodeShardingInProgress = -32002 // Another sharding run is active
	ErrorCodeRecordNotFound     = -32003 // Record number outside the index
	ErrorCodeInvariant          = -32004 // Index failed an invariant check
)

// handleShardCorpus handles the shard_corpus tool invocation
func (s *Server) handleShardCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	inputs := getStringSlice(args, "inputs")
	if len(inputs) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "inputs parameter is required", map[string]interface{}{
			"param":  "inputs",
			"reason": "missing or empty",
		})
	}

	shard := s.cfg.Shard
	shard.OutputDir = getStringDefault(args, "output_dir", shard.OutputDir)
	shard.IndexFile = getStringDefault(args, "index_file", shard.IndexFile)
	shard.MaxItemsPerFile = getIntDefault(args, "max_items_per_file", shard.MaxItemsPerFile)
	shard.Workers = getIntDefault(args, "workers", shard.Workers)
	shard.Tokenizer = getStringDefault(args, "tokenizer", shard.Tokenizer)

	if shard.MaxItemsPerFile < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_items_per_file must be positive", map[string]interface{}{
			"param": "max_items_per_file",
			"value": shard.MaxItemsPerFile,
		})
	}

	indexPath := shard.IndexFile
	if !filepath.IsAbs(indexPath) {
		indexPath = filepath.Join(shard.OutputDir, indexPath)
	}
	indexPath, err := filepath.Abs(indexPath)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid index_file", map[string]interface{}{
			"param":  "index_file",
			"reason": err.Error(),
		})
	}

	factory, err := s.encoderFor(shard.Tokenizer)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid tokenizer", map[string]interface{}{
			"param":  "tokenizer",
			"reason": err.Error(),
		})
	}

	stats, err := s.indexer.ShardFiles(ctx, &indexer.Config{
		Inputs:          inputs,
		OutputDir:       shard.OutputDir,
		IndexFile:       indexPath,
		MaxItemsPerFile: shard.MaxItemsPerFile,
		Workers:         shard.Workers,
		Parallelism:     shard.Parallelism,
		Tokenizer:       shard.Tokenizer,
		Encoder:         factory,
	})
	if errors.Is(err, indexer.ErrShardingInProgress) {
		return nil, newMCPError(ErrorCodeShardingInProgress, "sharding already in progress", nil)
	}
	if err != nil {
		s.logger.Error("shard_corpus failed", zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "sharding failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"sharded":     true,
		"run_id":      stats.RunID,
		"index_file":  stats.IndexFile,
		"files":       stats.Files,
		"lines":       stats.Lines,
		"records":     stats.Records,
		"skipped":     stats.Skipped,
		"chunks":      stats.Chunks,
		"total_items": stats.Items,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	indexPath, err := indexPathArg(request)
	if err != nil {
		return nil, err
	}

	response := map[string]interface{}{
		"index_path": indexPath,
		"sharding":   s.indexer.Busy(),
	}

	if _, statErr := os.Stat(indexPath); statErr == nil {
		r, err := index.Open(indexPath)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to open index", map[string]interface{}{
				"error": err.Error(),
			})
		}
		g := r.Summary()
		_ = r.Close()
		response["indexed"] = true
		response["summary"] = map[string]interface{}{
			"max_items_per_file": g.MaxItemsPerFile,
			"chunks":             g.NumChunks(),
			"total_items":        g.TotalItems,
			"total_records":      g.TotalRecords,
		}
	} else {
		response["indexed"] = false
	}

	if s.storage == nil {
		response["catalog"] = "disabled"
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	run, err := s.storage.GetLatestRun(ctx, indexPath)
	if errors.Is(err, storage.ErrNotFound) {
		response["message"] = "No catalog run recorded for this index. Use shard_corpus to create one."
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get run", map[string]interface{}{
			"error": err.Error(),
		})
	}

	status, err := s.storage.GetStatus(ctx, run.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	runInfo := map[string]interface{}{
		"id":                 run.ID,
		"state":              string(run.State),
		"output_dir":         run.OutputDir,
		"tokenizer":          run.Tokenizer,
		"max_items_per_file": run.MaxItemsPerFile,
		"workers":            run.Workers,
		"started_at":         run.StartedAt.Format(time.RFC3339),
	}
	if !run.FinishedAt.IsZero() {
		runInfo["finished_at"] = run.FinishedAt.Format(time.RFC3339)
	}
	if run.Error != "" {
		runInfo["error"] = run.Error
	}
	response["run"] = runInfo
	response["statistics"] = map[string]interface{}{
		"inputs_count":  status.InputsCount,
		"chunks_count":  status.ChunksCount,
		"chunk_items":   status.ChunkItems,
		"total_records": run.TotalRecords,
		"catalog_mb":    fmt.Sprintf("%.2f", status.DBSizeMB),
	}
	response["health"] = map[string]interface{}{
		"database_accessible": status.Health.DatabaseAccessible,
		"chunks_consistent":   status.Health.ChunksConsistent,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleLocateRecord handles the locate_record tool invocation
func (s *Server) handleLocateRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	indexPath, err := indexPathArg(request)
	if err != nil {
		return nil, err
	}
	args, _ := request.Params.Arguments.(map[string]interface{})

	k := getIntDefault(args, "record", -1)
	if k < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "record must be a non-negative integer", map[string]interface{}{
			"param": "record",
		})
	}

	r, err := openIndex(indexPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	loc, err := r.Locate(k)
	if errors.Is(err, types.ErrLookupMiss) {
		s.logger.Debug("record lookup miss", zap.String("index", indexPath), zap.Int("record", k))
		return nil, newMCPError(ErrorCodeRecordNotFound, "record not in index", map[string]interface{}{
			"record":        k,
			"total_records": r.NumRecords(),
		})
	}
	if err != nil {
		return nil, invariantOrInternal(err)
	}

	response := map[string]interface{}{
		"record":        loc.Record,
		"chunk_id":      loc.ChunkID,
		"file":          loc.File,
		"local_offset":  loc.LocalOffset,
		"global_offset": loc.GlobalOffset,
		"end":           loc.End,
		"units":         loc.Units(),
	}

	if getBoolDefault(args, "include_units", false) {
		units, err := r.Record(k)
		if err != nil {
			return nil, invariantOrInternal(err)
		}
		response["content"] = units
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleVerifyIndex handles the verify_index tool invocation
func (s *Server) handleVerifyIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	indexPath, err := indexPathArg(request)
	if err != nil {
		return nil, err
	}

	r, err := openIndex(indexPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	response := map[string]interface{}{
		"index_path": indexPath,
		"records":    r.NumRecords(),
		"chunks":     r.Summary().NumChunks(),
	}

	if err := r.Verify(); err != nil {
		var inv *types.InvariantError
		if !errors.As(err, &inv) {
			return nil, newMCPError(ErrorCodeInternalError, "verification failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		response["valid"] = false
		response["check"] = inv.Check
		response["detail"] = inv.Detail
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	response["valid"] = true
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func indexPathArg(request mcp.CallToolRequest) (string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	path, ok := args["index_path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "index_path parameter is required", map[string]interface{}{
			"param":  "index_path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid index_path", map[string]interface{}{
			"param":  "index_path",
			"reason": err.Error(),
		})
	}
	return filepath.Clean(path), nil
}

func openIndex(path string) (*index.Reader, error) {
	r, err := index.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, newMCPError(ErrorCodeIndexNotFound, "index not found", map[string]interface{}{
			"index_path": path,
		})
	}
	if err != nil {
		return nil, invariantOrInternal(err)
	}
	return r, nil
}

func invariantOrInternal(err error) error {
	var inv *types.InvariantError
	if errors.As(err, &inv) {
		return newMCPError(ErrorCodeInvariant, "index invariant violated", map[string]interface{}{
			"check":  inv.Check,
			"detail": inv.Detail,
		})
	}
	return newMCPError(ErrorCodeInternalError, "index read failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// validatePath checks that a path is absolute and not a directory. It may
// not exist yet.
func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return ErrPathIsDirectory
	}
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter. A bare string is
// treated as a single element.
func getStringSlice(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case string:
		if v != "" {
			return []string{v}
		}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathIsDirectory = errors.New("path is a directory")
)
