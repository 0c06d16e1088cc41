package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/shardex/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "catalog", "shardex.db")
	cfg.Shard.OutputDir = t.TempDir()
	cfg.Shard.Workers = 1

	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeCorpus(t *testing.T, texts ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	var b strings.Builder
	for _, text := range texts {
		line, err := json.Marshal(map[string]string{"text": text})
		require.NoError(t, err)
		b.Write(line)
		b.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func request(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

// shard runs shard_corpus over three records ("a b", "c", "d e f") with
// three units per chunk. With the boundary sentinel that is 3, 2 and 4
// units: chunk 1 holds record 0, chunk 2 holds records 1 and 2.
func shard(t *testing.T, s *Server) string {
	t.Helper()
	in := writeCorpus(t, "a b", "c", "d e f")
	result, err := s.handleShardCorpus(context.Background(), request("shard_corpus", map[string]interface{}{
		"inputs":             []interface{}{in},
		"max_items_per_file": float64(3),
	}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	return out["index_file"].(string)
}

func TestNewServer(t *testing.T) {
	t.Run("creates catalog directory", func(t *testing.T) {
		s := newTestServer(t)
		assert.NotNil(t, s.mcp)
		assert.NotNil(t, s.storage)
		assert.NotNil(t, s.indexer)
		_, err := os.Stat(filepath.Dir(s.cfg.Catalog.Path))
		assert.NoError(t, err)
	})

	t.Run("catalog disabled", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Catalog.Disabled = true
		s, err := NewServer(cfg, nil)
		require.NoError(t, err)
		assert.Nil(t, s.storage)
		assert.NoError(t, s.Close())
	})

	t.Run("publisher configured", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Catalog.Disabled = true
		cfg.Publish.Endpoint = "localhost:9000"
		cfg.Publish.Bucket = "corpora"
		s, err := NewServer(cfg, nil)
		require.NoError(t, err)
		assert.NotNil(t, s.indexer)
	})
}

func TestShardCorpus(t *testing.T) {
	s := newTestServer(t)
	in := writeCorpus(t, "a b", "c", "d e f")

	result, err := s.handleShardCorpus(context.Background(), request("shard_corpus", map[string]interface{}{
		"inputs":             []interface{}{in},
		"max_items_per_file": float64(3),
	}))
	require.NoError(t, err)

	out := decodeResult(t, result)
	assert.Equal(t, true, out["sharded"])
	assert.Equal(t, float64(3), out["records"])
	assert.Equal(t, float64(2), out["chunks"])
	assert.Equal(t, float64(9), out["total_items"])
	assert.NotEmpty(t, out["run_id"])
	assert.True(t, filepath.IsAbs(out["index_file"].(string)))
}

func TestShardCorpus_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	in := writeCorpus(t, "a")

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"no inputs", map[string]interface{}{}},
		{"empty inputs", map[string]interface{}{"inputs": []interface{}{}}},
		{"zero max items", map[string]interface{}{"inputs": in, "max_items_per_file": float64(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleShardCorpus(context.Background(), request("shard_corpus", tt.args))
			requireMCPError(t, err, ErrorCodeInvalidParams)
		})
	}

	t.Run("arguments not a map", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = "nope"
		_, err := s.handleShardCorpus(context.Background(), req)
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})
}

func TestShardCorpus_MissingInput(t *testing.T) {
	s := newTestServer(t)
	_, err := s.handleShardCorpus(context.Background(), request("shard_corpus", map[string]interface{}{
		"inputs": []interface{}{filepath.Join(t.TempDir(), "absent.jsonl")},
	}))
	mcpErr := requireMCPError(t, err, ErrorCodeInternalError)
	assert.Contains(t, mcpErr.Data.(map[string]interface{})["error"], "absent.jsonl")
}

func TestGetStatus(t *testing.T) {
	s := newTestServer(t)

	t.Run("unknown index", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.jsonl")
		result, err := s.handleGetStatus(context.Background(), request("get_status", map[string]interface{}{
			"index_path": path,
		}))
		require.NoError(t, err)
		out := decodeResult(t, result)
		assert.Equal(t, false, out["indexed"])
		assert.Contains(t, out["message"], "shard_corpus")
	})

	t.Run("after a run", func(t *testing.T) {
		indexPath := shard(t, s)
		result, err := s.handleGetStatus(context.Background(), request("get_status", map[string]interface{}{
			"index_path": indexPath,
		}))
		require.NoError(t, err)
		out := decodeResult(t, result)

		assert.Equal(t, true, out["indexed"])
		summary := out["summary"].(map[string]interface{})
		assert.Equal(t, float64(2), summary["chunks"])
		assert.Equal(t, float64(3), summary["total_records"])

		run := out["run"].(map[string]interface{})
		assert.Equal(t, "complete", run["state"])

		stats := out["statistics"].(map[string]interface{})
		assert.Equal(t, float64(1), stats["inputs_count"])
		assert.Equal(t, float64(2), stats["chunks_count"])
		assert.Equal(t, float64(9), stats["chunk_items"])

		health := out["health"].(map[string]interface{})
		assert.Equal(t, true, health["chunks_consistent"])
	})

	t.Run("relative path rejected", func(t *testing.T) {
		_, err := s.handleGetStatus(context.Background(), request("get_status", map[string]interface{}{
			"index_path": "index.jsonl",
		}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})
}

func TestLocateRecord(t *testing.T) {
	s := newTestServer(t)
	indexPath := shard(t, s)

	t.Run("resolves offsets", func(t *testing.T) {
		result, err := s.handleLocateRecord(context.Background(), request("locate_record", map[string]interface{}{
			"index_path":    indexPath,
			"record":        float64(2),
			"include_units": true,
		}))
		require.NoError(t, err)
		out := decodeResult(t, result)

		assert.Equal(t, float64(2), out["chunk_id"])
		assert.Equal(t, float64(2), out["local_offset"])
		assert.Equal(t, float64(5), out["global_offset"])
		assert.Equal(t, float64(9), out["end"])
		assert.Equal(t, float64(4), out["units"])
		assert.Equal(t, []interface{}{"<|endoftext|>", "d", "e", "f"}, out["content"])
		assert.True(t, strings.HasSuffix(out["file"].(string), "corpus_0_1.jsonl"))
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := s.handleLocateRecord(context.Background(), request("locate_record", map[string]interface{}{
			"index_path": indexPath,
			"record":     float64(3),
		}))
		requireMCPError(t, err, ErrorCodeRecordNotFound)
	})

	t.Run("missing record param", func(t *testing.T) {
		_, err := s.handleLocateRecord(context.Background(), request("locate_record", map[string]interface{}{
			"index_path": indexPath,
		}))
		requireMCPError(t, err, ErrorCodeInvalidParams)
	})

	t.Run("missing index", func(t *testing.T) {
		_, err := s.handleLocateRecord(context.Background(), request("locate_record", map[string]interface{}{
			"index_path": filepath.Join(t.TempDir(), "index.jsonl"),
			"record":     float64(0),
		}))
		requireMCPError(t, err, ErrorCodeIndexNotFound)
	})
}

func TestVerifyIndex(t *testing.T) {
	s := newTestServer(t)
	indexPath := shard(t, s)

	result, err := s.handleVerifyIndex(context.Background(), request("verify_index", map[string]interface{}{
		"index_path": indexPath,
	}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, float64(3), out["records"])

	t.Run("corrupt summary", func(t *testing.T) {
		data, err := os.ReadFile(indexPath)
		require.NoError(t, err)
		lines := strings.SplitN(string(data), "\n", 2)

		var summary map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &summary))
		summary["total_items"] = float64(10)
		head, err := json.Marshal(summary)
		require.NoError(t, err)

		bad := filepath.Join(t.TempDir(), "bad.jsonl")
		require.NoError(t, os.WriteFile(bad, []byte(string(head)+"\n"+lines[1]), 0644))

		result, err := s.handleVerifyIndex(context.Background(), request("verify_index", map[string]interface{}{
			"index_path": bad,
		}))
		require.NoError(t, err)
		out := decodeResult(t, result)
		assert.Equal(t, false, out["valid"])
		assert.NotEmpty(t, out["check"])
	})
}

func TestGetStringSlice(t *testing.T) {
	args := map[string]interface{}{
		"one":   "a.jsonl",
		"many":  []interface{}{"a", 3, "", "b"},
		"typed": []string{"x"},
	}
	assert.Equal(t, []string{"a.jsonl"}, getStringSlice(args, "one"))
	assert.Equal(t, []string{"a", "b"}, getStringSlice(args, "many"))
	assert.Equal(t, []string{"x"}, getStringSlice(args, "typed"))
	assert.Nil(t, getStringSlice(args, "missing"))
}
