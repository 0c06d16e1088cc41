package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// shardCorpusTool returns the tool definition for shard_corpus
func shardCorpusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "shard_corpus",
		Description: "Encode JSONL inputs into bounded chunk files and write a global record index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"inputs": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Input files or glob patterns (** supported); .zst and .gz are decompressed first",
				},
				"output_dir": map[string]interface{}{
					"type":        "string",
					"description": "Directory for chunk files (default from config)",
				},
				"index_file": map[string]interface{}{
					"type":        "string",
					"description": "Index path; relative paths are placed in output_dir",
				},
				"max_items_per_file": map[string]interface{}{
					"type":        "integer",
					"description": "Units per chunk before it is flushed",
					"minimum":     1,
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Line ranges per input file",
					"minimum":     1,
				},
				"tokenizer": map[string]interface{}{
					"type":        "string",
					"description": "whitespace, gpt2, pile, or a gpt_bpe vocabulary id",
				},
			},
			Required: []string{"inputs"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the latest catalog run for an index and the index summary",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"index_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to an index file",
				},
			},
			Required: []string{"index_path"},
		},
	}
}

// locateRecordTool returns the tool definition for locate_record
func locateRecordTool() mcp.Tool {
	return mcp.Tool{
		Name:        "locate_record",
		Description: "Resolve a record number to its chunk file and unit offsets",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"index_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to an index file",
				},
				"record": map[string]interface{}{
					"type":        "integer",
					"description": "Zero-based record number",
					"minimum":     0,
				},
				"include_units": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, return the record's units",
					"default":     false,
				},
			},
			Required: []string{"index_path", "record"},
		},
	}
}

// verifyIndexTool returns the tool definition for verify_index
func verifyIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "verify_index",
		Description: "Check an index file's invariants and its offset round trip",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"index_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to an index file",
				},
			},
			Required: []string{"index_path"},
		},
	}
}
