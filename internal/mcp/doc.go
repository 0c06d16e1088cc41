// Package mcp implements the Model Context Protocol (MCP) server for shardex.
//
// The server exposes four tools over stdio:
//   - shard_corpus: encode JSONL inputs into chunk files and write an index
//   - get_status: report the latest catalog run and the index summary
//   - locate_record: resolve a record number to its chunk and offsets
//   - verify_index: check an index's invariants and offset round trip
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout carries protocol messages only.
//
// # Basic Usage
//
//	shardex serve --catalog ~/.shardex/catalog.db
//
// # Tool: shard_corpus
//
//	Request:
//	{
//	  "name": "shard_corpus",
//	  "arguments": {
//	    "inputs": ["/data/wiki/**/*.jsonl.zst"],
//	    "output_dir": "/data/shards",
//	    "max_items_per_file": 2048,
//	    "tokenizer": "gpt2"
//	  }
//	}
//
//	Response:
//	{
//	  "sharded": true,
//	  "run_id": "6f1c...",
//	  "index_file": "/data/shards/index.jsonl",
//	  "records": 120000,
//	  "chunks": 5311,
//	  "total_items": 10874329,
//	  "duration_ms": 48211
//	}
//
// Only one run executes at a time. A second call while a run is active
// fails with code -32002.
//
// # Tool: locate_record
//
//	Request:
//	{
//	  "name": "locate_record",
//	  "arguments": {"index_path": "/data/shards/index.jsonl", "record": 42}
//	}
//
//	Response:
//	{
//	  "record": 42,
//	  "chunk_id": 3,
//	  "file": "/data/shards/wiki_0_2.jsonl",
//	  "local_offset": 118,
//	  "global_offset": 4214,
//	  "end": 4301,
//	  "units": 87
//	}
//
// chunk_id is 1-based, matching the index file. end is exclusive.
//
// # Error Codes
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  index file not found
//	-32002  sharding already in progress
//	-32003  record outside the index
//	-32004  index invariant violated
package mcp
