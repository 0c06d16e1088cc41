// Package storage provides the SQLite run catalog for sharding runs.
//
// The catalog records, per run:
//   - Run metadata (index path, output dir, tokenizer, capacity, workers)
//   - Lifecycle state: running, complete or failed (with the error text)
//   - Every input file with its line, record and item counts
//   - Every chunk file with its 1-based index id and global offset
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations
//   - runs: one row per invocation, keyed by a UUID
//   - inputs: input files in run order
//   - chunks: chunk files in index order
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("shardex.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	run := storage.NewRun("out/index.jsonl", "out")
//	if err := db.CreateRun(ctx, run); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Inputs, chunks and the final run state are written together:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	_ = tx.InsertInput(ctx, input)
//	_ = tx.InsertChunk(ctx, chunk)
//	run.State = storage.RunComplete
//	_ = tx.FinishRun(ctx, run)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Build Tags
//
// Pure Go build (default, or the purego tag) uses modernc.org/sqlite:
//
//	CGO_ENABLED=0 go build -tags "purego"
//
// CGO build (sqlite_cgo tag) uses github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo"
//
// Schema changes go through versioned migrations compared with
// Masterminds/semver.
package storage
