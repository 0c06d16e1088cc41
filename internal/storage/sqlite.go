package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested entity doesn't exist
var ErrNotFound = errors.New("not found")

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Run operations

const runColumns = `
	id, index_path, output_dir, tokenizer, max_items_per_file, workers, state,
	error, total_chunks, total_items, total_records, started_at, finished_at`

// createRunWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createRunWithQuerier(ctx context.Context, q querier, run *Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.State == "" {
		run.State = RunRunning
	}
	query := `
		INSERT INTO runs (id, index_path, output_dir, tokenizer, max_items_per_file,
		                  workers, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		run.ID, run.IndexPath, run.OutputDir, run.Tokenizer, run.MaxItemsPerFile,
		run.Workers, string(run.State), run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateRun(ctx context.Context, run *Run) error {
	return s.createRunWithQuerier(ctx, s.querier(), run)
}

// finishRunWithQuerier records the final state and totals of a run
func (s *SQLiteStorage) finishRunWithQuerier(ctx context.Context, q querier, run *Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	query := `
		UPDATE runs
		SET state = ?, error = ?, total_chunks = ?, total_items = ?,
		    total_records = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := q.ExecContext(ctx, query,
		string(run.State), run.Error, run.TotalChunks, run.TotalItems,
		run.TotalRecords, run.FinishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) FinishRun(ctx context.Context, run *Run) error {
	return s.finishRunWithQuerier(ctx, s.querier(), run)
}

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var run Run
	var state string
	var tokenizer, runErr sql.NullString
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID, &run.IndexPath, &run.OutputDir, &tokenizer, &run.MaxItemsPerFile,
		&run.Workers, &state, &runErr, &run.TotalChunks, &run.TotalItems,
		&run.TotalRecords, &run.StartedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.State = RunState(state)
	run.Tokenizer = tokenizer.String
	run.Error = runErr.String
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

// getRunWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getRunWithQuerier(ctx context.Context, q querier, id string) (*Run, error) {
	query := `SELECT` + runColumns + ` FROM runs WHERE id = ?`
	return scanRun(q.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*Run, error) {
	return s.getRunWithQuerier(ctx, s.querier(), id)
}

// getLatestRunWithQuerier returns the most recently started run for an index
func (s *SQLiteStorage) getLatestRunWithQuerier(ctx context.Context, q querier, indexPath string) (*Run, error) {
	query := `SELECT` + runColumns + `
		FROM runs
		WHERE index_path = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1
	`
	return scanRun(q.QueryRowContext(ctx, query, indexPath))
}

func (s *SQLiteStorage) GetLatestRun(ctx context.Context, indexPath string) (*Run, error) {
	return s.getLatestRunWithQuerier(ctx, s.querier(), indexPath)
}

// Input operations

// insertInputWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertInputWithQuerier(ctx context.Context, q querier, input *Input) error {
	query := `
		INSERT INTO inputs (run_id, position, path, dataset, size_bytes, lines,
		                    records, skipped, items)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		input.RunID, input.Position, input.Path, input.Dataset, input.SizeBytes,
		input.Lines, input.Records, input.Skipped, input.Items).Scan(&input.ID)
	if err != nil {
		return fmt.Errorf("failed to insert input: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) InsertInput(ctx context.Context, input *Input) error {
	return s.insertInputWithQuerier(ctx, s.querier(), input)
}

// listInputsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listInputsWithQuerier(ctx context.Context, q querier, runID string) ([]*Input, error) {
	query := `
		SELECT id, run_id, position, path, dataset, size_bytes, lines, records,
		       skipped, items
		FROM inputs
		WHERE run_id = ?
		ORDER BY position
	`
	rows, err := q.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var inputs []*Input
	for rows.Next() {
		var in Input
		if err := rows.Scan(&in.ID, &in.RunID, &in.Position, &in.Path, &in.Dataset,
			&in.SizeBytes, &in.Lines, &in.Records, &in.Skipped, &in.Items); err != nil {
			return nil, err
		}
		inputs = append(inputs, &in)
	}
	return inputs, rows.Err()
}

func (s *SQLiteStorage) ListInputs(ctx context.Context, runID string) ([]*Input, error) {
	return s.listInputsWithQuerier(ctx, s.querier(), runID)
}

// Chunk operations

// insertChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	query := `
		INSERT INTO chunks (run_id, input_id, chunk_id, file_name, worker,
		                    local_index, items, global_offset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		chunk.RunID, chunk.InputID, chunk.ChunkID, chunk.FileName, chunk.Worker,
		chunk.LocalIndex, chunk.Items, chunk.GlobalOffset).Scan(&chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return s.insertChunkWithQuerier(ctx, s.querier(), chunk)
}

// listChunksWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listChunksWithQuerier(ctx context.Context, q querier, runID string) ([]*Chunk, error) {
	query := `
		SELECT id, run_id, input_id, chunk_id, file_name, worker, local_index,
		       items, global_offset
		FROM chunks
		WHERE run_id = ?
		ORDER BY chunk_id
	`
	rows, err := q.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.RunID, &c.InputID, &c.ChunkID, &c.FileName,
			&c.Worker, &c.LocalIndex, &c.Items, &c.GlobalOffset); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunks(ctx context.Context, runID string) ([]*Chunk, error) {
	return s.listChunksWithQuerier(ctx, s.querier(), runID)
}

// Status operations

// getStatusWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, runID string) (*RunStatus, error) {
	run, err := s.getRunWithQuerier(ctx, q, runID)
	if err != nil {
		return nil, err
	}

	status := &RunStatus{Run: run}

	err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM inputs WHERE run_id = ?", runID).Scan(&status.InputsCount)
	if err != nil {
		return nil, err
	}

	err = q.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(items), 0) FROM chunks WHERE run_id = ?",
		runID).Scan(&status.ChunksCount, &status.ChunkItems)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		err = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		if err == nil {
			status.DBSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		ChunksConsistent: run.State != RunComplete ||
			(status.ChunksCount == run.TotalChunks && status.ChunkItems == run.TotalItems),
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, runID string) (*RunStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), runID)
}

// Transaction wrappers

func (t *sqliteTx) CreateRun(ctx context.Context, run *Run) error {
	return t.storage.createRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) FinishRun(ctx context.Context, run *Run) error {
	return t.storage.finishRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) GetRun(ctx context.Context, id string) (*Run, error) {
	return t.storage.getRunWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) GetLatestRun(ctx context.Context, indexPath string) (*Run, error) {
	return t.storage.getLatestRunWithQuerier(ctx, t.querier(), indexPath)
}

func (t *sqliteTx) InsertInput(ctx context.Context, input *Input) error {
	return t.storage.insertInputWithQuerier(ctx, t.querier(), input)
}

func (t *sqliteTx) ListInputs(ctx context.Context, runID string) ([]*Input, error) {
	return t.storage.listInputsWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return t.storage.insertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) ListChunks(ctx context.Context, runID string) ([]*Chunk, error) {
	return t.storage.listChunksWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) GetStatus(ctx context.Context, runID string) (*RunStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
