package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage defines the interface for recording sharding runs and their outputs
type Storage interface {
	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	GetLatestRun(ctx context.Context, indexPath string) (*Run, error)

	// Input operations
	InsertInput(ctx context.Context, input *Input) error
	ListInputs(ctx context.Context, runID string) ([]*Input, error)

	// Chunk operations
	InsertChunk(ctx context.Context, chunk *Chunk) error
	ListChunks(ctx context.Context, runID string) ([]*Chunk, error)

	// Status operations
	GetStatus(ctx context.Context, runID string) (*RunStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// RunState is the lifecycle state of a run
type RunState string

const (
	RunRunning  RunState = "running"
	RunComplete RunState = "complete"
	RunFailed   RunState = "failed"
)

// Run is one invocation of the sharder
type Run struct {
	ID              string
	IndexPath       string
	OutputDir       string
	Tokenizer       string
	MaxItemsPerFile int
	Workers         int
	State           RunState
	Error           string
	TotalChunks     int
	TotalItems      int64
	TotalRecords    int64
	StartedAt       time.Time
	FinishedAt      time.Time
}

// NewRun creates a running Run with a fresh id
func NewRun(indexPath, outputDir string) *Run {
	return &Run{
		ID:        uuid.New().String(),
		IndexPath: indexPath,
		OutputDir: outputDir,
		State:     RunRunning,
		StartedAt: time.Now(),
	}
}

// Input is one input file of a run
type Input struct {
	ID        int64
	RunID     string
	Position  int // order within the run
	Path      string
	Dataset   string
	SizeBytes int64
	Lines     int
	Records   int
	Skipped   int
	Items     int64
}

// Chunk is one chunk file written by a run
type Chunk struct {
	ID           int64
	RunID        string
	InputID      int64
	ChunkID      int // 1-based, as stored in the index
	FileName     string
	Worker       int
	LocalIndex   int
	Items        int64
	GlobalOffset int64
}

// RunStatus summarizes a run
type RunStatus struct {
	Run         *Run
	InputsCount int
	ChunksCount int
	ChunkItems  int64
	DBSizeMB    float64
	Health      HealthStatus
}

// HealthStatus represents the health of the catalog
type HealthStatus struct {
	DatabaseAccessible bool
	ChunksConsistent   bool // sum of chunk items matches the run total
}
