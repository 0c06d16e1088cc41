package types

import "fmt"

// LineRange is a half-open range [Start, End) of 0-based line numbers
type LineRange struct {
	Start int
	End   int
}

// Len returns the number of lines in the range
func (r LineRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether line falls inside the range
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line < r.End
}

func (r LineRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// LocalResult is one worker's output. All offsets and chunk indexes are
// relative to the worker's own chunk sequence.
type LocalResult struct {
	WorkerID int
	Range    LineRange

	// One entry per chunk produced by this worker
	FileNames     []string
	ItemsPerChunk []int

	// One entry per non-empty record, parallel slices
	RecordStarts []int // offset within the record's chunk
	RecordChunks []int // worker-local chunk index

	TotalItems int64
	Lines      int // lines read
	Skipped    int // empty records skipped
}

// NumChunks returns the number of chunks this worker produced
func (r *LocalResult) NumChunks() int {
	return len(r.FileNames)
}

// NumRecords returns the number of indexed records
func (r *LocalResult) NumRecords() int {
	return len(r.RecordStarts)
}

// Validate checks the internal consistency of a worker result before merge
func (r *LocalResult) Validate() error {
	if len(r.FileNames) != len(r.ItemsPerChunk) {
		return fmt.Errorf("worker %d: %d file names for %d chunk counts",
			r.WorkerID, len(r.FileNames), len(r.ItemsPerChunk))
	}
	if len(r.RecordStarts) != len(r.RecordChunks) {
		return fmt.Errorf("worker %d: %d record starts for %d record chunks",
			r.WorkerID, len(r.RecordStarts), len(r.RecordChunks))
	}
	var sum int64
	for i, n := range r.ItemsPerChunk {
		if n <= 0 {
			return fmt.Errorf("worker %d: chunk %d has %d items", r.WorkerID, i, n)
		}
		sum += int64(n)
	}
	if sum != r.TotalItems {
		return fmt.Errorf("worker %d: chunk counts sum to %d, total is %d",
			r.WorkerID, sum, r.TotalItems)
	}
	for i, c := range r.RecordChunks {
		if c < 0 || c >= len(r.ItemsPerChunk) {
			return fmt.Errorf("worker %d: record %d references chunk %d of %d",
				r.WorkerID, i, c, len(r.ItemsPerChunk))
		}
		if s := r.RecordStarts[i]; s < 0 || s >= r.ItemsPerChunk[c] {
			return fmt.Errorf("worker %d: record %d starts at %d outside chunk of %d items",
				r.WorkerID, i, s, r.ItemsPerChunk[c])
		}
	}
	return nil
}
