package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"

	"github.com/dshills/shardex/pkg/types"
)

var (
	// ErrLineOutOfRange is returned for a line number outside [0, Lines())
	ErrLineOutOfRange = errors.New("line out of range")
	// ErrMissingText is returned when a record has no "text" field
	ErrMissingText = errors.New(`record has no "text" field`)
	// ErrClosed is returned when reading from a closed source
	ErrClosed = errors.New("source is closed")
)

// LineSource gives random access to the lines of a file. The file is
// memory-mapped and a line-offset table is built once on open.
// A LineSource is safe for concurrent reads.
type LineSource struct {
	path    string
	size    int64
	data    mmap.MMap
	offsets []int64 // start of each line, plus one trailing end offset
	closed  atomic.Bool
}

// Open maps path and indexes its line boundaries
func Open(path string) (*LineSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}

	src := &LineSource{path: path, size: info.Size()}
	if info.Size() == 0 {
		// mmap rejects zero-length mappings
		src.offsets = []int64{0}
		return src, nil
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to map source: %w", err)
	}
	src.data = data
	src.offsets = indexLines(data)
	return src, nil
}

// indexLines returns the start offset of every line followed by the end
// offset of the last line. A trailing newline does not start a new line.
func indexLines(data []byte) []int64 {
	offsets := make([]int64, 0, len(data)/256+2)
	offsets = append(offsets, 0)
	pos := 0
	for {
		i := bytes.IndexByte(data[pos:], '\n')
		if i < 0 {
			break
		}
		pos += i + 1
		offsets = append(offsets, int64(pos))
	}
	if pos < len(data) {
		offsets = append(offsets, int64(len(data)))
	}
	return offsets
}

// Path returns the file path the source was opened from
func (s *LineSource) Path() string {
	return s.path
}

// Size returns the file size in bytes
func (s *LineSource) Size() int64 {
	return s.size
}

// Lines returns the total number of lines
func (s *LineSource) Lines() int {
	return len(s.offsets) - 1
}

// Line returns line i without its line terminator. The returned slice
// aliases the mapping and is only valid until Close.
func (s *LineSource) Line(i int) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if i < 0 || i >= s.Lines() {
		return nil, fmt.Errorf("%w: %d of %d", ErrLineOutOfRange, i, s.Lines())
	}
	line := s.data[s.offsets[i]:s.offsets[i+1]]
	line = bytes.TrimSuffix(line, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return line, nil
}

// Record decodes line i as a JSON object with a string "text" field
func (s *LineSource) Record(i int) (types.Record, error) {
	line, err := s.Line(i)
	if err != nil {
		return types.Record{}, err
	}
	text, err := DecodeText(line)
	if err != nil {
		return types.Record{}, err
	}
	return types.Record{Text: text, Line: i}, nil
}

// DecodeText extracts the "text" field of one JSON record line.
// Blank lines decode to an empty record.
func DecodeText(line []byte) (string, error) {
	if len(bytes.TrimSpace(line)) == 0 {
		return "", nil
	}
	var rec struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(line, &rec); err != nil {
		return "", fmt.Errorf("failed to decode record: %w", err)
	}
	if rec.Text == nil {
		return "", ErrMissingText
	}
	return *rec.Text, nil
}

// Close unmaps the file
func (s *LineSource) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.data == nil {
		return nil
	}
	return s.data.Unmap()
}

// CountLines returns the number of lines in path
func CountLines(path string) (int, error) {
	src, err := Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = src.Close() }()
	return src.Lines(), nil
}
