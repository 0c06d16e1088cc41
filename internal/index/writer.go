package index

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dshills/shardex/pkg/types"
)

// Write persists g at path. The first line is the summary object; line k+2
// holds [chunk_id, local_offset] for record k, with chunk_id 1-based. The
// file is written to a temp name in the same directory, synced and renamed,
// so readers see either the previous index or the complete new one.
func Write(path string, g *types.GlobalIndex) (err error) {
	if err := g.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".index-*")
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if err = json.NewEncoder(bw).Encode(g); err != nil {
		return fmt.Errorf("failed to encode index summary: %w", err)
	}

	var line []byte
	for k, c := range g.RecordChunks {
		line = line[:0]
		line = append(line, '[')
		line = strconv.AppendInt(line, int64(c+1), 10)
		line = append(line, ',')
		line = strconv.AppendInt(line, g.LocalOffset(k), 10)
		line = append(line, ']', '\n')
		if _, err = bw.Write(line); err != nil {
			return fmt.Errorf("failed to write index: %w", err)
		}
	}

	if err = bw.Flush(); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync index: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move index into place: %w", err)
	}
	return nil
}

// Remove deletes a stale index at path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale index: %w", err)
	}
	return nil
}
