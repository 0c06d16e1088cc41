package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compressed input suffixes that Stage knows how to inflate
const (
	SuffixZstd = ".zst"
	SuffixGzip = ".gz"
)

// IsCompressed reports whether path names a compressed input
func IsCompressed(path string) bool {
	return strings.HasSuffix(path, SuffixZstd) || strings.HasSuffix(path, SuffixGzip)
}

// Stage makes path randomly accessible. Plain files are returned unchanged.
// Compressed files are inflated into dir under their name minus the
// compression suffix; the returned cleanup removes the staged copy.
func Stage(path, dir string) (staged string, cleanup func() error, err error) {
	noop := func() error { return nil }
	if !IsCompressed(path) {
		return path, noop, nil
	}

	in, err := os.Open(path)
	if err != nil {
		return "", noop, fmt.Errorf("failed to open compressed input: %w", err)
	}
	defer func() { _ = in.Close() }()

	var r io.Reader
	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, SuffixZstd):
		dec, err := zstd.NewReader(in)
		if err != nil {
			return "", noop, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
		name = strings.TrimSuffix(name, SuffixZstd)
	default:
		gz, err := gzip.NewReader(in)
		if err != nil {
			return "", noop, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
		name = strings.TrimSuffix(name, SuffixGzip)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", noop, fmt.Errorf("failed to create staging directory: %w", err)
	}
	out, err := os.CreateTemp(dir, ".stage-*-"+name)
	if err != nil {
		return "", noop, fmt.Errorf("failed to create staging file: %w", err)
	}
	staged = out.Name()
	cleanup = func() error { return os.Remove(staged) }

	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		_ = cleanup()
		return "", noop, fmt.Errorf("failed to inflate %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = cleanup()
		return "", noop, fmt.Errorf("failed to close staging file: %w", err)
	}
	return staged, cleanup, nil
}

// DatasetName returns the stem and extension used to name chunk files for
// an input. Compression suffixes are ignored, so "wiki.jsonl.zst" yields
// ("wiki", ".jsonl").
func DatasetName(path string) (stem, ext string) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, SuffixZstd)
	base = strings.TrimSuffix(base, SuffixGzip)
	ext = filepath.Ext(base)
	return strings.TrimSuffix(base, ext), ext
}
