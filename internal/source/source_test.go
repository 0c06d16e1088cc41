package source

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestOpen_LineIndex(t *testing.T) {
	tests := []struct {
		name    string
		content string
		lines   []string
	}{
		{name: "empty file", content: "", lines: nil},
		{name: "single line no newline", content: `{"text":"a"}`, lines: []string{`{"text":"a"}`}},
		{name: "trailing newline", content: "a\nb\n", lines: []string{"a", "b"}},
		{name: "no trailing newline", content: "a\nb", lines: []string{"a", "b"}},
		{name: "blank lines kept", content: "a\n\nc\n", lines: []string{"a", "", "c"}},
		{name: "crlf", content: "a\r\nb\r\n", lines: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "in.jsonl", tt.content)
			src, err := Open(path)
			require.NoError(t, err)
			defer src.Close()

			require.Equal(t, len(tt.lines), src.Lines())
			for i, want := range tt.lines {
				got, err := src.Line(i)
				require.NoError(t, err)
				assert.Equal(t, want, string(got))
			}

			_, err = src.Line(len(tt.lines))
			assert.ErrorIs(t, err, ErrLineOutOfRange)
		})
	}
}

func TestLineSource_Record(t *testing.T) {
	content := `{"text":"hello world","meta":1}
{"text":""}

{"other":"x"}
{"text":5}
not json
`
	path := writeFile(t, t.TempDir(), "in.jsonl", content)
	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	rec, err := src.Record(0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", rec.Text)
	assert.Equal(t, 0, rec.Line)

	rec, err = src.Record(1)
	require.NoError(t, err)
	assert.Equal(t, "", rec.Text)

	rec, err = src.Record(2)
	require.NoError(t, err, "blank lines decode as empty records")
	assert.Equal(t, "", rec.Text)

	_, err = src.Record(3)
	assert.ErrorIs(t, err, ErrMissingText)

	_, err = src.Record(4)
	assert.Error(t, err)

	_, err = src.Record(5)
	assert.Error(t, err)
}

func TestLineSource_Close(t *testing.T) {
	path := writeFile(t, t.TempDir(), "in.jsonl", "a\n")
	src, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close(), "close is idempotent")

	_, err = src.Line(0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCountLines(t *testing.T) {
	path := writeFile(t, t.TempDir(), "in.jsonl", "1\n2\n3\n")
	n, err := CountLines(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = CountLines(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestCache_EvictsOldest(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jsonl", "a\n")
	b := writeFile(t, dir, "b.jsonl", "b\nb\n")

	c := NewCache(1)
	defer c.Close()

	srcA, err := c.Get(a)
	require.NoError(t, err)
	again, err := c.Get(a)
	require.NoError(t, err)
	assert.Same(t, srcA, again, "hit returns the cached source")

	srcB, err := c.Get(b)
	require.NoError(t, err)
	assert.Equal(t, 2, srcB.Lines())
	assert.Equal(t, 1, c.Len())

	_, err = srcA.Line(0)
	assert.ErrorIs(t, err, ErrClosed, "evicted source is closed")

	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Len())
	_, err = srcB.Line(0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStage(t *testing.T) {
	dir := t.TempDir()
	content := "{\"text\":\"a\"}\n{\"text\":\"b\"}\n"

	t.Run("plain file is untouched", func(t *testing.T) {
		path := writeFile(t, dir, "plain.jsonl", content)
		staged, cleanup, err := Stage(path, dir)
		require.NoError(t, err)
		assert.Equal(t, path, staged)
		require.NoError(t, cleanup())
		assert.FileExists(t, path)
	})

	t.Run("zstd", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = enc.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, enc.Close())
		path := writeFile(t, dir, "wiki.jsonl.zst", buf.String())

		staged, cleanup, err := Stage(path, filepath.Join(dir, "stage"))
		require.NoError(t, err)
		data, err := os.ReadFile(staged)
		require.NoError(t, err)
		assert.Equal(t, content, string(data))

		require.NoError(t, cleanup())
		assert.NoFileExists(t, staged)
	})

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, err := gz.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, gz.Close())
		path := writeFile(t, dir, "web.jsonl.gz", buf.String())

		staged, cleanup, err := Stage(path, dir)
		require.NoError(t, err)
		defer cleanup()
		n, err := CountLines(staged)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("corrupt input", func(t *testing.T) {
		path := writeFile(t, dir, "bad.jsonl.gz", "not gzip")
		_, _, err := Stage(path, dir)
		assert.Error(t, err)
	})
}

func TestDatasetName(t *testing.T) {
	tests := []struct {
		path, stem, ext string
	}{
		{"data/wiki.jsonl", "wiki", ".jsonl"},
		{"data/wiki.jsonl.zst", "wiki", ".jsonl"},
		{"pile_00.json.gz", "pile_00", ".json"},
		{"noext", "noext", ""},
	}
	for _, tt := range tests {
		stem, ext := DatasetName(tt.path)
		assert.Equal(t, tt.stem, stem, tt.path)
		assert.Equal(t, tt.ext, ext, tt.path)
	}
}
