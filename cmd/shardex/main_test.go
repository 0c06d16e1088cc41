package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default so that commands can be
// executed more than once in a test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_ShardVerifyLocate(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "books.jsonl")
	lines := []string{`{"text":"one two three"}`, `{"text":""}`, `{"text":"four five"}`, `{"text":"six"}`}
	require.NoError(t, os.WriteFile(in, []byte(strings.Join(lines, "\n")+"\n"), 0644))

	outDir := filepath.Join(dir, "out")
	catalog := filepath.Join(dir, "catalog.db")
	indexPath := filepath.Join(outDir, "index.jsonl")

	out, err := execute(t, "shard",
		"--catalog", catalog,
		"-i", in,
		"-o", outDir,
		"--max-items", "4",
		"-w", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Records:  3 (1 empty skipped)")
	assert.Contains(t, out, "Items:    9")

	out, err = execute(t, "verify", indexPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "OK: 3 records")

	out, err = execute(t, "locate", indexPath, "1", "--units")
	require.NoError(t, err, out)
	var loc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &loc))
	assert.Equal(t, float64(4), loc["global_offset"])
	assert.Equal(t, float64(3), loc["units"])
	assert.Equal(t, []interface{}{"<|endoftext|>", "four", "five"}, loc["content"])

	out, err = execute(t, "status", "--catalog", catalog, indexPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "(complete)")
	assert.Contains(t, out, "books.jsonl")

	_, err = execute(t, "locate", indexPath, "3")
	assert.Error(t, err)

	_, err = execute(t, "locate", indexPath, "x")
	assert.Error(t, err)
}

func TestCLI_ShardWithoutInputs(t *testing.T) {
	_, err := execute(t, "shard", "--no-catalog", "-o", t.TempDir())
	assert.Error(t, err)
}

func TestCLI_Version(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "shardex dev")
	assert.Contains(t, out, "SQLite Driver:")
}

func TestCLI_HelpDescribesWorkerGuarantee(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "same units for any worker count")
	// Chunk boundaries depend on the worker count, so the index itself may differ
	assert.NotContains(t, out, "index is identical")
}
