package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colmatch-service/internal/config"
	"colmatch-service/internal/fileio"
)

func writeCSV(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "stores.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,alias\nnew york mets,mets new york\nyankees,\n"), 0o644))
	return path
}

func TestRunMatchRemembersFile(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir)
	cfg := config.Config{StateFile: filepath.Join(dir, "state.toml")}

	f := matchFlags{file: path, headerRow: 1, source: "name", candidate: "alias",
		scorer: "token_sort_ratio", matchCol: "best match", scoreCol: "similarity score"}
	out, err := runMatch(context.Background(), cfg, &f, zerolog.Nop())
	require.NoError(t, err)

	col, err := out.Column("similarity score")
	require.NoError(t, err)
	assert.Equal(t, "100.00", col[0].String())
	assert.Equal(t, "mets new york", out.Rows[1][2].String())

	st, err := config.LoadState(cfg.StateFile)
	require.NoError(t, err)
	assert.Equal(t, path, st.LastOpened())

	// без --file берётся последний открытый
	f.file = ""
	again, err := runMatch(context.Background(), cfg, &f, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, out.Rows, again.Rows)

	require.NoError(t, writeTable(filepath.Join(dir, "out.csv"), out))
	fh, err := os.Open(filepath.Join(dir, "out.csv"))
	require.NoError(t, err)
	defer fh.Close()
	back, err := fileio.ReadAny(fh, "out.csv", fileio.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "alias", "best match", "similarity score"}, back.Columns)
}

func TestRunMatchErrors(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{StateFile: filepath.Join(dir, "state.toml")}

	_, err := runMatch(context.Background(), cfg, &matchFlags{source: "a", candidate: "b"}, zerolog.Nop())
	assert.ErrorContains(t, err, "no input file")

	_, err = runMatch(context.Background(), cfg, &matchFlags{file: writeCSV(t, dir), source: "a", candidate: "b", scorer: "nope"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown scorer")

	_, err = runMatch(context.Background(), cfg, &matchFlags{file: writeCSV(t, dir), source: "nam", candidate: "alias"}, zerolog.Nop())
	assert.ErrorContains(t, err, "source column")
}
