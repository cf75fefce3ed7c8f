package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
)

func executeCancelled(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := executeRoot(ctx)
	return buf.String(), err
}

func TestWatchCmd_RequiresDir(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "", "watch")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestWatchCmd_StopsOnCancel(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	dir := t.TempDir()

	out, err := executeCancelled(t, "watch", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "Watching "+dir)
}

func TestWatchCmd_Scan(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.pdf"), []byte("%PDF"), 0o644))
	ts.index.reports = []*driving.IndexReport{{Chunks: 5}}

	out, err := executeCancelled(t, "watch", "--scan", dir)

	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.pdf")}, ts.index.paths)
	assert.Contains(t, out, "a.pdf: 5 chunks")
}

func TestWatchCmd_MissingDir(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCancelled(t, "watch", filepath.Join(t.TempDir(), "missing"))

	assert.ErrorIs(t, err, os.ErrNotExist)
}
