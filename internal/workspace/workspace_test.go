package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addRequest creates root/owner/token holding size bytes with the given age.
func addRequest(t *testing.T, root, owner, token string, size int, age time.Duration) string {
	t.Helper()

	dir := filepath.Join(root, owner, token)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), []byte(strings.Repeat("x", size)), 0o600))

	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(dir, mtime, mtime))
	return dir
}

func TestWorkspace_List(t *testing.T) {
	t.Parallel()

	t.Run("missing root is empty", func(t *testing.T) {
		t.Parallel()
		ws := New(filepath.Join(t.TempDir(), "nope"), nil)

		reqs, err := ws.List()
		require.NoError(t, err)
		assert.Empty(t, reqs)
	})

	t.Run("newest first with usage", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		addRequest(t, root, "1", "old", 10, 2*time.Hour)
		addRequest(t, root, "2", "new", 20, time.Minute)
		require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), nil, 0o600))

		ws := New(root, nil)
		reqs, err := ws.List()
		require.NoError(t, err)
		require.Len(t, reqs, 2)
		assert.Equal(t, "new", reqs[0].Token)
		assert.Equal(t, "2", reqs[0].Owner)
		assert.Equal(t, int64(20), reqs[0].Size)
		assert.Equal(t, 1, reqs[0].Files)
		assert.Equal(t, "old", reqs[1].Token)

		size, err := ws.Size()
		require.NoError(t, err)
		assert.Equal(t, int64(30), size)
	})
}

func TestWorkspace_Prune(t *testing.T) {
	t.Parallel()

	t.Run("empty workspace", func(t *testing.T) {
		t.Parallel()
		ws := New(t.TempDir(), nil)

		result, err := ws.Prune(context.Background(), PruneOptions{MaxAge: time.Hour})
		require.NoError(t, err)
		assert.Equal(t, PruneResult{}, result)
	})

	t.Run("removes by age", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		old := addRequest(t, root, "1", "a", 10, 3*time.Hour)
		fresh := addRequest(t, root, "2", "b", 10, time.Minute)

		ws := New(root, nil)
		result, err := ws.Prune(context.Background(), PruneOptions{MaxAge: time.Hour})
		require.NoError(t, err)

		assert.Equal(t, 1, result.RequestsRemoved)
		assert.Equal(t, int64(10), result.BytesRemoved)
		assert.Equal(t, 1, result.RequestsRemaining)
		assert.NoDirExists(t, old)
		assert.NoDirExists(t, filepath.Dir(old), "empty owner directory is removed")
		assert.DirExists(t, fresh)
	})

	t.Run("removes oldest until under size", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		oldest := addRequest(t, root, "1", "a", 100, 3*time.Hour)
		middle := addRequest(t, root, "1", "b", 100, 2*time.Hour)
		newest := addRequest(t, root, "1", "c", 100, time.Hour)

		ws := New(root, nil)
		result, err := ws.Prune(context.Background(), PruneOptions{MaxSize: 150})
		require.NoError(t, err)

		assert.Equal(t, 2, result.RequestsRemoved)
		assert.Equal(t, int64(100), result.BytesRemaining)
		assert.NoDirExists(t, oldest)
		assert.NoDirExists(t, middle)
		assert.DirExists(t, newest)
		assert.DirExists(t, filepath.Dir(newest))
	})

	t.Run("no limits keeps everything", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		dir := addRequest(t, root, "1", "a", 10, 100*time.Hour)

		ws := New(root, nil)
		result, err := ws.Prune(context.Background(), PruneOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0, result.RequestsRemoved)
		assert.DirExists(t, dir)
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		addRequest(t, root, "1", "a", 10, 3*time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ws := New(root, nil)
		_, err := ws.Prune(ctx, PruneOptions{MaxAge: time.Hour})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestWorkspace_Remove(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a := addRequest(t, root, "1", "a", 1, 0)
	b := addRequest(t, root, "1", "b", 1, 0)
	ws := New(root, nil)

	require.NoError(t, ws.Remove(a))
	assert.NoDirExists(t, a)
	assert.DirExists(t, filepath.Dir(b))

	require.NoError(t, ws.Remove(b))
	assert.NoDirExists(t, filepath.Dir(b))

	require.Error(t, ws.Remove(root))
	require.Error(t, ws.Remove(filepath.Dir(root)))
}
