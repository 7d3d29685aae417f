package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "packages.json")
	require.NoError(t, os.WriteFile(watched, []byte("[]"), 0o600))

	var changes atomic.Int32
	w, err := NewWatcher([]string{watched}, 100*time.Millisecond, func() { changes.Add(1) })
	require.NoError(t, err)
	w.Start(context.Background())
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o600))
	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, changes.Load())

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(watched, []byte("[ ]"), 0o600))
	}
	require.Eventually(t, func() bool { return changes.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), changes.Load())
}

func TestWatcherRejectsMissingDirectory(t *testing.T) {
	_, err := NewWatcher([]string{filepath.Join(t.TempDir(), "missing", "pkgindex.yaml")}, time.Second, func() {})
	require.Error(t, err)
}
