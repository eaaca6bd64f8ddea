package filestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWatcherMarksExternalChanges(t *testing.T) {
	store := newTestStore(t)
	w, err := NewWatcher(zaptest.NewLogger(t), store)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })

	store.TakeChanged()

	// Files with other extensions are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "notes.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.False(t, store.TakeChanged())

	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "edited.m"), []byte("y = 2;"), 0o644))
	assert.Eventually(t, store.TakeChanged, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(store.Root(), "edited.m")))
	assert.Eventually(t, store.TakeChanged, 2*time.Second, 20*time.Millisecond)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	w, err := NewWatcher(zaptest.NewLogger(t), store)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
