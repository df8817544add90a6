package watch

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

func start(t *testing.T, w *Watcher) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() error {
		cancel()
		return <-done
	}
}

func TestBurstTriggersOneChange(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := &Watcher{
		Path:     dir,
		Debounce: 100 * time.Millisecond,
		OnChange: func(context.Context) { calls.Add(1) },
	}
	stop := start(t, w)

	// fsnotify needs a moment to register the watch.
	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "00000-transaction.zip"), []byte{byte(i)}, 0o644))
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())

	require.NoError(t, os.Remove(filepath.Join(dir, "00000-transaction.zip")))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.NoError(t, stop())
}

func TestMissingPath(t *testing.T) {
	w := &Watcher{Path: filepath.Join(t.TempDir(), "nope"), OnChange: func(context.Context) {}}
	assert.ErrorContains(t, w.Run(context.Background()), "failed to watch")
}

func TestOnChangeRequired(t *testing.T) {
	assert.Error(t, (&Watcher{Path: t.TempDir()}).Run(context.Background()))
}

func TestQuietDirectoryNeverFires(t *testing.T) {
	var calls atomic.Int32
	stop := start(t, &Watcher{
		Path:     t.TempDir(),
		Debounce: 20 * time.Millisecond,
		OnChange: func(context.Context) { calls.Add(1) },
	})
	time.Sleep(100 * time.Millisecond)
	assert.NoError(t, stop())
	assert.Zero(t, calls.Load())
}
