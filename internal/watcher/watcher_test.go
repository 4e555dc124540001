package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor polls until cond returns true or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(20 * time.Millisecond)
	}

	t.Fatal("timed out waiting for condition")
}

// watched starts a watcher on a fresh directory and returns the directory
// and a counter of callback runs.
func watched(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "work"), 0o755))

	var calls atomic.Int32

	w := New(dir, 50*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- w.Watch(ctx, func(context.Context) { calls.Add(1) })
	}()

	// Give fsnotify a moment to set up watches.
	time.Sleep(50 * time.Millisecond)

	t.Cleanup(func() {
		cancel()

		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("watcher error: %v", err)
		}
	})

	return dir, &calls
}

func TestWatch_FileWriteTriggersCallback(t *testing.T) {
	dir, calls := watched(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "work", "todo.md"), []byte("buy milk"), 0o644))

	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 1 })
}

func TestWatch_BurstIsDebounced(t *testing.T) {
	dir, calls := watched(t)

	for i := range 5 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte{byte('a' + i)}, 0o644))
	}

	waitFor(t, 2*time.Second, func() bool { return calls.Load() >= 1 })
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatch_NewDirectoryIsWatched(t *testing.T) {
	dir, calls := watched(t)

	sub := filepath.Join(dir, "ideas")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 1 })

	require.NoError(t, os.WriteFile(filepath.Join(sub, "later.md"), []byte("x"), 0o644))
	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 2 })
}

func TestWatch_HiddenPathsIgnored(t *testing.T) {
	dir, calls := watched(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".draft.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "work", "todo.md.swp"), []byte("x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatch_RemoveTriggersCallback(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "gone.md")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	var calls atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = New(dir, 50*time.Millisecond, nil).Watch(ctx, func(context.Context) { calls.Add(1) })
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(f))

	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 1 })
}

func TestWatch_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "content")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := Watch(ctx, dir, func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestShouldIgnore(t *testing.T) {
	w := New("/notes", 0, nil)

	tests := []struct {
		path string
		want bool
	}{
		{"/notes/a.md", false},
		{"/notes/work/a.md", false},
		{"/notes/.git/HEAD", true},
		{"/notes/work/.hidden.md", true},
		{"/notes/a.md~", true},
		{"/notes/a.md.swp", true},
		{"/elsewhere/a.md", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, w.shouldIgnore(tt.path))
		})
	}
}
