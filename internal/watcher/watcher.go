// Package watcher reloads the content baseline when markdown files change
// on disk.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the directory must stay quiet after an
// event before the change callback runs.
const DefaultDebounce = 250 * time.Millisecond

// Watcher monitors a content directory recursively and calls back once
// per burst of changes.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a watcher for dir. A non-positive debounce uses
// DefaultDebounce.
func New(dir string, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{dir: dir, debounce: debounce, logger: logger}
}

// Watch calls onChange after files under the directory change. It blocks
// until ctx is cancelled. The directory is created if missing.
func Watch(ctx context.Context, dir string, onChange func(context.Context)) error {
	return New(dir, DefaultDebounce, nil).Watch(ctx, onChange)
}

// Watch blocks until ctx is cancelled, calling onChange once the
// directory has been quiet for the debounce interval after an event.
func (w *Watcher) Watch(ctx context.Context, onChange func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating content dir: %w", err)
	}

	if err := w.addRecursive(watcher, w.dir); err != nil {
		return fmt.Errorf("watching content dir: %w", err)
	}

	w.logger.Info("content watcher started", slog.String("dir", w.dir))

	var last time.Time

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if w.shouldIgnore(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) {
				// Lstat so a symlink never pulls in a tree outside dir.
				info, err := os.Lstat(event.Name)
				if err == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
					_ = w.addRecursive(watcher, event.Name)
				}
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				_ = watcher.Remove(event.Name)
			}

			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}

			last = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			if last.IsZero() || time.Since(last) < w.debounce {
				continue
			}

			last = time.Time{}

			w.logger.Debug("content changed", slog.String("dir", w.dir))
			onChange(ctx)
		}
	}
}

// addRecursive adds root and every visible directory below it.
func (w *Watcher) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		return watcher.Add(p)
	})
}

// shouldIgnore reports whether a change at absPath cannot affect the
// tree: hidden entries, editor temp files and anything outside dir.
func (w *Watcher) shouldIgnore(absPath string) bool {
	rel, err := filepath.Rel(w.dir, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}

	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." {
			return true
		}
	}

	name := filepath.Base(absPath)

	return strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp")
}
