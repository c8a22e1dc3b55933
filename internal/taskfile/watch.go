package taskfile

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period Watch waits for before reporting a change.
const DefaultDebounce = 100 * time.Millisecond

// Watch calls onChange each time task files under root are created, written,
// removed or renamed. Bursts of events (editors often write a file several
// times per save) are collapsed into one call after debounce without further
// events. New subdirectories are watched as they appear. Watch blocks until
// ctx is cancelled and then returns nil.
func Watch(ctx context.Context, root string, debounce time.Duration, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, root); err != nil {
		return err
	}

	// Debounce timer starts stopped
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(watcher, root, event) {
				continue
			}
			slog.Debug("task file event", "path", event.Name, "op", event.Op.String())
			timer.Reset(debounce)

		case <-timer.C:
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("task file watcher error", "error", err)
		}
	}
}

// relevant reports whether event can affect the loaded tasks. A newly created
// directory is added to the watch list.
func relevant(watcher *fsnotify.Watcher, root string, event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if skipDir(filepath.Base(event.Name)) {
				return false
			}
			if err := addTree(watcher, event.Name); err != nil {
				slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return true
		}
	}
	return isTaskFile(filepath.Base(event.Name))
}

// addTree watches dir and every task directory below it.
func addTree(watcher *fsnotify.Watcher, dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("watch task directory %s: %w", dir, err)
	}
	return nil
}
