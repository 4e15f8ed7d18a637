// Package watcher reports changes to database files made by other processes.
package watcher

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"rowcache/internal/logging"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 250 * time.Millisecond

// WatchMultiple watches several database files and calls onChange once per
// changed file after the debounce period. Writes to a file's -wal and
// -journal companions count as writes to the file. onChange runs on the
// calling goroutine.
func WatchMultiple(ctx context.Context, paths []string, debounce time.Duration, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directories: SQLite and editors replace files.
	watchedDirs := make(map[string]bool)
	owner := make(map[string]string)

	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return err
			}
			watchedDirs[dir] = true
		}

		for _, suffix := range []string{"", "-wal", "-journal"} {
			owner[absPath+suffix] = absPath
		}
		logging.Info("watching for changes", "path", absPath)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			target, ok := owner[absPath]
			if !ok {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				logging.Debug("file event", "path", event.Name, "op", event.Op.String())
				pending[target] = true
				timer.Reset(debounce)
			}

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			clear(pending)
			sort.Strings(changed)
			for _, p := range changed {
				logging.Info("file changed", "path", p)
				onChange(p)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watcher error", "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
