package filesystem

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corpora-dev/corpora/internal/logger"
)

// DefaultDebounce is how long the watcher waits after the last event
// before signalling a change. Editors tend to fire several events per save.
const DefaultDebounce = 500 * time.Millisecond

// Watch observes the loader's tree and sends a signal on the returned
// channel whenever eligible files change, created directories included.
// Events are debounced; the channel delivers at most one signal per quiet
// period. Both channels close when ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, debounce time.Duration) (<-chan struct{}, <-chan error, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("filesystem: creating watcher: %w", err)
	}

	if err := addRecursive(watcher, l.root); err != nil {
		watcher.Close()
		return nil, nil, err
	}

	changed := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		defer close(changed)
		defer close(errCh)
		defer watcher.Close()

		var timer *time.Timer
		var timerCh <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !l.relevant(event) {
					continue
				}
				// New directories need their own watch.
				if event.Op.Has(fsnotify.Create) {
					if err := addRecursive(watcher, event.Name); err != nil {
						logger.Debug("Watch add %s: %v", event.Name, err)
					}
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					timerCh = timer.C
				} else {
					timer.Reset(debounce)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				errCh <- fmt.Errorf("watching %s: %w", l.root, err)
				return

			case <-timerCh:
				timer = nil
				timerCh = nil
				select {
				case changed <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return changed, errCh, nil
}

// relevant reports whether a watch event concerns a file this loader
// would ingest (or forget).
func (l *Loader) relevant(event fsnotify.Event) bool {
	rel, err := filepath.Rel(l.root, event.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, part := range strings.Split(rel, "/") {
		if skipDir(part) {
			return false
		}
	}
	// Deletions and renames cannot be stat'ed; let the re-ingest sort
	// them out.
	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		return true
	}
	if isBinaryExtension(rel) {
		return false
	}
	return matchesPatterns(rel, l.patterns) || isDir(event.Name)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// addRecursive watches dir and every directory below it, skipping the
// subtrees the loader never reads.
func addRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Races with deletions are expected while watching.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDir(d.Name()) && path != dir {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
