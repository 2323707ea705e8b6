// Package watcher watches a directory tree and publishes change
// events to the progress broadcaster. Watches cover the root and
// every subdirectory; symlinks are never followed. Directories
// created while watching are picked up, removed ones are dropped.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/logging"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/progress"
)

// Watcher tracks a set of watched directories and forwards their
// events.
type Watcher struct {
	fsw    *fsnotify.Watcher
	events *progress.Broadcaster
	log    *logging.Logger

	mu     sync.RWMutex
	paths  map[string]bool
	closed bool
}

// New creates a watcher publishing to events.
func New(events *progress.Broadcaster) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:    fsw,
		events: events,
		log:    logging.Get("watcher"),
		paths:  make(map[string]bool),
	}, nil
}

// Watch starts watching root and all subdirectories beneath it.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Lstat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", absRoot)
	}

	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return w.addWatch(path)
		}
		return nil
	})
}

// Unwatch stops watching a path and everything beneath it.
func (w *Watcher) Unwatch(root string) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	for path := range w.paths {
		if path == absRoot || isSubPath(path, absRoot) {
			_ = w.fsw.Remove(path)
			delete(w.paths, path)
		}
	}
}

// Watched reports the number of directories currently watched.
func (w *Watcher) Watched() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.paths)
}

// Run consumes filesystem events until the context is cancelled or
// the watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "error", err)
		}
	}
}

// Close stops the watcher and releases its resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	return w.fsw.Close()
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.fsw.Add(path); err != nil {
		w.log.Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Create != 0:
		w.handleCreate(event.Name)
	case event.Op&fsnotify.Write != 0:
		w.handleWrite(event.Name)
	case event.Op&fsnotify.Remove != 0:
		w.dropWatches(event.Name)
		w.publish(progress.EventRemoved, event.Name, nil)
	case event.Op&fsnotify.Rename != 0:
		// The old name is gone; the new name arrives as a create.
		w.dropWatches(event.Name)
		w.publish(progress.EventRenamed, event.Name, nil)
	}
}

func (w *Watcher) handleCreate(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		// Gone again already.
		return
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return
	}

	if info.IsDir() {
		_ = w.addWatch(path)

		// Subdirectories created in the same burst predate the watch.
		_ = filepath.WalkDir(path, func(subpath string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			if d.IsDir() && subpath != path {
				_ = w.addWatch(subpath)
			}
			return nil
		})
	}

	w.publish(progress.EventCreated, path, info)
}

func (w *Watcher) handleWrite(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		// Directory writes are churn from entries changing beneath
		// them; the entries report themselves.
		return
	}
	w.publish(progress.EventModified, path, info)
}

// dropWatches removes the watch on a deleted path and any watches
// beneath it.
func (w *Watcher) dropWatches(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.paths[path] {
		_ = w.fsw.Remove(path)
		delete(w.paths, path)
	}
	for child := range w.paths {
		if isSubPath(child, path) {
			_ = w.fsw.Remove(child)
			delete(w.paths, child)
		}
	}
}

func (w *Watcher) publish(t progress.EventType, path string, info fs.FileInfo) {
	if w.events == nil {
		return
	}
	ev := progress.Event{Type: t, Path: path}
	if info != nil {
		ev.Size = info.Size()
		ev.ModTime = info.ModTime()
		ev.IsDir = info.IsDir()
	}
	w.events.Notify(ev)
}

// isSubPath reports whether path lies strictly under parent.
func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
