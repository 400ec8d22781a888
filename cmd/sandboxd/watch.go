package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher recursively watches a directory tree for changes, debouncing
// bursts of events into a single batch: a single fsnotify.Watcher feeds
// a run loop that accumulates changed paths into a map and flushes
// them on a timer, rather than emitting one event per fsnotify callback
// (editors routinely fire several events per save).
type watcher struct {
	fs      *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer

	events chan []string
	done   chan struct{}
}

func newWatcher(debounce time.Duration) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		fs:       fsw,
		debounce: debounce,
		pending:  make(map[string]bool),
		events:   make(chan []string, 1),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Watch adds root and every non-ignored subdirectory beneath it. Unlike
// loadTree's shouldIgnoreDir, node_modules is skipped here too: its
// contents are part of the served tree but churn-free during a dev
// session, and watching it on a real dependency tree is wasteful.
func (w *watcher) Watch(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if shouldIgnoreWatchDir(path) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *watcher) Events() <-chan []string { return w.events }

func (w *watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}

func (w *watcher) run() {
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if shouldIgnorePath(ev.Name) {
				continue
			}
			w.mu.Lock()
			w.pending[ev.Name] = true
			if w.timer == nil {
				w.timer = time.AfterFunc(w.debounce, w.flush)
			} else {
				w.timer.Reset(w.debounce)
			}
			w.mu.Unlock()

			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !shouldIgnoreWatchDir(ev.Name) {
					w.fs.Add(ev.Name)
				}
			}
		case <-w.fs.Errors:
		case <-w.done:
			return
		}
	}
}

func (w *watcher) flush() {
	w.mu.Lock()
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		files = append(files, f)
	}
	w.pending = make(map[string]bool)
	w.timer = nil
	w.mu.Unlock()

	if len(files) == 0 {
		return
	}
	select {
	case w.events <- files:
	default:
	}
}

// ignoredDirNames are skipped everywhere: loadTree must still walk
// into node_modules, since the sandbox's own dependencies live there
// and need to end up in the Store.
var ignoredDirNames = map[string]bool{
	".git": true, "dist": true, "build": true, ".cache": true,
}

func shouldIgnoreDir(path string) bool {
	return ignoredDirNames[filepath.Base(path)]
}

func shouldIgnoreWatchDir(path string) bool {
	return shouldIgnoreDir(path) || filepath.Base(path) == "node_modules"
}

// shouldIgnorePath filters editor swap/backup files so a
// save-triggered swap-file churn doesn't cause a spurious rebuild.
func shouldIgnorePath(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".swo") || strings.HasSuffix(base, ".swn") {
		return true
	}
	if strings.HasSuffix(base, "~") {
		return true
	}
	if strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	if strings.HasPrefix(base, ".#") {
		return true
	}
	return false
}
