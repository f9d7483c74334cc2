package memory

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"codeforge/internal/logging"
)

// Watcher invalidates memory hashes and embeddings when workspace files
// change outside the engine (an editor, git, a build step). Only the
// workspace root directory is watched; changes in subdirectories are not
// seen.
type Watcher struct {
	mem     *Memory
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Watch starts a workspace watcher. Close releases it.
func (m *Memory) Watch() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(m.workspace); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{mem: m, watcher: fw, done: make(chan struct{})}
	go w.loop()
	logging.Memory("watching workspace %s", m.workspace)
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := filepath.Rel(w.mem.workspace, ev.Name)
			if err != nil || strings.HasPrefix(rel, ".") {
				continue
			}
			logging.MemoryDebug("external change: %s (%s)", rel, ev.Op)
			w.mem.Invalidate(rel)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
