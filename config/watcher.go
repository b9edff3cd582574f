package config

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nexxt-run/nexxt/nxerrors"
	"github.com/nexxt-run/nexxt/nxlog"
)

// ReloadCallback is invoked with the freshly reloaded Document whenever
// the watched configuration file changes on disk.
type ReloadCallback func(*Document) error

// Watcher watches one configuration file for changes and triggers
// debounced reload callbacks, backing the --gui flag's live-reload
// path.
type Watcher struct {
	path           string
	fsWatcher      *fsnotify.Watcher
	callbacks      []ReloadCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration

	ownWriteMu sync.Mutex
	ownWrite   bool
}

// NewWatcher creates a watcher on path. Call Start to begin watching.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nxerrors.Wrapf(err, "creating fsnotify watcher")
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, nxerrors.Wrapf(err, "watching config file %s", path)
	}
	return &Watcher{
		path:           path,
		fsWatcher:      fw,
		debouncePeriod: 500 * time.Millisecond,
	}, nil
}

// OnReload registers a callback invoked after every successful reload.
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// MarkOwnWrite tells the watcher to ignore the next filesystem event for
// this path, so a save triggered by this process's own Save call does
// not bounce back into a reload.
func (w *Watcher) MarkOwnWrite() {
	w.ownWriteMu.Lock()
	defer w.ownWriteMu.Unlock()
	w.ownWrite = true
}

func (w *Watcher) checkOwnWrite() bool {
	w.ownWriteMu.Lock()
	defer w.ownWriteMu.Unlock()
	if w.ownWrite {
		w.ownWrite = false
		return true
	}
	return false
}

// Start launches the watch loop in a background goroutine.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write != fsnotify.Write && event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			if isBackupFile(event.Name) {
				continue
			}
			if w.checkOwnWrite() {
				nxlog.Debugw("config watcher ignoring own write", "file", event.Name)
				continue
			}
			nxlog.Infow("config watcher detected change", "file", event.Name, "op", event.Op.String())
			w.scheduleReload()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			nxlog.Warnw("config watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		if err := w.reload(); err != nil {
			nxlog.Errorw("config reload failed", "error", err.Error())
		}
	})
}

func (w *Watcher) reload() error {
	doc, err := Load(w.path)
	if err != nil {
		return nxerrors.Wrapf(err, "reloading config %s", w.path)
	}
	nxlog.Infow("config reloaded", "path", w.path)

	w.mu.RLock()
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb(doc); err != nil {
			nxlog.Warnw("config reload callback error", "error", err.Error())
		}
	}
	return nil
}

// isBackupFile excludes the numbered backups SaveWithBackup writes from
// triggering a reload.
func isBackupFile(path string) bool {
	return strings.Contains(path, ".back1") ||
		strings.Contains(path, ".back2") ||
		strings.Contains(path, ".back3")
}
