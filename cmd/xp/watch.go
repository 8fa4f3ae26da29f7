package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Comcast/experiences/util"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports changes to one file.
type Watcher struct {
	// Changes gets a value after each (debounced) change.
	// Changes that arrive before the last one is received are
	// merged.
	Changes chan struct{}

	// Debounce is the quiet period before a change is reported.
	Debounce time.Duration

	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	stopCh  chan struct{}
}

// NewWatcher starts watching the file.  The file's directory is also
// watched so that editors that save by renaming still trigger
// changes.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	logger = util.OrNop(logger)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
	}

	w := &Watcher{
		Changes:  make(chan struct{}, 1),
		Debounce: 100 * time.Millisecond,
		path:     path,
		watcher:  watcher,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	go w.watchLoop()

	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) notify() {
	w.logger.Info("changed", zap.String("path", w.path))
	select {
	case w.Changes <- struct{}{}:
	default:
	}
}

func (w *Watcher) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.Debounce, w.notify)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher", zap.Error(err))
		}
	}
}
