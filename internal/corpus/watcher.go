package corpus

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"cohortlens/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a snapshot when its corpus file changes on disk
type Watcher struct {
	mu sync.Mutex

	file     string
	snapshot *Snapshot
	logger   *errors.Logger

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}

	running bool
}

// NewWatcher creates a watcher for file that reloads snapshot after a quiet period
func NewWatcher(file string, snapshot *Snapshot, debounceDelay time.Duration, logger *errors.Logger) *Watcher {
	if debounceDelay <= 0 {
		debounceDelay = time.Second
	}
	return &Watcher{
		file:          file,
		snapshot:      snapshot,
		logger:        logger,
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
	}
}

// Start begins watching the corpus file
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("corpus watcher is already running")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so atomic replace (write temp + rename) is seen
	dir := filepath.Dir(w.file)
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w.fsWatcher = fsWatcher
	w.running = true
	go w.watchLoop()

	w.logger.Info("Corpus file watcher started", "file", w.file, "debounce_delay", w.debounceDelay.String())
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	close(w.stopChan)
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.running = false

	if err := w.fsWatcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	w.logger.Info("Corpus file watcher stopped")
	return nil
}

// IsRunning reports whether the watcher is active
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.isCorpusEvent(event) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.LogError(err, "Corpus file watcher error")

		case <-w.reloadChan:
			w.logger.Info("Corpus file changed, reloading snapshot", "file", w.file)
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			_, _ = w.snapshot.Reload(ctx)
			cancel()

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) isCorpusEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.file) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// scheduleReload resets the debounce timer
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, func() {
		select {
		case w.reloadChan <- struct{}{}:
		default:
		}
	})
}
