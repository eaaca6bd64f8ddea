package filestore

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher marks the store changed when source files under its root are
// created, modified, removed or renamed by anyone, so the engine can be
// told to drop cached definitions before the next run.
type Watcher struct {
	logger   *zap.Logger
	store    *Store
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher creates a watcher for store's root. Call Start to begin.
func NewWatcher(logger *zap.Logger, store *Store) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		logger:  logger,
		store:   store,
		watcher: w,
		done:    make(chan struct{}),
	}, nil
}

// Start ensures the root exists and begins watching it.
func (w *Watcher) Start() error {
	if err := w.store.fs.MkdirAll(w.store.root, DirPermission); err != nil {
		return fmt.Errorf("%w: creating managed root %s: %v", ErrIOFailure, w.store.root, err)
	}
	if err := w.watcher.Add(w.store.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.store.root, err)
	}

	w.wg.Add(1)
	go w.eventLoop()

	w.logger.Info("watching managed root", zap.String("path", w.store.root))
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		if closeErr := w.watcher.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close watcher: %w", closeErr)
		}
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Ext(event.Name) != w.store.ext {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.store.MarkChanged()
	w.logger.Debug("managed file changed",
		zap.String("path", event.Name),
		zap.String("op", event.Op.String()))
}
