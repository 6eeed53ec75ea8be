package preset

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ChangeFunc is called with the name of a preset whose file changed.
type ChangeFunc func(name string)

// Watcher watches the preset directory and invalidates cached mappings
// when preset files are written, created, renamed or removed.
type Watcher struct {
	manager *Manager
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	mu        sync.RWMutex
	listeners []ChangeFunc

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher starts watching the manager's preset directory.
func NewWatcher(manager *Manager) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(manager.Dir()); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		manager: manager,
		watcher: fw,
		logger:  manager.logger,
		done:    make(chan struct{}),
	}

	go w.watchLoop()

	return w, nil
}

// OnChange registers a listener for preset changes.
func (w *Watcher) OnChange(fn ChangeFunc) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isPresetFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := presetName(filepath.Base(event.Name))
			w.manager.Invalidate(name)
			w.logger.Info().Str("preset", name).Str("op", event.Op.String()).Msg("Preset changed")

			w.mu.RLock()
			listeners := append([]ChangeFunc(nil), w.listeners...)
			w.mu.RUnlock()
			for _, fn := range listeners {
				fn(name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.handleError(err)
		}
	}
}

// handleError drops every cached mapping: after an overflow or watch error
// some change events may be lost.
func (w *Watcher) handleError(err error) {
	w.manager.InvalidateAll()
	w.logger.Warn().Err(err).Msg("Preset watcher error, cached presets dropped")
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
