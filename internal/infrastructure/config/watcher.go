package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// Logger is the logging surface used by the Watcher.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Watcher reloads the configuration file when it changes on disk.
//
// The directory is watched rather than the file so that atomic
// rename-over-write saves are observed. A reload that fails to parse or
// validate is logged and discarded; the running configuration is kept.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Config)
	logger   Logger

	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for path. onChange receives every
// successfully validated reload.
func NewWatcher(path string, onChange func(*Config), logger Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher: path is required")
	}
	if onChange == nil {
		return nil, fmt.Errorf("config watcher: onChange callback is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsw,
		path:     path,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the configuration file.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config watcher: watching %s: %w", filepath.Dir(w.path), err)
	}
	w.running = true

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	close(w.done)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	name := filepath.Base(w.path)
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				pending = time.After(reloadDebounce)
			}

		case <-pending:
			pending = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logWarn("config watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// reload loads and validates the file, handing the result to onChange.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logWarn("config reload rejected, keeping running configuration",
			"path", w.path,
			"error", err,
		)
		return
	}
	if w.logger != nil {
		w.logger.Info("configuration reloaded", "path", w.path)
	}
	w.onChange(cfg)
}

func (w *Watcher) logWarn(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}
