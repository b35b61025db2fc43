package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// ChangeFunc receives the previous and the new configuration
type ChangeFunc func(old, updated *Config)

// Watcher reloads configuration files when they change. Only hot-reloadable
// fields (log level, breaker, liveness interval) are taken from a reload;
// everything else keeps its startup value until restart.
type Watcher struct {
	loader   *Loader
	logger   *zap.Logger
	debounce time.Duration

	mu        sync.RWMutex
	config    *Config
	callbacks []ChangeFunc

	fs       *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a watcher around initial. File watching only starts in
// development; elsewhere Reload can still be called explicitly.
func NewWatcher(loader *Loader, initial *Config, logger *zap.Logger) (*Watcher, error) {
	return newWatcher(loader, initial, logger, defaultDebounce)
}

func newWatcher(loader *Loader, initial *Config, logger *zap.Logger, debounce time.Duration) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		loader:   loader,
		logger:   logger,
		debounce: debounce,
		config:   initial,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	if !initial.IsDevelopment() {
		close(w.done)
		logger.Info("Configuration hot reloading disabled",
			zap.String("environment", string(initial.Environment)))
		return w, nil
	}

	if info, err := os.Stat(loader.Dir()); err != nil || !info.IsDir() {
		close(w.done)
		logger.Info("Configuration hot reloading disabled, no config directory",
			zap.String("dir", loader.Dir()))
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watching the directory catches editors that replace files on save
	if err := fsWatcher.Add(loader.Dir()); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config directory %s: %w", loader.Dir(), err)
	}
	w.fs = fsWatcher
	go w.watchLoop()

	logger.Info("Configuration hot reloading enabled",
		zap.String("dir", loader.Dir()),
		zap.String("environment", string(initial.Environment)))
	return w, nil
}

// Config returns the current configuration
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnChange registers a callback run after each effective reload
func (w *Watcher) OnChange(fn ChangeFunc) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Stop ends file watching and waits for the loop to exit
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	<-w.done
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	defer w.fs.Close()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 || !w.isWatchedFile(event.Name) {
				continue
			}
			w.logger.Debug("Configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()))

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				_ = w.Reload()
			})

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			w.logger.Info("Stopping configuration watcher")
			return
		}
	}
}

func (w *Watcher) isWatchedFile(path string) bool {
	base := filepath.Base(path)
	for _, name := range []string{"base", string(w.loader.Environment())} {
		if base == name+".yaml" || base == name+".yml" {
			return true
		}
	}
	return false
}

// Reload re-reads every source and applies the hot-reloadable fields. An
// invalid reload is logged and returned; the current configuration stays.
func (w *Watcher) Reload() error {
	loaded, err := w.loader.Load()
	if err != nil {
		w.logger.Error("Invalid configuration after reload", zap.Error(err))
		return err
	}

	w.mu.Lock()
	old := w.config
	if hotEqual(old, loaded) {
		w.mu.Unlock()
		w.logger.Debug("Configuration unchanged after reload")
		return nil
	}
	updated := old.Clone()
	updated.Log.Level = loaded.Log.Level
	updated.Breaker = loaded.Breaker
	updated.Connection.LivenessInterval = loaded.Connection.LivenessInterval
	updated.LoadedFrom = loaded.LoadedFrom
	w.config = updated
	callbacks := append([]ChangeFunc(nil), w.callbacks...)
	w.mu.Unlock()

	w.logChanges(old, updated)
	for i, cb := range callbacks {
		w.notify(i, cb, old, updated)
	}

	w.logger.Info("Configuration reloaded",
		zap.Int("callbacksNotified", len(callbacks)))
	return nil
}

func (w *Watcher) notify(idx int, cb ChangeFunc, old, updated *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Configuration callback panicked",
				zap.Int("callbackIndex", idx),
				zap.Any("panic", r))
		}
	}()
	cb(old, updated)
}

func hotEqual(a, b *Config) bool {
	return a.Log.Level == b.Log.Level &&
		a.Breaker == b.Breaker &&
		a.Connection.LivenessInterval == b.Connection.LivenessInterval
}

func (w *Watcher) logChanges(old, updated *Config) {
	changes := make([]string, 0, 3)
	if old.Log.Level != updated.Log.Level {
		changes = append(changes, fmt.Sprintf("log.level: %s -> %s", old.Log.Level, updated.Log.Level))
	}
	if old.Breaker != updated.Breaker {
		changes = append(changes, fmt.Sprintf("breaker: %+v -> %+v", old.Breaker, updated.Breaker))
	}
	if old.Connection.LivenessInterval != updated.Connection.LivenessInterval {
		changes = append(changes, fmt.Sprintf("connection.livenessInterval: %s -> %s",
			old.Connection.LivenessInterval, updated.Connection.LivenessInterval))
	}
	w.logger.Info("Configuration changes detected", zap.Strings("changes", changes))
}
