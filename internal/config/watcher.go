package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk and hands the old and
// new config to a callback. Invalid edits are logged and ignored; the last
// valid config stays current.
//
// The parent directory is watched rather than the file so that editors which
// save by renaming a temporary file over the original keep being observed.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(old, new *Config)

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
	stop sync.Once

	mu       sync.Mutex
	current  *Config
	lastHash [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits after the last file event
// before reloading. The default is 100ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher loads path and starts watching it. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	w := &Watcher{
		path:     abs,
		debounce: 100 * time.Millisecond,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, hash, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.lastHash = cfg, hash

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config: watch %q: %w", filepath.Dir(abs), err)
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops watching and waits for the event loop to exit. It is safe to
// call more than once.
func (w *Watcher) Stop() {
	w.stop.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) run() {
	defer w.wg.Done()

	timer := time.NewTimer(0)
	<-timer.C
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher: fsnotify error", "path", w.path, "err", err)
		case <-timer.C:
			w.reload()
		}
	}
}

// reload parses the file and invokes onChange when its content changed.
func (w *Watcher) reload() {
	cfg, hash, err := w.load()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.lastHash = cfg, hash
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func (w *Watcher) load() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}
