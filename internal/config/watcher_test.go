package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/phonoscore/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
providers:
  stt:
    name: whisper
`

const watcherUpdatedYAML = `
server:
  log_level: debug
providers:
  stt:
    name: whisper
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// changeRecorder collects watcher callbacks.
type changeRecorder struct {
	mu    sync.Mutex
	pairs [][2]*config.Config
	ch    chan struct{}
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{ch: make(chan struct{}, 8)}
}

func (r *changeRecorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	r.pairs = append(r.pairs, [2]*config.Config{old, new})
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairs)
}

func (r *changeRecorder) wait(t *testing.T) [2]*config.Config {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(3 * time.Second):
		t.Fatal("callback was not invoked within timeout")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pairs[len(r.pairs)-1]
}

func startWatcher(t *testing.T, content string, onChange func(old, new *config.Config)) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, content)
	w, err := config.NewWatcher(path, onChange, config.WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _ := startWatcher(t, watcherValidYAML, nil)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_DetectsWrite(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	w, path := startWatcher(t, watcherValidYAML, rec.onChange)

	writeFile(t, path, watcherUpdatedYAML)
	pair := rec.wait(t)

	if pair[0].Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q, want info", pair[0].Server.LogLevel)
	}
	if pair[1].Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level = %q, want debug", pair[1].Server.LogLevel)
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current() log_level = %q, want debug", got)
	}
}

func TestWatcher_DetectsAtomicRename(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	_, path := startWatcher(t, watcherValidYAML, rec.onChange)

	tmp := filepath.Join(filepath.Dir(path), ".config.yaml.swp")
	writeFile(t, tmp, watcherUpdatedYAML)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if pair := rec.wait(t); pair[1].Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level = %q, want debug", pair[1].Server.LogLevel)
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	w, path := startWatcher(t, watcherValidYAML, rec.onChange)

	writeFile(t, path, watcherInvalidYAML)
	time.Sleep(300 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("callback called %d times for invalid config", n)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() log_level = %q, want info", got)
	}

	// A later valid write is still picked up.
	writeFile(t, path, watcherUpdatedYAML)
	rec.wait(t)
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	_, path := startWatcher(t, watcherValidYAML, rec.onChange)

	writeFile(t, filepath.Join(filepath.Dir(path), "other.yaml"), watcherUpdatedYAML)
	time.Sleep(300 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("callback called %d times for unrelated file", n)
	}
}

func TestWatcher_SameContentNoCallback(t *testing.T) {
	t.Parallel()
	rec := newChangeRecorder()
	_, path := startWatcher(t, watcherValidYAML, rec.onChange)

	writeFile(t, path, watcherValidYAML)
	time.Sleep(300 * time.Millisecond)

	if n := rec.count(); n != 0 {
		t.Errorf("callback called %d times for identical content", n)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	w, _ := startWatcher(t, watcherValidYAML, nil)
	w.Stop()
	w.Stop()
}
