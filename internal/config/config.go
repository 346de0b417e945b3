// Package config provides the configuration schema, loader, hot-reload watcher
// and provider registry for the phonoscore service.
package config

import (
	"fmt"
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its [slog.Level]. Unknown and empty values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultLanguage        = "en-us"
	DefaultSilenceTopDB    = 22.0
	DefaultMaxUploadBytes  = 32 << 20
	DefaultShutdownTimeout = 15 * time.Second
)

// Config is the root configuration structure, typically loaded from YAML with
// [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP API (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// MaxUploadBytes caps the multipart body of an analysis request.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// ShutdownTimeout bounds the graceful drain of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProvidersConfig selects the backend for each external collaborator. Names
// are resolved through a [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`

	// STTFallback lists transcription backends tried in order when STT fails
	// or its circuit breaker is open.
	STTFallback []ProviderEntry `yaml:"stt_fallback"`

	G2P ProviderEntry `yaml:"g2p"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "whisper", "espeak").
	Name string `yaml:"name"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AnalysisConfig tunes the scoring pipeline.
type AnalysisConfig struct {
	// Language is the phonemizer voice, also passed to transcribers that
	// accept a language hint.
	Language string `yaml:"language"`

	// SilenceTopDB is the threshold in decibels below the clip peak under
	// which a frame counts as silence.
	SilenceTopDB float64 `yaml:"silence_top_db"`

	// MaxConcurrent bounds in-flight analyses. Zero means unbounded.
	MaxConcurrent int `yaml:"max_concurrent"`

	// ScratchDir receives per-request upload files. Empty means os.TempDir.
	ScratchDir string `yaml:"scratch_dir"`
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Providers.G2P.Name == "" {
		c.Providers.G2P.Name = "espeak"
	}
	if c.Providers.VAD.Name == "" {
		c.Providers.VAD.Name = "energy"
	}
	if c.Analysis.Language == "" {
		c.Analysis.Language = DefaultLanguage
	}
	if c.Analysis.SilenceTopDB == 0 {
		c.Analysis.SilenceTopDB = DefaultSilenceTopDB
	}
}

// StringOption returns the string option key, or def when unset.
func (e ProviderEntry) StringOption(key, def string) (string, error) {
	v, ok := e.Options[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("config: %s option %q must be a string, got %T", e.Name, key, v)
	}
	return s, nil
}

// IntOption returns the integer option key, or def when unset.
func (e ProviderEntry) IntOption(key string, def int) (int, error) {
	v, ok := e.Options[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("config: %s option %q must be an integer, got %v", e.Name, key, v)
}
