package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// warns about names outside this list since a caller may register its own.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "openai", "deepgram"},
	"g2p": {"espeak"},
	"vad": {"energy"},
}

// Load reads, defaults and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for coherence and returns every problem found joined
// into one error.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	seen := map[string]string{sttKey(cfg.Providers.STT): "providers.stt"}
	for i, fb := range cfg.Providers.STTFallback {
		field := fmt.Sprintf("providers.stt_fallback[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", field))
			continue
		}
		key := sttKey(fb)
		if prev, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("%s duplicates %s", field, prev))
		}
		seen[key] = field
		validateProviderName("stt", fb.Name)
	}
	validateProviderName("g2p", cfg.Providers.G2P.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	if cfg.Analysis.SilenceTopDB < 0 {
		errs = append(errs, fmt.Errorf("analysis.silence_top_db %.1f must be positive", cfg.Analysis.SilenceTopDB))
	}
	if cfg.Analysis.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_concurrent %d must not be negative", cfg.Analysis.MaxConcurrent))
	}
	if dir := cfg.Analysis.ScratchDir; dir != "" {
		if fi, err := os.Stat(dir); err != nil {
			errs = append(errs, fmt.Errorf("analysis.scratch_dir: %w", err))
		} else if !fi.IsDir() {
			errs = append(errs, fmt.Errorf("analysis.scratch_dir %q is not a directory", dir))
		}
	}

	return errors.Join(errs...)
}

func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known := ValidProviderNames[kind]
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, expecting a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// sttKey identifies an STT entry for duplicate detection.
func sttKey(e ProviderEntry) string {
	return e.Name + "|" + e.Model + "|" + e.BaseURL
}
