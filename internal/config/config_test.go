package config_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/phonoscore/internal/config"
	"github.com/MrWong99/phonoscore/pkg/provider/stt"
	sttmock "github.com/MrWong99/phonoscore/pkg/provider/stt/mock"
	"github.com/MrWong99/phonoscore/pkg/provider/vad"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  max_upload_bytes: 1048576
  shutdown_timeout: 5s

providers:
  stt:
    name: whisper
    base_url: http://localhost:8081
    model: base.en
  stt_fallback:
    - name: openai
      api_key: sk-test
    - name: deepgram
      api_key: dg-test
      model: nova-2
  g2p:
    name: espeak
    options:
      binary: /usr/bin/espeak-ng
      parallelism: 4
  vad:
    name: energy

analysis:
  language: en-gb
  silence_top_db: 30
  max_concurrent: 8
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown_timeout = %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Providers.STT.Name != "whisper" || cfg.Providers.STT.Model != "base.en" {
		t.Errorf("stt = %+v", cfg.Providers.STT)
	}
	if n := len(cfg.Providers.STTFallback); n != 2 {
		t.Fatalf("stt_fallback has %d entries, want 2", n)
	}
	if cfg.Providers.STTFallback[1].Model != "nova-2" {
		t.Errorf("stt_fallback[1].model = %q", cfg.Providers.STTFallback[1].Model)
	}
	if cfg.Analysis.Language != "en-gb" || cfg.Analysis.SilenceTopDB != 30 || cfg.Analysis.MaxConcurrent != 8 {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}

	bin, err := cfg.Providers.G2P.StringOption("binary", "espeak-ng")
	if err != nil || bin != "/usr/bin/espeak-ng" {
		t.Errorf("binary option = %q, %v", bin, err)
	}
	par, err := cfg.Providers.G2P.IntOption("parallelism", 1)
	if err != nil || par != 4 {
		t.Errorf("parallelism option = %d, %v", par, err)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  stt:\n    name: whisper\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxUploadBytes != config.DefaultMaxUploadBytes {
		t.Errorf("max_upload_bytes = %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Providers.G2P.Name != "espeak" || cfg.Providers.VAD.Name != "energy" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Analysis.Language != "en-us" {
		t.Errorf("language = %q", cfg.Analysis.Language)
	}
	if cfg.Analysis.SilenceTopDB != 22 {
		t.Errorf("silence_top_db = %v, want 22", cfg.Analysis.SilenceTopDB)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("providers:\n  stt:\n    name: whisper\n    voice: alloy\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *config.Config {
		cfg := &config.Config{}
		cfg.Providers.STT.Name = "whisper"
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"valid", func(*config.Config) {}, ""},
		{"bad log level", func(c *config.Config) { c.Server.LogLevel = "verbose" }, "server.log_level"},
		{"missing stt", func(c *config.Config) { c.Providers.STT.Name = "" }, "providers.stt.name is required"},
		{"unnamed fallback", func(c *config.Config) {
			c.Providers.STTFallback = []config.ProviderEntry{{Model: "whisper-1"}}
		}, "providers.stt_fallback[0].name is required"},
		{"duplicate fallback", func(c *config.Config) {
			c.Providers.STTFallback = []config.ProviderEntry{{Name: "whisper"}}
		}, "duplicates providers.stt"},
		{"duplicate fallback with model", func(c *config.Config) {
			c.Providers.STT.Model = "base.en"
			c.Providers.STTFallback = []config.ProviderEntry{{Name: "whisper", Model: "base.en"}}
		}, "stt_fallback[0] duplicates providers.stt"},
		{"repeated fallback", func(c *config.Config) {
			c.Providers.STTFallback = []config.ProviderEntry{
				{Name: "deepgram", APIKey: "k"},
				{Name: "deepgram", APIKey: "k"},
			}
		}, "stt_fallback[1] duplicates providers.stt_fallback[0]"},
		{"same backend other model", func(c *config.Config) {
			c.Providers.STTFallback = []config.ProviderEntry{{Name: "whisper", Model: "small.en"}}
		}, ""},
		{"negative top db", func(c *config.Config) { c.Analysis.SilenceTopDB = -3 }, "analysis.silence_top_db"},
		{"negative concurrency", func(c *config.Config) { c.Analysis.MaxConcurrent = -1 }, "analysis.max_concurrent"},
		{"missing scratch dir", func(c *config.Config) { c.Analysis.ScratchDir = "/nonexistent/phonoscore" }, "analysis.scratch_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Server.LogLevel = "loud"
	cfg.Analysis.MaxConcurrent = -2

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "providers.stt.name", "analysis.max_concurrent"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLogLevel_Level(t *testing.T) {
	t.Parallel()
	for in, want := range map[config.LogLevel]slog.Level{
		config.LogDebug: slog.LevelDebug,
		config.LogInfo:  slog.LevelInfo,
		config.LogWarn:  slog.LevelWarn,
		config.LogError: slog.LevelError,
		"":              slog.LevelInfo,
	} {
		if got := in.Level(); got != want {
			t.Errorf("LogLevel(%q).Level() = %v, want %v", in, got, want)
		}
	}
}

func TestProviderEntry_OptionTypeMismatch(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Name: "espeak", Options: map[string]any{
		"binary":      42,
		"parallelism": "four",
		"frames":      2.5,
	}}
	if _, err := e.StringOption("binary", ""); err == nil {
		t.Error("StringOption: expected type error")
	}
	if _, err := e.IntOption("parallelism", 0); err == nil {
		t.Error("IntOption: expected type error")
	}
	if _, err := e.IntOption("frames", 0); err == nil {
		t.Error("IntOption: expected error for fractional value")
	}
	if v, err := e.IntOption("missing", 7); err != nil || v != 7 {
		t.Errorf("IntOption default = %d, %v", v, err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	_, err := r.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v", err)
	}
	_, err = r.CreateG2P(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateG2P err = %v", err)
	}
	_, err = r.CreateVAD(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateVAD err = %v", err)
	}
}

func TestRegistry_Create(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	want := &sttmock.Provider{Result: stt.Transcript{Text: "hello"}}

	var gotEntry config.ProviderEntry
	r.RegisterSTT("mock", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return want, nil
	})

	p, err := r.CreateSTT(config.ProviderEntry{Name: "mock", Model: "tiny"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if gotEntry.Model != "tiny" {
		t.Errorf("factory got model %q", gotEntry.Model)
	}
	tr, _ := p.Transcribe(context.Background(), "clip.wav")
	if tr.Text != "hello" {
		t.Errorf("Text = %q", tr.Text)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()
	errBoom := errors.New("missing model file")
	r.RegisterVAD("broken", func(config.ProviderEntry) (vad.Detector, error) { return nil, errBoom })

	if _, err := r.CreateVAD(config.ProviderEntry{Name: "broken"}); !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want %v", err, errBoom)
	}
}
