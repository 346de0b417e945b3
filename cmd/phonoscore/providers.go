package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/phonoscore/internal/app"
	"github.com/MrWong99/phonoscore/internal/config"
	"github.com/MrWong99/phonoscore/internal/health"
	"github.com/MrWong99/phonoscore/internal/resilience"
	"github.com/MrWong99/phonoscore/pkg/provider/g2p"
	"github.com/MrWong99/phonoscore/pkg/provider/g2p/espeak"
	"github.com/MrWong99/phonoscore/pkg/provider/stt"
	"github.com/MrWong99/phonoscore/pkg/provider/stt/deepgram"
	oastt "github.com/MrWong99/phonoscore/pkg/provider/stt/openai"
	"github.com/MrWong99/phonoscore/pkg/provider/stt/whisper"
	"github.com/MrWong99/phonoscore/pkg/provider/vad"
	"github.com/MrWong99/phonoscore/pkg/provider/vad/energy"
)

// registerBuiltinProviders wires every built-in provider factory into reg.
// The names match config.ValidProviderNames.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		lang, err := entry.StringOption("language", "")
		if err != nil {
			return nil, err
		}
		if lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath, err := entry.StringOption("model_path", entry.Model)
		if err != nil {
			return nil, err
		}
		lang, err := entry.StringOption("language", "")
		if err != nil {
			return nil, err
		}
		var opts []whisper.NativeOption
		if lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		lang, err := entry.StringOption("language", "")
		if err != nil {
			return nil, err
		}
		if lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		retries, err := entry.IntOption("max_retries", -1)
		if err != nil {
			return nil, err
		}
		if retries >= 0 {
			opts = append(opts, oastt.WithMaxRetries(retries))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		lang, err := entry.StringOption("language", "")
		if err != nil {
			return nil, err
		}
		if lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── G2P ───────────────────────────────────────────────────────────────────

	reg.RegisterG2P("espeak", func(entry config.ProviderEntry) (g2p.Provider, error) {
		bin, err := entry.StringOption("binary", "")
		if err != nil {
			return nil, err
		}
		par, err := entry.IntOption("parallelism", 0)
		if err != nil {
			return nil, err
		}
		var opts []espeak.Option
		if bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		if par > 0 {
			opts = append(opts, espeak.WithParallelism(par))
		}
		return espeak.New(opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Detector, error) {
		frame, err := entry.IntOption("frame_length", 0)
		if err != nil {
			return nil, err
		}
		hop, err := entry.IntOption("hop_length", 0)
		if err != nil {
			return nil, err
		}
		var opts []energy.Option
		if frame > 0 {
			opts = append(opts, energy.WithFrameLength(frame))
		}
		if hop > 0 {
			opts = append(opts, energy.WithHopLength(hop))
		}
		return energy.New(opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg. Transcription is
// wrapped in a circuit-breaking failover chain when fallbacks are configured.
// The returned closers release native resources. On error every provider
// built so far is closed.
func buildProviders(cfg *config.Config, reg *config.Registry) (_ *app.Providers, _ []func() error, err error) {
	ps := &app.Providers{}
	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for _, c := range closers {
			if cerr := c(); cerr != nil {
				slog.Warn("close provider", "err", cerr)
			}
		}
	}()
	track := func(v any) {
		if c, ok := v.(io.Closer); ok {
			closers = append(closers, c.Close)
		}
	}

	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	track(primary)
	ps.Checkers = append(ps.Checkers, sttCheckers("stt", cfg.Providers.STT)...)
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)
	ps.STT = primary

	if len(cfg.Providers.STTFallback) > 0 {
		chain := resilience.NewTranscriber(cfg.Providers.STT.Name, primary, resilience.BreakerConfig{})
		for i, entry := range cfg.Providers.STTFallback {
			p, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
			}
			track(p)
			chain.AddFallback(entry.Name, p)
			ps.Checkers = append(ps.Checkers, sttCheckers(fmt.Sprintf("stt_fallback_%d", i), entry)...)
			slog.Info("provider created", "kind", "stt_fallback", "name", entry.Name)
		}
		ps.STT = chain
	}

	g, err := reg.CreateG2P(cfg.Providers.G2P)
	if err != nil {
		return nil, nil, fmt.Errorf("create g2p provider %q: %w", cfg.Providers.G2P.Name, err)
	}
	if ck, ok := g.(interface{ Check(context.Context) error }); ok {
		ps.Checkers = append(ps.Checkers, health.Checker{Name: "g2p", Check: ck.Check})
	}
	slog.Info("provider created", "kind", "g2p", "name", cfg.Providers.G2P.Name)
	ps.G2P = g

	d, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, nil, fmt.Errorf("create vad provider %q: %w", cfg.Providers.VAD.Name, err)
	}
	slog.Info("provider created", "kind", "vad", "name", cfg.Providers.VAD.Name)
	ps.VAD = d

	return ps, closers, nil
}

// sttCheckers returns a reachability probe for self-hosted whisper servers.
// Hosted APIs are not probed.
func sttCheckers(name string, entry config.ProviderEntry) []health.Checker {
	if entry.Name != "whisper" || entry.BaseURL == "" {
		return nil
	}
	return []health.Checker{{Name: name, Check: reachable(entry.BaseURL)}}
}

// reachable reports whether url answers HTTP at all. Any status code counts.
func reachable(url string) func(context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return errors.New("unreachable: " + err.Error())
		}
		_ = resp.Body.Close()
		return nil
	}
}
