// Package app wires the scoring service together and owns its lifecycle.
//
// New builds the analyzer and the HTTP surface from a config and a set of
// providers, Run serves until the context ends, and Shutdown drains in-flight
// requests. Tests inject doubles through [Providers] and the functional
// options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/phonoscore/internal/api"
	"github.com/MrWong99/phonoscore/internal/assess"
	"github.com/MrWong99/phonoscore/internal/config"
	"github.com/MrWong99/phonoscore/internal/health"
	"github.com/MrWong99/phonoscore/internal/observe"
	"github.com/MrWong99/phonoscore/pkg/provider/g2p"
	"github.com/MrWong99/phonoscore/pkg/provider/stt"
	"github.com/MrWong99/phonoscore/pkg/provider/vad"
)

// Providers holds the external collaborators. All three are required.
type Providers struct {
	STT stt.Provider
	G2P g2p.Provider
	VAD vad.Detector

	// Checkers are readiness probes for the providers above.
	Checkers []health.Checker
}

// App owns the analyzer and the HTTP server.
type App struct {
	cfg      *config.Config
	analyzer *assess.Analyzer
	handler  http.Handler
	server   *http.Server

	metrics  *observe.Metrics
	levelVar *slog.LevelVar
	listener net.Listener
	scrape   http.Handler

	closers  []func() error
	stopOnce sync.Once
}

// Option configures an [App].
type Option func(*App)

// WithMetrics sets the metrics sink. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar hands the app the variable backing the process log level so
// config reloads can change it.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithListener makes Run serve on ln instead of listening on
// cfg.Server.ListenAddr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithMetricsHandler replaces the /metrics handler. Default promhttp.Handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithCloser registers fn to run during Shutdown, after the server drained.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New wires an App. cfg must already carry defaults.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.G2P == nil || providers.VAD == nil {
		return nil, errors.New("app: stt, g2p and vad providers are required")
	}
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}

	a.analyzer = NewAnalyzer(cfg, providers, a.metrics)

	mux := http.NewServeMux()
	api.New(a.analyzer, api.WithMaxUploadBytes(cfg.Server.MaxUploadBytes)).Register(mux)
	health.New(providers.Checkers).Register(mux)
	mux.Handle("GET /metrics", a.scrape)
	a.handler = observe.Middleware(a.metrics)(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// NewAnalyzer builds the analyzer described by cfg over providers.
func NewAnalyzer(cfg *config.Config, providers *Providers, m *observe.Metrics) *assess.Analyzer {
	return assess.New(
		providers.STT,
		providers.G2P,
		assess.NewMeter(providers.VAD, cfg.Analysis.SilenceTopDB),
		assess.WithLanguage(cfg.Analysis.Language),
		assess.WithMaxConcurrent(cfg.Analysis.MaxConcurrent),
		assess.WithScratchDir(cfg.Analysis.ScratchDir),
		assess.WithMetrics(m),
		assess.WithProviderLabels(cfg.Providers.STT.Name, cfg.Providers.G2P.Name),
	)
}

// Handler returns the root HTTP handler with middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Analyzer returns the analyzer served by the app.
func (a *App) Analyzer() *assess.Analyzer { return a.analyzer }

// Run serves HTTP until ctx is cancelled or the server fails. It returns
// ctx.Err() after cancellation; the caller then calls Shutdown.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting requests, waits for in-flight analyses until ctx
// expires and then runs the registered closers.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if serr := a.server.Shutdown(ctx); serr != nil {
			slog.Warn("http server shutdown", "err", serr)
			err = serr
		}
		for i, closer := range a.closers {
			if cerr := closer(); cerr != nil {
				slog.Warn("closer error", "index", i, "err", cerr)
			}
		}
		slog.Info("shutdown complete")
	})
	return err
}

// ApplyConfig reacts to a reloaded config. Only the log level is applied
// live; other changes are reported as needing a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
}
