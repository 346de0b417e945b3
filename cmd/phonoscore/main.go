// Command phonoscore scores pronunciation accuracy and fluency of recorded
// speech against a reference text.
//
//	phonoscore serve --config config.yaml
//	phonoscore analyze --config config.yaml --text "the quick brown fox" clip.wav
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/phonoscore/internal/api"
	"github.com/MrWong99/phonoscore/internal/app"
	"github.com/MrWong99/phonoscore/internal/config"
	"github.com/MrWong99/phonoscore/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "phonoscore: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "phonoscore",
		Short:         "Pronunciation accuracy and fluency scoring",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "config.yaml", "path to the YAML configuration file")
	root.AddCommand(newServeCmd(), newAnalyzeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP scoring service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return serve(cmd.Context(), path)
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "analyze --text TEXT FILE.wav",
		Short: "Score a single recording and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			return analyze(cmd.Context(), cmd.OutOrStdout(), path, args[0], text)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "reference text the speaker was asked to read")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

// loadConfig reads the config file and installs the default logger. The
// returned LevelVar backs the logger so reloads can change the level.
func loadConfig(path string) (*config.Config, *slog.LevelVar, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("config file %q not found", path)
		}
		return nil, nil, err
	}
	lv := new(slog.LevelVar)
	lv.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})))
	return cfg, lv, nil
}

func serve(ctx context.Context, configPath string) error {
	cfg, lv, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	slog.Info("phonoscore starting",
		"version", version,
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, closers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}

	opts := []app.Option{app.WithLevelVar(lv), app.WithCloser(func() error { return otelShutdown(context.Background()) })}
	for _, c := range closers {
		opts = append(opts, app.WithCloser(c))
	}
	application, err := app.New(cfg, providers, opts...)
	if err != nil {
		return err
	}

	watcher, err := config.NewWatcher(configPath, application.ApplyConfig)
	if err != nil {
		slog.Warn("config hot-reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(os.Stderr, cfg)

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	slog.Info("stopping", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func analyze(ctx context.Context, out io.Writer, configPath, audioPath, text string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, closers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("close provider", "err", err)
			}
		}
	}()

	res, err := app.NewAnalyzer(cfg, providers, observe.DefaultMetrics()).Analyze(ctx, audioPath, text)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(api.NewAnalyzeResponse(res))
}

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "phonoscore startup summary")
	printProvider(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	for _, fb := range cfg.Providers.STTFallback {
		printProvider(w, "STT fallback", fb.Name, fb.Model)
	}
	printProvider(w, "G2P", cfg.Providers.G2P.Name, "")
	printProvider(w, "VAD", cfg.Providers.VAD.Name, "")
	fmt.Fprintf(w, "  %-14s: %s\n", "Language", cfg.Analysis.Language)
	fmt.Fprintf(w, "  %-14s: %g dB\n", "Silence", cfg.Analysis.SilenceTopDB)
	fmt.Fprintf(w, "  %-14s: %s\n", "Listen addr", cfg.Server.ListenAddr)
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Fprintf(w, "  %-14s: %s\n", kind, value)
}
