// Command atlas is the main entry point for the Atlas voice assistant server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/atlasvoice/atlas/internal/admin"
	"github.com/atlasvoice/atlas/internal/app"
	"github.com/atlasvoice/atlas/internal/config"
	"github.com/atlasvoice/atlas/internal/dispatch"
	"github.com/atlasvoice/atlas/internal/handlers/reminder"
	"github.com/atlasvoice/atlas/internal/handlers/search"
	"github.com/atlasvoice/atlas/internal/handlers/weather"
	"github.com/atlasvoice/atlas/internal/intent"
	"github.com/atlasvoice/atlas/internal/observe"
	"github.com/atlasvoice/atlas/internal/settings"
	"github.com/atlasvoice/atlas/pkg/speechio"
	"github.com/atlasvoice/atlas/pkg/speechio/mock"
	"github.com/atlasvoice/atlas/pkg/speechio/wsbridge"
)

const shutdownTimeout = 15 * time.Second

// defaultSettingsFile is used when storage names neither a Postgres DSN nor
// a settings file.
const defaultSettingsFile = "settings.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "atlas: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "atlas: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("atlas starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "atlas"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sdCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sdCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metric instruments", "err", err)
		return 1
	}

	// ── Speech providers ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	input, output, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build speech providers", "err", err)
		return 1
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	var (
		settingsStore settings.Store
		reminderStore reminder.Store
		checkers      []admin.Checker
	)
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to open postgres pool", "err", err)
			return 1
		}
		defer pool.Close()

		pgSettings := settings.NewPostgresStore(pool, settings.WithProfile(cfg.Storage.Profile))
		if err := pgSettings.Migrate(ctx); err != nil {
			slog.Error("settings store migration failed", "err", err)
			return 1
		}
		pgReminders := reminder.NewPostgresStore(pool)
		if err := pgReminders.Migrate(ctx); err != nil {
			slog.Error("reminder store migration failed", "err", err)
			return 1
		}
		settingsStore = pgSettings
		reminderStore = pgReminders
		checkers = append(checkers, admin.Checker{Name: "database", Check: pool.Ping})
		slog.Info("storage: postgres", "profile", cfg.Storage.Profile)
	} else {
		path := cfg.Storage.SettingsFile
		if path == "" {
			path = defaultSettingsFile
		}
		settingsStore = settings.NewFileStore(path)
		reminderStore = reminder.NewMemStore()
		slog.Info("storage: file", "settings_file", path)
	}

	// ── Capability handlers ───────────────────────────────────────────────────
	dispatchOpts := []dispatch.Option{
		dispatch.WithTimeout(cfg.Pipeline.DispatchTimeout.Std()),
		dispatch.WithMetrics(metrics),
	}
	if cfg.Pipeline.IntentThreshold > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithThreshold(cfg.Pipeline.IntentThreshold))
	}
	dp := dispatch.New(dispatchOpts...)

	for kind, h := range map[intent.Kind]dispatch.Handler{
		intent.Weather:  weather.New(),
		intent.Reminder: reminder.New(reminderStore),
		intent.Search:   search.New(),
	} {
		if err := dp.Register(kind, h); err != nil {
			slog.Error("handler registration failed", "kind", kind, "err", err)
			return 1
		}
		slog.Info("handler registered", "kind", kind)
	}

	// ── Orchestrator ──────────────────────────────────────────────────────────
	orch := app.New(input, output, dp, settingsStore, sessionConfig(cfg),
		app.WithLogger(logger),
		app.WithMetrics(metrics),
	)

	// ── Config watcher ────────────────────────────────────────────────────────
	// Reloaded capture/pipeline values reach the orchestrator like settings
	// do: the running session keeps its parameters, the next session starts
	// with the new ones. Server and storage sections need a restart.
	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
		rcCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := orch.Reconfigure(rcCtx, sessionConfig(next)); err != nil {
			slog.Warn("config reload: reconfigure failed", "err", err)
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── HTTP surface ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	adm := admin.New(orch, dp, intent.NewClassifier(), settingsStore,
		admin.WithLogger(logger),
		admin.WithCheckers(checkers...),
	)
	adm.Register(mux)
	if b, ok := input.(*wsbridge.Bridge); ok {
		mux.Handle("/ws", b.Handler())
	}

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg, listenAddr)
	slog.Info("server ready — press Ctrl+C to shut down")

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := orch.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("orchestrator: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sdCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sdCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with Atlas.
// The wsbridge entry hands out one shared Bridge for both directions so a
// single websocket client carries capture and rendering.
func registerBuiltinProviders(reg *config.Registry) {
	var bridge *wsbridge.Bridge
	sharedBridge := func() *wsbridge.Bridge {
		if bridge == nil {
			bridge = wsbridge.New()
		}
		return bridge
	}

	reg.RegisterInput("wsbridge", func(config.ProviderEntry) (speechio.InputProvider, error) {
		return sharedBridge(), nil
	})
	reg.RegisterOutput("wsbridge", func(config.ProviderEntry) (speechio.OutputProvider, error) {
		return sharedBridge(), nil
	})

	// In-process stubs, useful for development without a browser client.
	reg.RegisterInput("mock", func(config.ProviderEntry) (speechio.InputProvider, error) {
		return mock.NewInput(), nil
	})
	reg.RegisterOutput("mock", func(config.ProviderEntry) (speechio.OutputProvider, error) {
		return mock.NewOutput(), nil
	})
}

// buildProviders instantiates the configured input and output providers.
// Empty names default to the websocket bridge.
func buildProviders(cfg *config.Config, reg *config.Registry) (speechio.InputProvider, speechio.OutputProvider, error) {
	inEntry := cfg.Providers.Input
	if inEntry.Name == "" {
		inEntry.Name = "wsbridge"
	}
	outEntry := cfg.Providers.Output
	if outEntry.Name == "" {
		outEntry.Name = "wsbridge"
	}

	input, err := reg.CreateInput(inEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create input provider %q: %w", inEntry.Name, err)
	}
	slog.Info("provider created", "kind", "input", "name", inEntry.Name)

	output, err := reg.CreateOutput(outEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create output provider %q: %w", outEntry.Name, err)
	}
	slog.Info("provider created", "kind", "output", "name", outEntry.Name)

	return input, output, nil
}

// sessionConfig maps the file config onto the orchestrator's session
// parameters.
func sessionConfig(cfg *config.Config) app.Config {
	return app.Config{
		Mode:            cfg.Capture.Mode,
		WakeWord:        cfg.Capture.WakeWord,
		WakeWindow:      cfg.Capture.WakeWindow.Std(),
		ConfidenceFloor: cfg.Capture.ConfidenceFloor,
		IntentThreshold: cfg.Pipeline.IntentThreshold,
		DispatchTimeout: cfg.Pipeline.DispatchTimeout.Std(),
		TurnExpiry:      cfg.Pipeline.TurnExpiry.Std(),
		QueueCapacity:   cfg.Pipeline.QueueCapacity,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, listenAddr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Atlas — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Input", orDefault(cfg.Providers.Input.Name, "wsbridge"))
	printField("Output", orDefault(cfg.Providers.Output.Name, "wsbridge"))
	printField("Capture mode", orDefault(string(cfg.Capture.Mode), "continuous"))
	if cfg.Capture.WakeWord != "" {
		printField("Wake word", cfg.Capture.WakeWord)
	}
	if cfg.Storage.PostgresDSN != "" {
		printField("Storage", "postgres")
	} else {
		printField("Storage", "file")
	}
	printField("Listen addr", listenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", name, value)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
