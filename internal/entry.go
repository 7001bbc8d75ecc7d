// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/cardsync/internal/api"
	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/carddav"
	"github.com/starford/cardsync/internal/contactservice"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/mcpserver"
	"github.com/starford/cardsync/internal/sse"
	"github.com/starford/cardsync/internal/storage"
	"github.com/starford/cardsync/internal/syncer"
	"github.com/starford/cardsync/internal/watcher"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *ledger.DB
	syncer *syncer.Syncer
	broker *sse.Broker
	out    io.Writer

	closers []func() error
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close failed", slog.String("error", err.Error()))
		}
	}
}

func setup(console io.Writer, opts ...Option) (*runtime, *application, error) {
	app := &application{version: "dev", out: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	cfg := app.config
	rt := &runtime{cfg: cfg, out: app.out}

	// Initialize structured JSON logger.
	var logOut = console
	if cfg.App.LogFile.Path != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.App.LogFile.Path,
			MaxSize:    cfg.App.LogFile.MaxSizeMB,
			MaxBackups: cfg.App.LogFile.MaxBackups,
			MaxAge:     cfg.App.LogFile.MaxAgeDays,
		}
		rt.closers = append(rt.closers, lj.Close)
		logOut = lj
	}
	rt.logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(rt.logger)

	rt.logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("people_path", cfg.Sync.PeoplePath),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("icloud_endpoint", cfg.ICloud.Endpoint),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		rt.Close()
		return nil, nil, fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		rt.Close()
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	rt.store = store

	// Initialize SQLite ledger.
	db, err := ledger.Open(cfg.SQLite.Path)
	if err != nil {
		rt.Close()
		return nil, nil, fmt.Errorf("init ledger: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, db.Close)

	// SSE broker; also receives notices and reports of every pass.
	rt.broker = sse.NewBroker(2 * time.Second)
	rt.closers = append(rt.closers, func() error { rt.broker.Close(); return nil })

	fetcher := app.fetcher
	if fetcher == nil {
		fetcher = carddav.New(carddav.Config{
			Endpoint:    cfg.ICloud.Endpoint,
			AddressBook: cfg.ICloud.AddressBook,
			Timeout:     cfg.ICloud.Timeout,
		}, rt.logger)
	}

	rt.syncer = syncer.New(store, fetcher, cfg.SyncerOptions(),
		syncer.WithLogger(rt.logger),
		syncer.WithRecorder(db),
		syncer.WithNotifier(syncer.Notifiers{syncer.LogNotifier{Logger: rt.logger}, rt.broker}),
		syncer.WithObserver(rt.broker.PublishReport),
	)

	return rt, app, nil
}

// RunSync performs a single pass and prints its report. Logs go to stderr
// (or the log file) so the output stays valid JSON.
func RunSync(ctx context.Context, opts ...Option) error {
	rt, _, err := setup(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.syncer.Run(ctx)
	if report != nil {
		summary := *report
		summary.Outcomes = nil
		if encErr := printJSON(rt.out, summary); encErr != nil {
			return encErr
		}
	}
	return err
}

// RunStatus prints the most recent pass recorded in the ledger.
func RunStatus(_ context.Context, opts ...Option) error {
	rt, _, err := setup(io.Discard, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	run, err := rt.db.LastRun()
	if errors.Is(err, apperr.ErrNotFound) {
		_, err = fmt.Fprintln(rt.out, "no sync has run yet")
		return err
	}
	if err != nil {
		return err
	}
	return printJSON(rt.out, run)
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr (or the
// log file) so they never interleave with the protocol stream.
func RunMCP(_ context.Context, opts ...Option) error {
	rt, app, err := setup(os.Stderr, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc := contactservice.NewService(rt.syncer, rt.db, rt.store)
	return mcpserver.New(svc, app.version).ServeStdio()
}

// Run starts the HTTP API together with the optional folder watcher and
// the sync schedule.
func Run(ctx context.Context, opts ...Option) error {
	rt, _, err := setup(os.Stdout, opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg
	logger := rt.logger

	// Build API service and router.
	svc := contactservice.NewService(rt.syncer, rt.db, rt.store)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, rt.broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Scheduled and on-start passes.
	if cfg.Sync.OnStart || cfg.Sync.Interval > 0 {
		g.Go(func() error {
			schedule(gCtx, rt.syncer, cfg.Sync.OnStart, cfg.Sync.Interval, logger)
			return nil
		})
	}

	// Re-sync when contact notes disappear.
	if cfg.Sync.Watch {
		g.Go(func() error {
			err := watcher.Watch(gCtx, cfg.Vault.Path, rt.syncer.PeoplePath(), cfg.Sync.WatchDebounce, logger,
				func(ctx context.Context, paths []string) {
					logger.Info("watcher: notes removed, starting sync", slog.Int("count", len(paths)))
					trySync(ctx, rt.syncer, logger)
				})
			if err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the schedule and the watcher
// stop together with the HTTP server.
var errShutdown = errors.New("shutdown")

// schedule runs a pass on start (if asked) and then every interval until
// ctx is done. A zero interval only runs the start pass.
func schedule(ctx context.Context, s *syncer.Syncer, onStart bool, interval time.Duration, logger *slog.Logger) {
	if onStart {
		trySync(ctx, s, logger)
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trySync(ctx, s, logger)
		}
	}
}

// trySync starts a pass unless one is running. Failures are already
// reported through notices, so they are only logged here.
func trySync(ctx context.Context, s *syncer.Syncer, logger *slog.Logger) {
	if _, err := s.TryRun(ctx); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			logger.Debug("sync: skipped, pass already running")
			return
		}
		logger.Warn("sync: pass failed", slog.String("error", err.Error()))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
