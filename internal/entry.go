// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/workboard/internal/api"
	"github.com/starford/workboard/internal/audit"
	"github.com/starford/workboard/internal/boardapi"
	"github.com/starford/workboard/internal/mcpserver"
	"github.com/starford/workboard/internal/report"
	"github.com/starford/workboard/internal/schedule"
	"github.com/starford/workboard/internal/sse"
	"github.com/starford/workboard/internal/tracker"
)

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildRunner opens the audit log and both collaborator clients and wires
// them into a runner. The returned close function releases the audit DB.
func buildRunner(cfg *Config, logger *slog.Logger, broker *sse.Broker) (*Runner, func(), error) {
	auditDB, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init audit log: %w", err)
	}

	tc, err := tracker.New(tracker.Config{
		BaseURL: cfg.Tracker.BaseURL,
		Token:   cfg.Tracker.Token,
	}, logger)
	if err != nil {
		auditDB.Close()
		return nil, nil, fmt.Errorf("init tracker client: %w", err)
	}

	bc, err := boardapi.New(boardapi.Config{
		Endpoint: cfg.Board.Endpoint,
		Token:    cfg.Board.Token,
	}, logger)
	if err != nil {
		auditDB.Close()
		return nil, nil, fmt.Errorf("init board client: %w", err)
	}

	runner, err := NewRunner(cfg, logger, tc, bc, auditDB, broker)
	if err != nil {
		auditDB.Close()
		return nil, nil, fmt.Errorf("init runner: %w", err)
	}
	return runner, func() { auditDB.Close() }, nil
}

// RunSync performs a single reconciliation pass and prints the summary.
func RunSync(ctx context.Context, cfg *Config, dryRun bool) error {
	logger := newLogger(cfg)
	runner, closeFn, err := buildRunner(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	summary, err := runner.SyncOnce(ctx, dryRun)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if dryRun {
		for _, op := range summary.Plan.Ops {
			fmt.Println(op.String())
		}
		for _, skip := range summary.Plan.Skipped {
			fmt.Printf("skipped %s: %s\n", skip.Ref, skip.Reason)
		}
	}
	return nil
}

// RunRank computes the review ranking and writes it to stdout as Markdown,
// or to htmlPath as HTML when set.
func RunRank(ctx context.Context, cfg *Config, htmlPath string) error {
	logger := newLogger(cfg)
	runner, closeFn, err := buildRunner(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	items, err := runner.RankOnce(ctx)
	if err != nil {
		return fmt.Errorf("rank: %w", err)
	}
	now := time.Now().UTC()

	if htmlPath != "" {
		f, err := os.Create(htmlPath)
		if err != nil {
			return fmt.Errorf("rank: create %s: %w", htmlPath, err)
		}
		defer f.Close()
		return report.WriteHTML(f, items, now)
	}
	return report.WriteMarkdown(os.Stdout, items, now)
}

// RunMCP serves the MCP tools over stdio until the client disconnects.
func RunMCP(_ context.Context, cfg *Config) error {
	// MCP talks JSON-RPC on stdout; logs must go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	runner, closeFn, err := buildRunner(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	srv := mcpserver.New(&plannerAdapter{runner: runner})
	return srv.ServeStdio()
}

// Run starts serve mode with the given options: the scheduler, the read-only
// API, and the SSE stream, until a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := newLogger(cfg)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("board_endpoint", cfg.Board.Endpoint),
		slog.Int("projects", len(cfg.Tracker.Projects)),
		slog.String("schedule", cfg.Schedule.Cron),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	runner, closeFn, err := buildRunner(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer closeFn()

	sched, err := schedule.New(cfg.Schedule.Cron, logger)
	if err != nil {
		return err
	}

	// Build API router.
	apiRouter := api.NewRouter(runner, cfg.App.Auth.AuthEnabled(), cfg.App.Auth.Token, broker)

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

	// The signal handler cancels runCtx so the scheduler and watcher
	// goroutines exit alongside the HTTP server.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)

	// Initial pass plus scheduled passes on one goroutine, both through the
	// scheduler's single-flight slot. A slow first fetch must not overlap
	// the first tick: two concurrent passes would both snapshot the board
	// before either creates, and each emit a CreateTask for the same ref.
	g.Go(func() error {
		syncPass := func(ctx context.Context) error {
			_, err := runner.SyncOnce(ctx, false)
			return err
		}
		if _, err := sched.TriggerNow(gCtx, syncPass); err != nil {
			logger.Warn("initial pass failed", slog.String("error", err.Error()))
		}
		err := sched.Run(gCtx, syncPass)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Live ranking-offset reloads from the config file.
	if app.configPath != "" {
		g.Go(func() error {
			return watchConfig(gCtx, app.configPath, logger, func(fresh *Config) {
				runner.SetOffsets(fresh.Rank.Offsets)
			})
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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
