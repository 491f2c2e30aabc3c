// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
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

	"github.com/starford/verba/internal/api"
	"github.com/starford/verba/internal/events"
	"github.com/starford/verba/internal/mcpserver"
)

func (a *application) init(out io.Writer) (*Config, *slog.Logger, error) {
	if a.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	logger := a.logger
	if logger == nil {
		// Initialize structured JSON logger.
		logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("documents_path", cfg.Documents.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("redis_relay", cfg.Events.Redis.Enabled()),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return cfg, logger, nil
}

// newHTTPHandler builds the root router: health checks and metrics outside
// auth, the API under /api.
func newHTTPHandler(cfg *Config, e *engine) http.Handler {
	apiRouter := api.NewRouter(api.Deps{
		Highlights:   e.highlights,
		Board:        e.board,
		Checklist:    e.checklist,
		Catalog:      e.db,
		Importer:     e.db,
		Documents:    e.documents,
		DocumentSync: e.syncer,
		Events:       e.broker,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

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
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := e.db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", e.metrics.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)
	return r
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	cfg, logger, err := app.init(os.Stdout)
	if err != nil {
		return err
	}

	e, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(cfg, e),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var relay *events.RedisRelay
	if cfg.Events.Redis.Enabled() {
		relay, err = events.NewRedisRelay(cfg.Events.Redis.URL, cfg.Events.Redis.Channel, e.broker, logger)
		if err != nil {
			return fmt.Errorf("init redis relay: %w", err)
		}
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start document watcher.
	if cfg.Documents.Watch {
		g.Go(func() error {
			if err := e.syncer.Watch(gCtx, cfg.Documents.Path); err != nil {
				logger.Error("document watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Reload checklist collections announced by other writers.
	g.Go(func() error {
		return e.checklist.Watch(gCtx, e.broker)
	})

	// Apply highlight and annotation changes made on other instances.
	g.Go(func() error {
		return e.highlights.Watch(gCtx, e.broker)
	})
	g.Go(func() error {
		return e.board.Watch(gCtx, e.broker)
	})

	// Relay events between instances.
	if relay != nil {
		g.Go(func() error {
			defer relay.Close()
			return relay.Run(gCtx)
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
		// Stop the watcher, relay and checklist loop too.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdio. Logs go to stderr so they do not
// corrupt the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	cfg, logger, err := app.init(os.Stderr)
	if err != nil {
		return err
	}

	e, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.close()

	srv := mcpserver.New(mcpserver.Deps{
		Highlights:   e.highlights,
		Checklist:    e.checklist,
		Catalog:      e.db,
		Documents:    e.documents,
		DocumentSync: e.syncer,
	})
	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}
