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

	"github.com/meowtion/sensor/internal/api"
	"github.com/meowtion/sensor/internal/imaging"
	"github.com/meowtion/sensor/internal/match"
	"github.com/meowtion/sensor/internal/mcpserver"
	"github.com/meowtion/sensor/internal/oracle"
	"github.com/meowtion/sensor/internal/roster"
	"github.com/meowtion/sensor/internal/sightings"
	"github.com/meowtion/sensor/internal/sse"
)

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("oracle_model", cfg.Oracle.Model),
		slog.String("assets_dir", cfg.Roster.AssetsDir),
		slog.Int("roster_size", len(cfg.Roster.Cats)),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	encoder := imaging.NewEncoder()

	reg, err := roster.FromEntries(cfg.Roster.AssetsDir, cfg.Roster.Cats)
	if err != nil {
		return fmt.Errorf("build roster: %w", err)
	}

	oracleClient := app.oracle
	if oracleClient == nil {
		oracleClient, err = oracle.NewGemini(ctx, cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.Oracle.Timeout())
		if err != nil {
			return fmt.Errorf("init oracle: %w", err)
		}
	}

	store, err := sightings.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init sightings store: %w", err)
	}
	defer store.Close()

	if err := store.SeedLocations(seedLocations(cfg.Map.Locations)); err != nil {
		logger.Warn("seeding locations failed", slog.String("error", err.Error()))
	}

	policy := match.Policy{
		SimilarityThreshold: cfg.Match.SimilarityThreshold,
		MaxConflicts:        cfg.Match.MaxConflicts,
		Timeout:             cfg.Oracle.Timeout(),
	}
	matcher := match.NewMatcher(oracleClient, encoder, reg, policy)

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Build API handler and router.
	h := api.NewHandler(matcher, oracleClient, encoder, reg, store, broker)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	// Watch reference-image assets; an edited asset drops its cached encoding.
	g.Go(func() error {
		if err := roster.Watch(gCtx, encoder, cfg.Roster.AssetsDir, logger); err != nil {
			logger.Warn("asset watcher unavailable", slog.String("error", err.Error()))
		}
		return nil
	})

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

// RunMCP starts the MCP stdio server: the matching pipeline exposed as
// tools instead of HTTP endpoints. Logs go to stderr so stdout stays
// reserved for the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	encoder := imaging.NewEncoder()

	reg, err := roster.FromEntries(cfg.Roster.AssetsDir, cfg.Roster.Cats)
	if err != nil {
		return fmt.Errorf("build roster: %w", err)
	}

	oracleClient := app.oracle
	if oracleClient == nil {
		oracleClient, err = oracle.NewGemini(ctx, cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.Oracle.Timeout())
		if err != nil {
			return fmt.Errorf("init oracle: %w", err)
		}
	}

	policy := match.Policy{
		SimilarityThreshold: cfg.Match.SimilarityThreshold,
		MaxConflicts:        cfg.Match.MaxConflicts,
		Timeout:             cfg.Oracle.Timeout(),
	}
	matcher := match.NewMatcher(oracleClient, encoder, reg, policy)

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(matcher, oracleClient, encoder, reg).ServeStdio()
}

func seedLocations(locs []MapLocation) []sightings.Location {
	out := make([]sightings.Location, len(locs))
	for i, l := range locs {
		out[i] = sightings.Location{Name: l.Name, Lat: l.Lat, Lng: l.Lng, Description: l.Description}
	}
	return out
}
