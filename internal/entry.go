// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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

	"github.com/starford/litlink/internal/api"
	"github.com/starford/litlink/internal/index"
	"github.com/starford/litlink/internal/mcpserver"
	"github.com/starford/litlink/internal/models"
	"github.com/starford/litlink/internal/noteservice"
	"github.com/starford/litlink/internal/notetemplate"
	"github.com/starford/litlink/internal/settings"
	"github.com/starford/litlink/internal/sse"
	"github.com/starford/litlink/internal/storage"
	"github.com/starford/litlink/internal/zotero"
)

// runtime holds the components shared by every entry point.
type runtime struct {
	cfg      *Config
	logger   *slog.Logger
	store    *storage.FS
	db       *index.DB
	lib      *zotero.Library
	tpl      *notetemplate.Engine
	settings *settings.Store
	notes    *noteservice.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (app *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// loadTemplates builds the engine and overlays the saved settings. A broken
// settings file is reported and the built-in templates stay active.
func loadTemplates(cfg *Config, logger *slog.Logger) (*notetemplate.Engine, *settings.Store) {
	tpl := notetemplate.New()
	store := settings.NewStore(cfg.Templates.SettingsPath)
	if err := store.Load(tpl); err != nil {
		logger.Warn("templates: using built-in defaults", slog.String("error", err.Error()))
	}
	return tpl, store
}

// bootstrap opens the vault, the metadata cache and the library, and runs
// the initial sync.
func (app *application) bootstrap() (*runtime, error) {
	cfg := app.config
	logger := app.newLogger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("note_folder", cfg.Vault.NoteFolder),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("zotero_path", cfg.Zotero.DatabasePath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	rt := &runtime{cfg: cfg, logger: logger, store: store, db: db}

	// A nil *zotero.Library must not end up inside the interface.
	var lib noteservice.Library
	if cfg.Zotero.Enabled() {
		rt.lib, err = zotero.OpenLibrary(cfg.Zotero.DatabasePath)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("init zotero: %w", err)
		}
		lib = rt.lib
	} else {
		logger.Warn("zotero: no database configured, library lookups disabled")
	}

	rt.tpl, rt.settings = loadTemplates(cfg, logger)
	rt.notes = noteservice.New(store, db, rt.tpl, lib, cfg.Vault.NoteFolder, logger)

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return rt, nil
}

// watcher keeps the cache in step with the vault. onChange may be nil.
func (rt *runtime) watcher(onChange index.ChangeFunc) *index.Watcher {
	return index.NewWatcher(rt.db, rt.store, rt.store.Root(), rt.logger, onChange)
}

// Close releases the databases.
func (rt *runtime) Close() {
	if rt.lib != nil {
		_ = rt.lib.Close()
	}
	_ = rt.db.Close()
}

// Run starts the HTTP API and the vault watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.bootstrap()
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(
		api.NewHandler(rt.notes, rt.tpl, rt.settings).WithEvents(broker),
		cfg.Auth.AuthEnabled(),
		cfg.Auth.Token,
	)

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

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.watcher(broker.PublishNoteChange).Run(gCtx)
	})

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
		// Open event streams end once their channels close.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stops the watcher when shutdown came from a signal.
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

// RunMCP serves the MCP tools on stdio while the vault watcher runs. Logs
// must not reach stdout, which carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.bootstrap()
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := mcpserver.New(rt.notes, rt.tpl, app.version)

	g, gCtx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gCtx)
	defer stopWatch()

	g.Go(func() error {
		return rt.watcher(nil).Run(watchCtx)
	})
	g.Go(func() error {
		defer stopWatch()
		rt.logger.Info("mcp: serving on stdio")
		return srv.ServeStdio()
	})
	return g.Wait()
}

// CreateNote creates the literature note of one library item and returns
// where it was written.
func CreateNote(ctx context.Context, key string, groupID *int, withAnnotations bool, opts ...Option) (*noteservice.Note, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := app.bootstrap()
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.notes.CreateFromLibrary(ctx, key, groupID, withAnnotations)
}

// Render renders kind against a JSON item (an annotation array for annots)
// using the saved templates. The vault is not touched.
func Render(kind string, data []byte, opts ...Option) (string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	k, err := notetemplate.ParseKind(kind)
	if err != nil {
		return "", err
	}
	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("decode item: %w", err)
	}
	if m, ok := body.(map[string]any); ok {
		body = models.Classify(m)
	}
	tpl, _ := loadTemplates(app.config, app.newLogger())
	return tpl.Render(k, body)
}
