// Package app wires the attendance sync client together: configuration,
// local cache, remote store, sync engine, and connectivity watcher, with
// graceful shutdown on OS signals.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/firestore"
	_ "modernc.org/sqlite"

	"github.com/MSU-Students/q-attendance/internal/attendance"
	"github.com/MSU-Students/q-attendance/internal/cache"
	"github.com/MSU-Students/q-attendance/internal/config"
	"github.com/MSU-Students/q-attendance/internal/connectivity"
	"github.com/MSU-Students/q-attendance/internal/logging"
	"github.com/MSU-Students/q-attendance/internal/persistent"
	"github.com/MSU-Students/q-attendance/internal/remote"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	fsc     *firestore.Client
	engine  *persistent.Store
	watcher *connectivity.Watcher
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("sqlite", cfg.CacheDSN)
	if err != nil {
		return nil, fmt.Errorf("cache init error: %w", err)
	}

	cacheStore, err := cache.Open(ctx, db, attendance.Collections())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache migration error: %w", err)
	}

	app := &App{config: cfg, logger: logger, db: db}

	var remoteStore remote.Store
	if cfg.UseMemoryRemote {
		remoteStore = remote.NewMemoryStore()
	} else {
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("firestore init error: %w", err)
		}
		app.fsc = client
		remoteStore = remote.NewFirestoreStore(client, logger)
	}

	app.engine = persistent.New(remoteStore, cacheStore, logger)
	app.watcher = connectivity.NewWatcher(
		&connectivity.HTTPProber{URL: cfg.ProbeURL},
		app.engine.UpdateOnlineState,
		logger,
	)

	return app, nil
}

// Engine exposes the sync engine for callers embedding the app.
func (app *App) Engine() *persistent.Store {
	return app.engine
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	app.logger.Info(ctx, "Starting attendance sync client...",
		"project", app.config.ProjectID, "cache", app.config.CacheDSN)

	app.watcher.Run(ctx, app.config.OnlineCheckInterval)

	app.logger.Info(context.Background(), "Shutting down...")
	app.Close()
}

// Close releases the cache database and the Firestore client.
func (app *App) Close() {
	if app.fsc != nil {
		_ = app.fsc.Close()
	}
	_ = app.db.Close()
}
