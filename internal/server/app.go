// Package server wires the configured storage backends into the catalog and
// transfer services and runs the HTTP API next to the gRPC health service
// until a signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/databazaar/internal/logging"
	"github.com/dmitrijs2005/databazaar/internal/server/config"
	"github.com/dmitrijs2005/databazaar/internal/server/httpapi"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/listings"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/databazaar/internal/server/services"

	gs "github.com/dmitrijs2005/databazaar/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	catalog  *services.CatalogService
	transfer *services.TransferService
	closers  []func() error
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// runMigrations is a seam for tests.
var runMigrations = func(ctx context.Context, rm repomanager.RepositoryManager, db *sql.DB) error {
	return rm.RunMigrations(ctx, db)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger, err := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	app := &App{config: c, logger: logger}
	if err := app.initServices(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) initServices(ctx context.Context) error {
	c := app.config
	rm := repomanager.NewPostgresRepositoryManager()

	var db *sql.DB
	if c.UsesPostgres() {
		var err error
		db, err = openDB(c.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("db init error: %w", err)
		}
		app.closers = append(app.closers, db.Close)

		if err := runMigrations(ctx, rm, db); err != nil {
			return fmt.Errorf("migrations error: %w", err)
		}
	}

	var lr listings.Repository
	switch c.CatalogBackend {
	case config.BackendPostgres:
		lr = rm.Listings(db)
	default:
		lr = listings.NewMemoryRepository()
	}

	var cr chunks.Repository
	switch c.ChunkBackend {
	case config.BackendPostgres:
		cr = rm.Chunks(db)
	case config.BackendBolt:
		br, err := chunks.NewBoltRepository(c.BoltPath)
		if err != nil {
			return fmt.Errorf("bolt init error: %w", err)
		}
		app.closers = append(app.closers, br.Close)
		cr = br
	case config.BackendBadger:
		gr, err := chunks.NewBadgerRepository(c.BadgerDir)
		if err != nil {
			return fmt.Errorf("badger init error: %w", err)
		}
		app.closers = append(app.closers, gr.Close)
		cr = gr
	case config.BackendS3:
		sr, err := chunks.NewS3Repository(ctx, chunks.S3Options{
			Region:       c.S3Region,
			User:         c.S3RootUser,
			Password:     c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
			Bucket:       c.S3Bucket,
		})
		if err != nil {
			return fmt.Errorf("s3 init error: %w", err)
		}
		cr = sr
	default:
		cr = chunks.NewMemoryRepository()
	}

	app.catalog = services.NewCatalogService(lr, app.logger)
	assets := services.NewAssetService(lr, cr, c.ChunkTimeout, app.logger)
	app.transfer = services.NewTransferService(app.catalog, assets, services.TransferConfig{
		ChunkSize:   c.ChunkSize,
		Concurrency: c.UploadConcurrency,
		Retries:     c.ChunkRetries,
	}, app.logger)

	if c.CatalogBackend == config.BackendPostgres && c.ChunkBackend == config.BackendPostgres {
		app.transfer.WithPurge(func(ctx context.Context, id int64) error {
			return rm.PurgeListing(ctx, db, id)
		})
	}

	return nil
}

// Close releases backend resources in reverse order of acquisition.
func (app *App) Close() error {
	var firstErr error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	app.closers = nil
	return firstErr
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.catalog, app.transfer, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run finishes interrupted deletes, then serves until ctx is cancelled or a
// termination signal arrives.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"catalog_backend", app.config.CatalogBackend,
		"chunk_backend", app.config.ChunkBackend)

	app.initSignalHandler(cancelFunc)

	if n, err := app.transfer.ResumeDeletes(ctx); err != nil {
		app.logger.Error(ctx, "resuming deletes failed", "error", err)
	} else if n > 0 {
		app.logger.Info(ctx, "resumed interrupted deletes", "count", n)
	}

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(context.Background(), "closing backends failed", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
