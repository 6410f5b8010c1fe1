package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ispfinder/ispfinder/internal/api"
	"github.com/ispfinder/ispfinder/internal/catalog"
	"github.com/ispfinder/ispfinder/internal/config"
	"github.com/ispfinder/ispfinder/internal/database"
	"github.com/ispfinder/ispfinder/internal/events"
	"github.com/ispfinder/ispfinder/internal/logging"
	"github.com/ispfinder/ispfinder/internal/metrics"
	"github.com/ispfinder/ispfinder/internal/retry"
	"github.com/ispfinder/ispfinder/internal/server"
	"github.com/ispfinder/ispfinder/internal/session"
	"github.com/ispfinder/ispfinder/internal/signals"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting ISP finder")

	ctx := context.Background()

	store, db, err := loadCatalog(ctx, cfg.Catalog, logger)
	if err != nil {
		logger.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}
	logger.Info("catalog loaded", "cities", len(store.Cities()), "isps", len(store.ISPs()))

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	publisher, err := events.New(cfg.Events, logger)
	if err != nil {
		logger.Error("failed to init event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	geolocation := signals.NewGeolocationClient(cfg.Geolocation, logger, collector)
	if !geolocation.Configured() {
		logger.Warn("geolocation API key not configured, location detection disabled")
	}

	handler := api.NewHandler(api.Services{
		Catalog:        store,
		Session:        session.New(),
		Geolocation:    geolocation,
		Status:         signals.NewStatusService(store.ISPs(), logger, collector),
		SpeedTest:      signals.NewSpeedTester(cfg.SpeedTest, store.ISPs(), logger, collector),
		Publisher:      publisher,
		DB:             db,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, logger)

	srv := server.New(cfg.Server, logger, api.NewRouter(handler, collector, cfg.CORS, logger))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("ISP finder started successfully")
	logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s/api", cfg.Server.Port))

	waitForSignal(logger)

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

// loadCatalog reads the catalog from PostgreSQL when a database is
// configured, else from a JSON file, else from the embedded seed. An empty
// database is seeded on first start. The returned DB is nil without a
// database.
func loadCatalog(ctx context.Context, cfg config.CatalogConfig, logger *slog.Logger) (*catalog.Store, *sql.DB, error) {
	switch {
	case cfg.DatabaseURL != "":
		db, err := connectWithRetry(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}

		if err := database.RunMigrations(ctx, db, logger); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}

		health, err := database.CheckHealth(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}

		repo := database.NewCatalogRepository(db)
		if health.Empty() {
			logger.Info("database catalog is empty, seeding")
			seed, err := catalog.SeedData()
			if err != nil {
				db.Close()
				return nil, nil, err
			}
			if err := repo.Save(ctx, seed); err != nil {
				db.Close()
				return nil, nil, fmt.Errorf("seed database catalog: %w", err)
			}
		}

		data, err := repo.Load(ctx)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("load catalog from database: %w", err)
		}
		logger.Info("catalog loaded from database", "cities", len(data.Cities), "isps", len(data.ISPs))

		store, err := catalog.New(data)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("invalid database catalog: %w", err)
		}
		return store, db, nil

	case cfg.Path != "":
		logger.Info("loading catalog from file", "path", cfg.Path)
		store, err := catalog.LoadFile(cfg.Path)
		return store, nil, err

	default:
		logger.Info("using embedded seed catalog")
		store, err := catalog.Seed()
		return store, nil, err
	}
}

func connectWithRetry(ctx context.Context, url string, logger *slog.Logger) (*sql.DB, error) {
	logger.Info("connecting to database", "url", database.RedactURL(url))

	var db *sql.DB
	err := retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) error {
		conn, err := database.Connect(ctx, url)
		if err != nil {
			logger.Warn("database not ready", "error", err)
			return retry.Temporary(err)
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("database connected")
	return db, nil
}

func waitForSignal(logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	logger.Info("received signal", "signal", sig.String())
	signal.Stop(c)
	close(c)
}
