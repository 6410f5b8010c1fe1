// Command seed writes a catalog into PostgreSQL, replacing what is there.
//
//	seed -database postgres://... [-file catalog.json]
//
// Without -file the embedded seed catalog is written.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/ispfinder/ispfinder/internal/catalog"
	"github.com/ispfinder/ispfinder/internal/config"
	"github.com/ispfinder/ispfinder/internal/database"
	"github.com/ispfinder/ispfinder/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	dbURL := flag.String("database", cfg.Catalog.DatabaseURL, "PostgreSQL connection URL (defaults to DATABASE_URL)")
	file := flag.String("file", cfg.Catalog.Path, "catalog JSON file (defaults to CATALOG_PATH, then the embedded seed)")
	flag.Parse()

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	if *dbURL == "" {
		logger.Error("no database configured, set DATABASE_URL or pass -database")
		os.Exit(2)
	}

	data, err := readCatalog(*file)
	if err != nil {
		logger.Error("failed to read catalog", "error", err)
		os.Exit(1)
	}

	// Validate before touching the database.
	if _, err := catalog.New(data); err != nil {
		logger.Error("catalog is invalid", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, *dbURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := database.NewCatalogRepository(db).Save(ctx, data); err != nil {
		logger.Error("failed to save catalog", "error", err)
		os.Exit(1)
	}

	logger.Info("catalog seeded", "cities", len(data.Cities), "isps", len(data.ISPs))
}

func readCatalog(path string) (catalog.Data, error) {
	if path == "" {
		return catalog.SeedData()
	}
	f, err := os.Open(path)
	if err != nil {
		return catalog.Data{}, err
	}
	defer f.Close()
	return catalog.DecodeData(f)
}
