// Package database stores the catalog in PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// The catalog is read once at startup and replaced by cmd/seed, so a handful
// of connections is plenty.
const (
	maxOpenConns  = 5
	maxIdleConns  = 2
	connLifetime  = 5 * time.Minute
	pingTimeout   = 10 * time.Second
	healthTimeout = 5 * time.Second
)

// Connect opens the catalog database at url and waits for it to answer a
// ping. The caller owns the returned pool.
func Connect(ctx context.Context, url string) (*sql.DB, error) {
	if url == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog database: %w", err)
	}
	return db, nil
}

// Health is the database section of the health endpoint: what the stored
// catalog holds and how busy the pool is.
type Health struct {
	Migrations      int   `json:"migrations"`
	Cities          int   `json:"cities"`
	ISPs            int   `json:"isps"`
	Plans           int   `json:"plans"`
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	WaitCount       int64 `json:"wait_count"`
	WaitDurationMs  int64 `json:"wait_duration_ms"`
}

// Empty reports whether no catalog has been stored yet.
func (h Health) Empty() bool {
	return h.Cities == 0 && h.ISPs == 0
}

// CheckHealth counts the stored catalog rows. It fails when the database
// does not answer or the catalog schema has not been migrated.
func CheckHealth(ctx context.Context, db *sql.DB) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var h Health
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM schema_migrations),
			(SELECT COUNT(*) FROM cities),
			(SELECT COUNT(*) FROM isps),
			(SELECT COUNT(*) FROM plans)
	`).Scan(&h.Migrations, &h.Cities, &h.ISPs, &h.Plans)
	if err != nil {
		return Health{}, fmt.Errorf("catalog health check: %w", err)
	}

	stats := db.Stats()
	h.OpenConnections = stats.OpenConnections
	h.InUse = stats.InUse
	h.WaitCount = stats.WaitCount
	h.WaitDurationMs = stats.WaitDuration.Milliseconds()
	return h, nil
}
