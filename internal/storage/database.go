package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"marketcache/internal/config"
	"marketcache/internal/logger"
)

// Open connects to PostgreSQL, configures the pool and pings with a short
// linear backoff.
func Open(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle := cfg.MaxOpen, cfg.MaxIdle
	if maxOpen <= 0 {
		maxOpen = 10
	}
	if maxIdle <= 0 {
		maxIdle = 2
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	var pingErr error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		pingErr = db.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			break
		}

		log.Warn("Database ping failed", "attempt", i+1, "max_attempts", maxRetries, "error", pingErr)
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				db.Close()
				return nil, ctx.Err()
			case <-time.After(time.Second * time.Duration(i+1)):
			}
		}
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s at %s:%d after %d attempts: %w",
			cfg.DBName, cfg.Host, cfg.Port, maxRetries, pingErr)
	}

	log.Info("Database connection established", "max_open", maxOpen, "max_idle", maxIdle)
	return db, nil
}
