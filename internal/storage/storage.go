// Package storage persists symbol-keyed market snapshots written by the sync
// scheduler. Every write is an independent upsert carrying its own expiry.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"marketcache/internal/config"
	"marketcache/internal/logger"
	"marketcache/internal/types"
)

// SnapshotStore is the durable side of the sync scheduler.
type SnapshotStore interface {
	// Upsert writes rec, replacing any snapshot with the same kind and symbol.
	Upsert(ctx context.Context, rec types.SyncRecord) error
	// DeleteExpired removes snapshots past their expiry and reports how many.
	DeleteExpired(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Executor runs a statement with positional parameters. *sql.DB and *sql.Tx
// satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Drivers accepted in configuration.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverNone     = "none"
)

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (SnapshotStore, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	switch strings.ToLower(cfg.Driver) {
	case DriverPostgres:
		db, err := Open(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(db, WithCloser(db)), nil
	case DriverRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case DriverNone, "":
		log.Info("Durable snapshot storage disabled")
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// NopStore discards every write. The scheduler still primes the cache.
type NopStore struct{}

func (NopStore) Upsert(context.Context, types.SyncRecord) error { return nil }
func (NopStore) DeleteExpired(context.Context) (int64, error)   { return 0, nil }
func (NopStore) Ping(context.Context) error                     { return nil }
func (NopStore) Close() error                                   { return nil }
