package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	apperrors "marketcache/internal/errors"
	"marketcache/internal/types"
)

// snapshotTables maps each sync kind to its table.
var snapshotTables = map[types.SyncKind]string{
	types.SyncTicker:     "market_ticker_snapshots",
	types.SyncOrderbook:  "market_orderbook_snapshots",
	types.SyncInstrument: "market_instruments",
}

// tableOrder fixes the cleanup order so statements are deterministic.
var tableOrder = []types.SyncKind{types.SyncTicker, types.SyncOrderbook, types.SyncInstrument}

// PostgresStore writes snapshots as JSONB rows keyed by symbol.
type PostgresStore struct {
	exec   Executor
	closer io.Closer
	now    func() time.Time
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithCloser sets what Close releases, usually the *sql.DB.
func WithCloser(c io.Closer) PostgresOption {
	return func(s *PostgresStore) { s.closer = c }
}

// WithNow sets the clock used for the expiry cutoff.
func WithNow(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) { s.now = now }
}

// NewPostgresStore creates a store over exec.
func NewPostgresStore(exec Executor, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{exec: exec, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert implements SnapshotStore
func (s *PostgresStore) Upsert(ctx context.Context, rec types.SyncRecord) error {
	table, ok := snapshotTables[rec.Kind]
	if !ok {
		return apperrors.NewAppError(apperrors.ErrCodeInvalidInput, fmt.Sprintf("unknown snapshot kind %q", rec.Kind), nil)
	}

	payload, err := json.Marshal(rec.Data)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrCodePersistence, "failed to marshal snapshot", err).
			WithContext("symbol", rec.Symbol)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (symbol, payload, synced_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			synced_at = EXCLUDED.synced_at,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, table)

	if _, err := s.exec.ExecContext(ctx, query, rec.Symbol, payload, rec.SyncedAt, rec.ExpiresAt); err != nil {
		return apperrors.NewAppError(apperrors.ErrCodePersistence, "failed to save "+string(rec.Kind)+" snapshot", err).
			WithContext("symbol", rec.Symbol)
	}
	return nil
}

// DeleteExpired implements SnapshotStore. A failing table does not stop the
// others; the first error is returned with the rows removed so far.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	cutoff := s.now()

	var (
		total    int64
		firstErr error
	)
	for _, kind := range tableOrder {
		res, err := s.exec.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE expires_at < $1`, snapshotTables[kind]), cutoff)
		if err != nil {
			if firstErr == nil {
				firstErr = apperrors.NewAppError(apperrors.ErrCodePersistence, "failed to delete expired snapshots", err).
					WithContext("table", snapshotTables[kind])
			}
			continue
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, firstErr
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// Ping implements SnapshotStore
func (s *PostgresStore) Ping(ctx context.Context) error {
	if p, ok := s.exec.(pinger); ok {
		return p.PingContext(ctx)
	}
	return nil
}

// Close implements SnapshotStore
func (s *PostgresStore) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
