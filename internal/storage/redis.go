package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketcache/internal/config"
	apperrors "marketcache/internal/errors"
	"marketcache/internal/types"
)

// RedisStore keeps each snapshot under its own key with a native expiry, so
// DeleteExpired has nothing to do.
type RedisStore struct {
	client redis.Cmdable
	closer func() error
	prefix string
	now    func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "marketcache"
	}
	return &RedisStore{client: client, closer: client.Close, prefix: prefix, now: time.Now}
}

// Key returns the key a snapshot of kind for symbol is stored under.
func (r *RedisStore) Key(kind types.SyncKind, symbol string) string {
	return fmt.Sprintf("%s:snapshot:%s:%s", r.prefix, kind, symbol)
}

// Upsert implements SnapshotStore. A record that has already expired is not written.
func (r *RedisStore) Upsert(ctx context.Context, rec types.SyncRecord) error {
	ttl := rec.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrCodePersistence, "failed to marshal snapshot", err).
			WithContext("symbol", rec.Symbol)
	}

	if err := r.client.Set(ctx, r.Key(rec.Kind, rec.Symbol), payload, ttl).Err(); err != nil {
		return apperrors.NewAppError(apperrors.ErrCodePersistence, "failed to save "+string(rec.Kind)+" snapshot", err).
			WithContext("symbol", rec.Symbol)
	}
	return nil
}

// Get reads back a snapshot; ok is false when it is missing or expired.
func (r *RedisStore) Get(ctx context.Context, kind types.SyncKind, symbol string) (rec types.SyncRecord, ok bool, err error) {
	raw, err := r.client.Get(ctx, r.Key(kind, symbol)).Bytes()
	if err == redis.Nil {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, apperrors.NewAppError(apperrors.ErrCodePersistence, "failed to read snapshot", err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, false, apperrors.NewAppError(apperrors.ErrCodePersistence, "failed to decode snapshot", err)
	}
	return rec, true, nil
}

// DeleteExpired implements SnapshotStore
func (r *RedisStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

// Ping implements SnapshotStore
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements SnapshotStore
func (r *RedisStore) Close() error {
	if r.closer != nil {
		return r.closer()
	}
	return nil
}
