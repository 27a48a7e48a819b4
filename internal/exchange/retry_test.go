package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "marketcache/internal/errors"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  3,
		InitialWait: time.Millisecond,
		MaxWait:     2 * time.Millisecond,
		Factor:      2,
		Jitter:      0.1,
	}
}

func TestRetryWithResultRecovers(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, apperrors.Upstream("bybit", "ticker", errors.New("connection reset"))
		}
		return 42, nil
	}, fastRetry())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || calls != 3 {
		t.Errorf("got %d after %d calls, want 42 after 3", got, calls)
	}
}

func TestRetryWithResultStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "bad symbol", nil)
	}, fastRetry())

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithResultExhausts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return apperrors.Upstream("bybit", "ticker", errors.New("502"))
	}, fastRetry())

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
	if apperrors.CodeOf(err) != apperrors.ErrCodeUpstreamFetch {
		t.Errorf("code = %s, want wrapped upstream error", apperrors.CodeOf(err))
	}
}

func TestRetryWithResultHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry()
	cfg.InitialWait = time.Hour

	calls := 0
	_, err := RetryWithResult(ctx, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, apperrors.Upstream("bybit", "ticker", errors.New("timeout"))
	}, cfg)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := &RetryConfig{MaxWait: 50 * time.Millisecond, Factor: 10, Jitter: 0}
	if got := cfg.next(20 * time.Millisecond); got != 50*time.Millisecond {
		t.Errorf("next = %v, want cap 50ms", got)
	}
	if got := cfg.next(time.Millisecond); got != 10*time.Millisecond {
		t.Errorf("next = %v, want 10ms", got)
	}
}
