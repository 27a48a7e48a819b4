package market

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestSettleCollectsEveryBranch(t *testing.T) {
	var (
		g      errgroup.Group
		ok     Result[int]
		failed Result[int]
		panics Result[string]
	)

	settle(context.Background(), &g, &ok, func(ctx context.Context) (int, error) { return 7, nil })
	settle(context.Background(), &g, &failed, func(ctx context.Context) (int, error) { return 0, errors.New("nope") })
	settle(context.Background(), &g, &panics, func(ctx context.Context) (string, error) { panic("kaboom") })

	if err := g.Wait(); err != nil {
		t.Fatalf("group error = %v, want nil", err)
	}
	if !ok.OK() || ok.Value != 7 {
		t.Errorf("ok = %+v", ok)
	}
	if failed.OK() {
		t.Error("failed branch reported success")
	}
	if panics.OK() {
		t.Error("panicking branch reported success")
	}
}

func TestBudgetRemaining(t *testing.T) {
	b := NewBudget(map[string]int{"bybit": 10})
	if got := b.Remaining("bybit"); got != 10 {
		t.Fatalf("Remaining = %d, want 10", got)
	}
	for i := 0; i < 4; i++ {
		b.Record("bybit")
	}
	if got := b.Remaining("bybit"); got < 5 || got > 6 {
		t.Errorf("Remaining = %d, want about 6", got)
	}
	b.Record("unknown")
	if got := b.Remaining("unknown"); got != 0 {
		t.Errorf("Remaining(unknown) = %d, want 0", got)
	}
	b.SetLimit("bybit", 0)
	if got := b.Limit("bybit"); got != 0 {
		t.Errorf("Limit after reset = %d", got)
	}
}
