package scheduler

import (
	"context"

	"marketcache/internal/cache"
	"marketcache/internal/types"
)

func (s *Scheduler) fetchCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.FetchTimeout)
}

// persist upserts one record. A failure is logged and counted, never returned,
// so the remaining records of the batch are still written.
func (s *Scheduler) persist(ctx context.Context, rec types.SyncRecord) bool {
	err := s.store.Upsert(ctx, rec)
	s.recorder.RecordSyncWrite(string(rec.Kind), err)
	if err != nil {
		s.log.WithContext(ctx).Warn("Failed to persist snapshot", "kind", rec.Kind, "symbol", rec.Symbol, "error", err)
		return false
	}
	return true
}

// SyncTickers refreshes the hot symbol tickers in one batched call, primes
// the cache and persists a snapshot per symbol.
func (s *Scheduler) SyncTickers(ctx context.Context) (int, error) {
	if !s.Configured() {
		return 0, nil
	}

	fetchCtx, cancel := s.fetchCtx(ctx)
	tickers, err := s.source.GetTickers(fetchCtx, s.opts.Symbols)
	cancel()
	if err != nil {
		return 0, err
	}

	now := s.opts.Now()
	written := 0
	for i := range tickers {
		t := tickers[i]
		if !t.Valid() {
			continue
		}
		if s.cache != nil {
			s.cache.Set(cache.TickerKey(t.Symbol), &t, s.cache.TTLFor(cache.KindTicker))
		}
		s.recorder.RecordMarketDataUpdate(t.Symbol, string(types.SyncTicker))
		if s.persist(ctx, types.SyncRecord{
			Kind:      types.SyncTicker,
			Symbol:    t.Symbol,
			Data:      &t,
			SyncedAt:  now,
			ExpiresAt: now.Add(s.opts.TickerLifetime),
		}) {
			written++
		}
	}
	return written, nil
}

// SyncOrderbooks refreshes each hot symbol's orderbook. A symbol whose fetch
// fails is skipped.
func (s *Scheduler) SyncOrderbooks(ctx context.Context) (int, error) {
	if !s.Configured() {
		return 0, nil
	}

	depth := s.opts.OrderbookDepth
	written := 0
	for _, symbol := range s.opts.Symbols {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}

		fetchCtx, cancel := s.fetchCtx(ctx)
		book, err := s.source.GetOrderBook(fetchCtx, symbol, depth)
		cancel()
		if err != nil {
			s.log.WithContext(ctx).Warn("Orderbook fetch failed", "symbol", symbol, "error", err)
			continue
		}
		if book == nil || len(book.Bids) == 0 && len(book.Asks) == 0 {
			continue
		}

		if s.cache != nil {
			s.cache.Set(cache.OrderbookKey(symbol, depth), book, s.cache.TTLFor(cache.KindOrderbook))
		}
		s.recorder.RecordMarketDataUpdate(symbol, string(types.SyncOrderbook))

		now := s.opts.Now()
		if s.persist(ctx, types.SyncRecord{
			Kind:      types.SyncOrderbook,
			Symbol:    symbol,
			Data:      book,
			SyncedAt:  now,
			ExpiresAt: now.Add(s.opts.OrderbookLifetime),
		}) {
			written++
		}
	}
	return written, nil
}

// SyncInstruments refreshes the full instrument list.
func (s *Scheduler) SyncInstruments(ctx context.Context) (int, error) {
	if !s.Configured() || s.instruments == nil {
		return 0, nil
	}

	instruments, err := s.instruments.LoadInstruments(ctx)
	if err != nil {
		return 0, err
	}

	now := s.opts.Now()
	expires := now.Add(s.opts.InstrumentLifetime)
	written := 0
	for _, inst := range instruments {
		if s.persist(ctx, types.SyncRecord{
			Kind:      types.SyncInstrument,
			Symbol:    inst.Symbol,
			Data:      inst,
			SyncedAt:  now,
			ExpiresAt: expires,
		}) {
			written++
		}
	}
	return written, nil
}

// CleanupExpired removes durable snapshots past their expiry.
func (s *Scheduler) CleanupExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpired(ctx)
	return int(n), err
}

