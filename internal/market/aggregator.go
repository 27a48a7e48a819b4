// Package market routes market data requests across a primary exchange
// provider and a fallback price provider.
package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"marketcache/internal/cache"
	apperrors "marketcache/internal/errors"
	"marketcache/internal/logger"
	"marketcache/internal/provider/coingecko"
	"marketcache/internal/types"
)

// BundleLimits sizes the sub-fetches of the composite bundles.
type BundleLimits struct {
	Trades         int
	OrderbookDepth int
	KlineInterval  string
	Klines         int
	Analysis       int
}

// DefaultBundleLimits returns the limits used when none are configured.
func DefaultBundleLimits() BundleLimits {
	return BundleLimits{
		Trades:         50,
		OrderbookDepth: 50,
		KlineInterval:  "1h",
		Klines:         100,
		Analysis:       24,
	}
}

// Aggregator combines the providers. None of its market data operations
// return errors: failed branches become empty fields and log lines.
type Aggregator struct {
	primary     PrimaryProvider
	fallback    FallbackProvider
	store       *cache.Store
	instruments map[string]string
	timeout     time.Duration
	concurrency int64
	limits      BundleLimits
	budget      *Budget
	recorder    Recorder
	log         logger.Logger
	now         func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithStore routes primary fetches through the fetch-through cache.
func WithStore(s *cache.Store) Option {
	return func(a *Aggregator) { a.store = s }
}

// WithInstruments replaces the asset id to instrument table.
func WithInstruments(m map[string]string) Option {
	return func(a *Aggregator) { a.instruments = m }
}

// WithFetchTimeout bounds every individual provider call.
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithConcurrency bounds parallel primary ticker fetches.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = int64(n)
		}
	}
}

// WithBundleLimits sets the sub-fetch sizes.
func WithBundleLimits(l BundleLimits) Option {
	return func(a *Aggregator) { a.limits = l }
}

// WithBudget sets the indicative rate budget.
func WithBudget(b *Budget) Option {
	return func(a *Aggregator) { a.budget = b }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) { a.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// WithClock sets the clock used for bundle timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an aggregator over primary and fallback.
func NewAggregator(primary PrimaryProvider, fallback FallbackProvider, opts ...Option) *Aggregator {
	a := &Aggregator{
		primary:     primary,
		fallback:    fallback,
		instruments: DefaultInstruments,
		timeout:     10 * time.Second,
		concurrency: 8,
		limits:      DefaultBundleLimits(),
		budget:      NewBudget(nil),
		recorder:    nopRecorder{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.GetGlobalLogger()
	}
	a.log = a.log.WithField("component", "aggregator")
	return a
}

// InstrumentFor resolves a user symbol to the primary instrument id. Input
// that already names a USDT instrument is passed through.
func (a *Aggregator) InstrumentFor(symbol string) (string, bool) {
	if inst, ok := a.instruments[NormalizeSymbol(symbol)]; ok {
		return inst, true
	}
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(upper, "USDT") && len(upper) > len("USDT") && !strings.ContainsAny(upper, "/-_ ") {
		return upper, true
	}
	return "", false
}

func primaryConfigured(p PrimaryProvider) bool {
	return p != nil && p.Configured()
}

func fallbackConfigured(f FallbackProvider) bool {
	return f != nil && f.Configured()
}

// observed runs fn under the per-fetch timeout and records its outcome.
// A timeout surfaces as an UPSTREAM_TIMEOUT error like any other failure.
func observed[T any](ctx context.Context, a *Aggregator, provider, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	a.budget.Record(provider)
	v, err := fn(ctx)
	if err != nil && !apperrors.IsAppError(err) {
		err = apperrors.Upstream(provider, op, err)
	}
	a.recorder.ObserveProviderCall(provider, op, time.Since(start), err)
	return v, err
}

// GetAggregatedPrices resolves each symbol through the primary provider when
// it has an instrument mapping, then fills every remaining gap with one
// batched fallback call. The result is keyed by normalized symbol; symbols
// neither provider could price are absent.
func (a *Aggregator) GetAggregatedPrices(ctx context.Context, symbols []string, vsCurrency string) map[string]types.AggregatedPrice {
	results := make(map[string]types.AggregatedPrice, len(symbols))

	var ordered []string
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		n := NormalizeSymbol(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		ordered = append(ordered, n)
	}
	if len(ordered) == 0 {
		return results
	}

	if primaryConfigured(a.primary) && primaryQuotes(vsCurrency) {
		a.primaryPass(ctx, ordered, results)
	}

	var missing []string
	for _, id := range ordered {
		if _, ok := results[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		a.fallbackPass(ctx, missing, vsCurrency, results)
	}

	for _, p := range results {
		a.recorder.RecordPriceSource(string(p.Source))
	}
	return results
}

// primaryQuotes reports whether the primary's USDT instruments can stand in
// for vsCurrency.
func primaryQuotes(vsCurrency string) bool {
	switch strings.ToLower(strings.TrimSpace(vsCurrency)) {
	case "", "usd", "usdt":
		return true
	}
	return false
}

func (a *Aggregator) primaryPass(ctx context.Context, ids []string, results map[string]types.AggregatedPrice) {
	var (
		mu  sync.Mutex
		g   errgroup.Group
		sem = semaphore.NewWeighted(a.concurrency)
	)
	name := a.primary.Name()

	for _, id := range ids {
		inst, ok := a.instruments[id]
		if !ok {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		id, inst := id, inst
		g.Go(func() error {
			defer sem.Release(1)

			ticker, err := a.ticker(ctx, inst)
			if err != nil {
				a.log.Debug("Primary ticker fetch failed", "symbol", id, "instrument", inst, "error", err)
				return nil
			}
			if !ticker.Valid() {
				a.log.Debug("Primary ticker has no usable price", "symbol", id, "instrument", inst)
				return nil
			}

			mu.Lock()
			results[id] = types.AggregatedPrice{
				Symbol:       id,
				Price:        ticker.LastPrice,
				Change24h:    ticker.Change24h,
				Volume24h:    ticker.Volume24h,
				HighPrice24h: ticker.HighPrice24h,
				LowPrice24h:  ticker.LowPrice24h,
				Timestamp:    ticker.UpdatedAt,
				Source:       types.SourcePrimary,
				Provider:     name,
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (a *Aggregator) ticker(ctx context.Context, inst string) (*types.Ticker, error) {
	fetch := func(ctx context.Context, symbol string) (*types.Ticker, error) {
		return observed(ctx, a, a.primary.Name(), "ticker", func(ctx context.Context) (*types.Ticker, error) {
			return a.primary.GetTicker(ctx, symbol)
		})
	}
	if a.store != nil {
		return a.store.GetOrFetchTicker(ctx, inst, fetch)
	}
	return fetch(ctx, inst)
}

func (a *Aggregator) fallbackPass(ctx context.Context, ids []string, vsCurrency string, results map[string]types.AggregatedPrice) {
	if !fallbackConfigured(a.fallback) {
		a.log.Debug("Fallback provider not configured", "unresolved", len(ids))
		return
	}
	name := a.fallback.Name()

	prices, err := observed(ctx, a, name, "prices", func(ctx context.Context) (map[string]coingecko.Price, error) {
		return a.fallback.GetPrices(ctx, ids, vsCurrency)
	})
	if err != nil {
		a.log.Warn("Fallback price lookup failed", "symbols", len(ids), "error", err)
		return
	}

	now := a.now()
	for _, id := range ids {
		p, ok := prices[id]
		if !ok || p.Price <= 0 {
			continue
		}
		ts := p.UpdatedAt
		if ts.IsZero() {
			ts = now
		}
		results[id] = types.AggregatedPrice{
			Symbol:    id,
			Price:     p.Price,
			Change24h: p.Change24h,
			Volume24h: p.Volume24h,
			Timestamp: ts,
			Source:    types.SourceFallback,
			Provider:  name,
		}
	}
}

// GetTradingData fetches trades, orderbook, klines and funding concurrently.
// Each failed branch leaves its field empty; the call itself never fails.
func (a *Aggregator) GetTradingData(ctx context.Context, symbol string) *types.TradingDataBundle {
	bundle := &types.TradingDataBundle{
		Symbol:       symbol,
		RecentTrades: []types.Trade{},
		Klines:       []types.Kline{},
		Timestamp:    a.now(),
	}

	inst, ok := a.InstrumentFor(symbol)
	if !ok {
		a.log.Debug("No instrument for symbol", "symbol", symbol)
		return bundle
	}
	bundle.Symbol = inst
	if !primaryConfigured(a.primary) {
		a.log.Debug("Primary provider not configured", "symbol", inst)
		return bundle
	}

	var (
		g       errgroup.Group
		trades  Result[[]types.Trade]
		book    Result[*types.OrderBook]
		klines  Result[[]types.Kline]
		funding Result[*types.FundingRate]
		name    = a.primary.Name()
		limits  = a.limits
	)

	settle(ctx, &g, &trades, func(ctx context.Context) ([]types.Trade, error) {
		fetch := func(ctx context.Context, s string, limit int) ([]types.Trade, error) {
			return observed(ctx, a, name, "recent_trades", func(ctx context.Context) ([]types.Trade, error) {
				return a.primary.GetRecentTrades(ctx, s, limit)
			})
		}
		if a.store != nil {
			return a.store.GetOrFetchRecentTrades(ctx, inst, limits.Trades, fetch)
		}
		return fetch(ctx, inst, limits.Trades)
	})
	settle(ctx, &g, &book, func(ctx context.Context) (*types.OrderBook, error) {
		fetch := func(ctx context.Context, s string, depth int) (*types.OrderBook, error) {
			return observed(ctx, a, name, "orderbook", func(ctx context.Context) (*types.OrderBook, error) {
				return a.primary.GetOrderBook(ctx, s, depth)
			})
		}
		if a.store != nil {
			return a.store.GetOrFetchOrderbook(ctx, inst, limits.OrderbookDepth, fetch)
		}
		return fetch(ctx, inst, limits.OrderbookDepth)
	})
	settle(ctx, &g, &klines, func(ctx context.Context) ([]types.Kline, error) {
		fetch := func(ctx context.Context, s, interval string, limit int) ([]types.Kline, error) {
			return observed(ctx, a, name, "klines", func(ctx context.Context) ([]types.Kline, error) {
				return a.primary.GetKlines(ctx, s, interval, limit)
			})
		}
		if a.store != nil {
			return a.store.GetOrFetchKlines(ctx, inst, limits.KlineInterval, limits.Klines, fetch)
		}
		return fetch(ctx, inst, limits.KlineInterval, limits.Klines)
	})
	// funding is optional enrichment; its failure is swallowed here
	settle(ctx, &g, &funding, func(ctx context.Context) (*types.FundingRate, error) {
		rate, err := observed(ctx, a, name, "funding", func(ctx context.Context) (*types.FundingRate, error) {
			return a.primary.GetFundingRate(ctx, inst)
		})
		if err != nil {
			a.log.Debug("Funding rate unavailable", "symbol", inst, "error", err)
			return nil, nil
		}
		return rate, nil
	})
	_ = g.Wait()

	if trades.OK() && trades.Value != nil {
		bundle.RecentTrades = trades.Value
	} else if !trades.OK() {
		a.log.Warn("Recent trades fetch failed", "symbol", inst, "error", trades.Err)
	}
	if book.OK() {
		bundle.Orderbook = book.Value
	} else {
		a.log.Warn("Orderbook fetch failed", "symbol", inst, "error", book.Err)
	}
	if klines.OK() && klines.Value != nil {
		bundle.Klines = klines.Value
	} else if !klines.OK() {
		a.log.Warn("Klines fetch failed", "symbol", inst, "error", klines.Err)
	}
	bundle.Funding = funding.Value
	return bundle
}

// GetMarketAnalysis fetches liquidations, long/short ratio and open interest
// concurrently with the same settle-all semantics as GetTradingData.
func (a *Aggregator) GetMarketAnalysis(ctx context.Context, symbol string) *types.MarketAnalysisBundle {
	empty := &types.MarketAnalysisBundle{
		Symbol:         symbol,
		Liquidations:   []types.Liquidation{},
		LongShortRatio: []types.LongShortRatio{},
		OpenInterest:   []types.OpenInterest{},
		Timestamp:      a.now(),
	}

	inst, ok := a.InstrumentFor(symbol)
	if !ok {
		a.log.Debug("No instrument for symbol", "symbol", symbol)
		return empty
	}
	empty.Symbol = inst
	if !primaryConfigured(a.primary) {
		a.log.Debug("Primary provider not configured", "symbol", inst)
		return empty
	}

	if a.store == nil {
		return a.analysis(ctx, inst)
	}
	bundle, err := a.store.GetOrFetchMarketAnalysis(ctx, inst, func(ctx context.Context, s string) (*types.MarketAnalysisBundle, error) {
		return a.analysis(ctx, s), nil
	})
	if err != nil || bundle == nil {
		return empty
	}
	return bundle
}

func (a *Aggregator) analysis(ctx context.Context, inst string) *types.MarketAnalysisBundle {
	var (
		g      errgroup.Group
		liqs   Result[[]types.Liquidation]
		ratios Result[[]types.LongShortRatio]
		oi     Result[[]types.OpenInterest]
		name   = a.primary.Name()
		limit  = a.limits.Analysis
	)

	settle(ctx, &g, &liqs, func(ctx context.Context) ([]types.Liquidation, error) {
		return observed(ctx, a, name, "liquidations", func(ctx context.Context) ([]types.Liquidation, error) {
			return a.primary.GetLiquidations(ctx, inst)
		})
	})
	settle(ctx, &g, &ratios, func(ctx context.Context) ([]types.LongShortRatio, error) {
		return observed(ctx, a, name, "long_short_ratio", func(ctx context.Context) ([]types.LongShortRatio, error) {
			return a.primary.GetLongShortRatio(ctx, inst, limit)
		})
	})
	settle(ctx, &g, &oi, func(ctx context.Context) ([]types.OpenInterest, error) {
		return observed(ctx, a, name, "open_interest", func(ctx context.Context) ([]types.OpenInterest, error) {
			return a.primary.GetOpenInterest(ctx, inst, limit)
		})
	})
	_ = g.Wait()

	bundle := &types.MarketAnalysisBundle{
		Symbol:         inst,
		Liquidations:   []types.Liquidation{},
		LongShortRatio: []types.LongShortRatio{},
		OpenInterest:   []types.OpenInterest{},
		Timestamp:      a.now(),
	}
	if liqs.OK() && liqs.Value != nil {
		bundle.Liquidations = liqs.Value
	} else if !liqs.OK() && !apperrors.Is(liqs.Err, apperrors.ErrUnsupported) {
		a.log.Warn("Liquidations fetch failed", "symbol", inst, "error", liqs.Err)
	}
	if ratios.OK() && ratios.Value != nil {
		bundle.LongShortRatio = ratios.Value
	} else if !ratios.OK() {
		a.log.Warn("Long/short ratio fetch failed", "symbol", inst, "error", ratios.Err)
	}
	if oi.OK() && oi.Value != nil {
		bundle.OpenInterest = oi.Value
	} else if !oi.OK() {
		a.log.Warn("Open interest fetch failed", "symbol", inst, "error", oi.Err)
	}
	return bundle
}

// GetWalletInfo returns the primary account balance. Without credentials it
// fails with ErrProviderUnconfigured.
func (a *Aggregator) GetWalletInfo(ctx context.Context) (*types.WalletBalance, error) {
	if !primaryConfigured(a.primary) {
		return nil, apperrors.Unconfigured(providerName(a.primary, "primary"))
	}
	return observed(ctx, a, a.primary.Name(), "wallet_balance", a.primary.GetWalletBalance)
}

// GetDepositWithdrawInfo returns deposit and withdrawal chains for coin.
func (a *Aggregator) GetDepositWithdrawInfo(ctx context.Context, coin string) ([]types.CoinInfo, error) {
	if !primaryConfigured(a.primary) {
		return nil, apperrors.Unconfigured(providerName(a.primary, "primary"))
	}
	return observed(ctx, a, a.primary.Name(), "coin_info", func(ctx context.Context) ([]types.CoinInfo, error) {
		return a.primary.GetCoinInfo(ctx, coin)
	})
}

type namer interface{ Name() string }

func providerName(p namer, def string) string {
	if p == nil {
		return def
	}
	return p.Name()
}
