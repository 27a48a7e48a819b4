package cache

import (
	"context"
	"strings"
	"time"

	"marketcache/internal/types"
)

// Kind names a cached data family. Each kind has its own default lifetime.
type Kind string

const (
	KindTicker    Kind = "ticker"
	KindOrderbook Kind = "orderbook"
	KindTrades    Kind = "trades"
	KindKlines    Kind = "klines"
	KindAnalysis  Kind = "analysis"
)

// keyNamespace prefixes every fetch-through key with the primary provider name.
const keyNamespace = "bybit"

// DefaultTTLs holds the per-kind lifetimes; faster moving data expires sooner.
var DefaultTTLs = map[Kind]time.Duration{
	KindTicker:    30 * time.Second,
	KindOrderbook: 20 * time.Second,
	KindTrades:    10 * time.Second,
	KindKlines:    5 * time.Minute,
	KindAnalysis:  2 * time.Minute,
}

// TTLFor returns the lifetime used for kind.
func (s *Store) TTLFor(kind Kind) time.Duration {
	if ttl, ok := s.kindTTLs[kind]; ok {
		return ttl
	}
	return s.defaultTTL
}

// KeyFor derives the cache key for kind and params.
func KeyFor(kind Kind, params map[string]interface{}) string {
	return GenerateKey(keyNamespace+":"+string(kind), params)
}

// TickerKey is the key a single ticker for symbol is stored under.
func TickerKey(symbol string) string {
	return KeyFor(KindTicker, map[string]interface{}{"symbol": normalize(symbol)})
}

// OrderbookKey is the key an orderbook snapshot is stored under.
func OrderbookKey(symbol string, depth int) string {
	return KeyFor(KindOrderbook, map[string]interface{}{"symbol": normalize(symbol), "depth": depth})
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// GetOrFetch is the cache-aside algorithm shared by every helper. Only a
// successful, non-empty result is stored; errors and empty results go back to
// the caller uncached so the next call asks the source again.
func GetOrFetch[T any](ctx context.Context, s *Store, kind Kind, params map[string]interface{}, empty func(T) bool, fetch func(context.Context) (T, error)) (T, error) {
	key := KeyFor(kind, params)
	if v, ok := Get[T](s, key); ok {
		s.observer.ObserveLookup(string(kind), true)
		return v, nil
	}
	s.observer.ObserveLookup(string(kind), false)

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	if empty(v) {
		return v, nil
	}
	s.Set(key, v, s.TTLFor(kind))
	return v, nil
}

type (
	TickerFetcher      func(ctx context.Context, symbol string) (*types.Ticker, error)
	BatchTickerFetcher func(ctx context.Context, symbols []string) ([]types.Ticker, error)
	OrderbookFetcher   func(ctx context.Context, symbol string, depth int) (*types.OrderBook, error)
	KlinesFetcher      func(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error)
	TradesFetcher      func(ctx context.Context, symbol string, limit int) ([]types.Trade, error)
	AnalysisFetcher    func(ctx context.Context, symbol string) (*types.MarketAnalysisBundle, error)
)

// GetOrFetchTicker returns the cached ticker for symbol or fetches it.
func (s *Store) GetOrFetchTicker(ctx context.Context, symbol string, fetch TickerFetcher) (*types.Ticker, error) {
	symbol = normalize(symbol)
	return GetOrFetch(ctx, s, KindTicker, map[string]interface{}{"symbol": symbol},
		func(t *types.Ticker) bool { return !t.Valid() },
		func(ctx context.Context) (*types.Ticker, error) { return fetch(ctx, symbol) })
}

// GetOrFetchOrderbook returns the cached orderbook for symbol and depth or fetches it.
func (s *Store) GetOrFetchOrderbook(ctx context.Context, symbol string, depth int, fetch OrderbookFetcher) (*types.OrderBook, error) {
	symbol = normalize(symbol)
	return GetOrFetch(ctx, s, KindOrderbook, map[string]interface{}{"symbol": symbol, "depth": depth},
		func(ob *types.OrderBook) bool { return ob == nil || len(ob.Bids) == 0 && len(ob.Asks) == 0 },
		func(ctx context.Context) (*types.OrderBook, error) { return fetch(ctx, symbol, depth) })
}

// GetOrFetchKlines returns cached candles or fetches them.
func (s *Store) GetOrFetchKlines(ctx context.Context, symbol, interval string, limit int, fetch KlinesFetcher) ([]types.Kline, error) {
	symbol = normalize(symbol)
	params := map[string]interface{}{"symbol": symbol, "interval": interval, "limit": limit}
	return GetOrFetch(ctx, s, KindKlines, params,
		func(k []types.Kline) bool { return len(k) == 0 },
		func(ctx context.Context) ([]types.Kline, error) { return fetch(ctx, symbol, interval, limit) })
}

// GetOrFetchRecentTrades returns cached trades or fetches them.
func (s *Store) GetOrFetchRecentTrades(ctx context.Context, symbol string, limit int, fetch TradesFetcher) ([]types.Trade, error) {
	symbol = normalize(symbol)
	return GetOrFetch(ctx, s, KindTrades, map[string]interface{}{"symbol": symbol, "limit": limit},
		func(t []types.Trade) bool { return len(t) == 0 },
		func(ctx context.Context) ([]types.Trade, error) { return fetch(ctx, symbol, limit) })
}

// GetOrFetchMarketAnalysis returns the cached analysis bundle or fetches it.
func (s *Store) GetOrFetchMarketAnalysis(ctx context.Context, symbol string, fetch AnalysisFetcher) (*types.MarketAnalysisBundle, error) {
	symbol = normalize(symbol)
	return GetOrFetch(ctx, s, KindAnalysis, map[string]interface{}{"symbol": symbol},
		func(b *types.MarketAnalysisBundle) bool { return b.Empty() },
		func(ctx context.Context) (*types.MarketAnalysisBundle, error) { return fetch(ctx, symbol) })
}

// GetOrFetchMultipleTickers serves hits from the cache and resolves every miss
// with one batched fetch. The result is aligned with symbols; a symbol the
// batch did not return stays nil. On fetch error the cached hits are still
// returned together with the error.
func (s *Store) GetOrFetchMultipleTickers(ctx context.Context, symbols []string, fetch BatchTickerFetcher) ([]*types.Ticker, error) {
	out := make([]*types.Ticker, len(symbols))
	missIdx := make(map[string][]int)
	var missing []string

	for i, raw := range symbols {
		symbol := normalize(raw)
		if t, ok := Get[*types.Ticker](s, TickerKey(symbol)); ok {
			s.observer.ObserveLookup(string(KindTicker), true)
			out[i] = t
			continue
		}
		s.observer.ObserveLookup(string(KindTicker), false)
		if _, seen := missIdx[symbol]; !seen {
			missing = append(missing, symbol)
		}
		missIdx[symbol] = append(missIdx[symbol], i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := fetch(ctx, missing)
	if err != nil {
		return out, err
	}

	ttl := s.TTLFor(KindTicker)
	for i := range fetched {
		t := fetched[i]
		symbol := normalize(t.Symbol)
		idx, wanted := missIdx[symbol]
		if !wanted || !t.Valid() {
			continue
		}
		s.Set(TickerKey(symbol), &t, ttl)
		for _, j := range idx {
			out[j] = &t
		}
	}
	return out, nil
}
