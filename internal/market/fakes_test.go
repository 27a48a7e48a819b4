package market

import (
	"context"
	"sync"

	apperrors "marketcache/internal/errors"
	"marketcache/internal/provider/coingecko"
	"marketcache/internal/types"
)

type fakePrimary struct {
	configured bool

	mu    sync.Mutex
	calls map[string]int

	tickers   map[string]*types.Ticker
	tickerErr error
	trades    []types.Trade
	tradesErr error
	book      func(ctx context.Context) (*types.OrderBook, error)
	klines    []types.Kline
	fundErr   error
	ratios    []types.LongShortRatio
	oi        []types.OpenInterest
	oiErr     error
	pingErr   error
	wallet    *types.WalletBalance
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{configured: true, calls: map[string]int{}, tickers: map[string]*types.Ticker{}}
}

func (f *fakePrimary) count(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakePrimary) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakePrimary) Name() string     { return "bybit" }
func (f *fakePrimary) Configured() bool { return f.configured }

func (f *fakePrimary) Ping(ctx context.Context) error {
	f.count("ping")
	return f.pingErr
}

func (f *fakePrimary) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	f.count("ticker")
	if f.tickerErr != nil {
		return nil, f.tickerErr
	}
	return f.tickers[symbol], nil
}

func (f *fakePrimary) GetTickers(ctx context.Context, symbols []string) ([]types.Ticker, error) {
	f.count("tickers")
	var out []types.Ticker
	for _, s := range symbols {
		if t, ok := f.tickers[s]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakePrimary) GetOrderBook(ctx context.Context, symbol string, depth int) (*types.OrderBook, error) {
	f.count("orderbook")
	if f.book != nil {
		return f.book(ctx)
	}
	return &types.OrderBook{Symbol: symbol, Bids: []types.Level{{Price: 1, Quantity: 1}}}, nil
}

func (f *fakePrimary) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	f.count("trades")
	return f.trades, f.tradesErr
}

func (f *fakePrimary) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error) {
	f.count("klines")
	return f.klines, nil
}

func (f *fakePrimary) GetFundingRate(ctx context.Context, symbol string) (*types.FundingRate, error) {
	f.count("funding")
	if f.fundErr != nil {
		return nil, f.fundErr
	}
	return &types.FundingRate{Symbol: symbol, Rate: 0.0001}, nil
}

func (f *fakePrimary) GetLiquidations(ctx context.Context, symbol string) ([]types.Liquidation, error) {
	f.count("liquidations")
	return nil, apperrors.Unsupported("bybit", "liquidations")
}

func (f *fakePrimary) GetLongShortRatio(ctx context.Context, symbol string, limit int) ([]types.LongShortRatio, error) {
	f.count("ratios")
	return f.ratios, nil
}

func (f *fakePrimary) GetOpenInterest(ctx context.Context, symbol string, limit int) ([]types.OpenInterest, error) {
	f.count("oi")
	return f.oi, f.oiErr
}

func (f *fakePrimary) GetWalletBalance(ctx context.Context) (*types.WalletBalance, error) {
	f.count("wallet")
	return f.wallet, nil
}

func (f *fakePrimary) GetCoinInfo(ctx context.Context, coin string) ([]types.CoinInfo, error) {
	f.count("coin_info")
	return []types.CoinInfo{{Coin: coin}}, nil
}

type fakeFallback struct {
	configured bool
	apiKey     bool
	prices     map[string]coingecko.Price
	err        error
	pingErr    error

	mu       sync.Mutex
	requests [][]string
}

func (f *fakeFallback) Name() string     { return "coingecko" }
func (f *fakeFallback) Configured() bool { return f.configured }
func (f *fakeFallback) HasAPIKey() bool  { return f.apiKey }

func (f *fakeFallback) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeFallback) GetPrices(ctx context.Context, ids []string, vsCurrency string) (map[string]coingecko.Price, error) {
	f.mu.Lock()
	f.requests = append(f.requests, append([]string(nil), ids...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]coingecko.Price{}
	for _, id := range ids {
		if p, ok := f.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
