package market

import (
	"context"
	"time"

	"marketcache/internal/provider/coingecko"
	"marketcache/internal/types"
)

// PrimaryProvider is the exchange API that serves every data kind.
type PrimaryProvider interface {
	Name() string
	Configured() bool
	Ping(ctx context.Context) error

	GetTicker(ctx context.Context, symbol string) (*types.Ticker, error)
	GetTickers(ctx context.Context, symbols []string) ([]types.Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*types.OrderBook, error)
	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error)
	GetFundingRate(ctx context.Context, symbol string) (*types.FundingRate, error)

	GetLiquidations(ctx context.Context, symbol string) ([]types.Liquidation, error)
	GetLongShortRatio(ctx context.Context, symbol string, limit int) ([]types.LongShortRatio, error)
	GetOpenInterest(ctx context.Context, symbol string, limit int) ([]types.OpenInterest, error)

	GetWalletBalance(ctx context.Context) (*types.WalletBalance, error)
	GetCoinInfo(ctx context.Context, coin string) ([]types.CoinInfo, error)
}

// FallbackProvider only resolves spot prices, in one batched call.
type FallbackProvider interface {
	Name() string
	Configured() bool
	Ping(ctx context.Context) error
	GetPrices(ctx context.Context, ids []string, vsCurrency string) (map[string]coingecko.Price, error)
}

// Recorder receives provider call and price source observations.
type Recorder interface {
	ObserveProviderCall(provider, op string, duration time.Duration, err error)
	RecordPriceSource(source string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveProviderCall(string, string, time.Duration, error) {}
func (nopRecorder) RecordPriceSource(string)                                 {}
