package types

import "time"

// Ticker represents a 24h rolling ticker for one instrument
type Ticker struct {
	Symbol       string    `json:"symbol"`
	LastPrice    float64   `json:"last_price"`
	Change24h    float64   `json:"change_24h"` // percent
	Volume24h    float64   `json:"volume_24h"`
	Turnover24h  float64   `json:"turnover_24h"`
	HighPrice24h float64   `json:"high_price_24h"`
	LowPrice24h  float64   `json:"low_price_24h"`
	Bid1Price    float64   `json:"bid1_price"`
	Ask1Price    float64   `json:"ask1_price"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Valid reports whether the ticker carries a usable price.
func (t *Ticker) Valid() bool {
	return t != nil && t.LastPrice > 0
}

// OrderBook represents a market order book
type OrderBook struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	UpdateID  int64     `json:"update_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Level represents a price level in the order book
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Trade represents a single executed trade
type Trade struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Side      string    `json:"side"` // "Buy" or "Sell"
	Timestamp time.Time `json:"timestamp"`
}

// Kline represents a candlestick data point
type Kline struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Turnover float64   `json:"turnover"`
}

// FundingRate represents the funding rate for a perpetual contract
type FundingRate struct {
	Symbol    string    `json:"symbol"`
	Rate      float64   `json:"rate"`
	Timestamp time.Time `json:"timestamp"`
}

// Liquidation represents a forced position close
type Liquidation struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// LongShortRatio represents the account long/short split for a period
type LongShortRatio struct {
	Symbol    string    `json:"symbol"`
	BuyRatio  float64   `json:"buy_ratio"`
	SellRatio float64   `json:"sell_ratio"`
	Timestamp time.Time `json:"timestamp"`
}

// OpenInterest represents the total open interest for a symbol
type OpenInterest struct {
	Symbol    string    `json:"symbol"`
	Value     float64   `json:"value"` // OI in contracts
	Timestamp time.Time `json:"timestamp"`
}

// Instrument is one tradable contract from the exchange listing
type Instrument struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Active bool   `json:"active"`
}

// PriceSource tags which provider satisfied an aggregated price
type PriceSource string

const (
	SourcePrimary  PriceSource = "primary"
	SourceFallback PriceSource = "fallback"
)

// AggregatedPrice is the per-symbol result of a multi-provider price lookup
type AggregatedPrice struct {
	Symbol       string      `json:"symbol"`
	Price        float64     `json:"price"`
	Change24h    float64     `json:"change_24h"`
	Volume24h    float64     `json:"volume_24h"`
	HighPrice24h float64     `json:"high_price_24h,omitempty"`
	LowPrice24h  float64     `json:"low_price_24h,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Source       PriceSource `json:"source"`
	Provider     string      `json:"provider"`
}

// TradingDataBundle groups the per-symbol trading views. Each field may be empty independently.
type TradingDataBundle struct {
	Symbol       string       `json:"symbol"`
	RecentTrades []Trade      `json:"recent_trades"`
	Orderbook    *OrderBook   `json:"orderbook"`
	Klines       []Kline      `json:"klines"`
	Funding      *FundingRate `json:"funding"`
	Timestamp    time.Time    `json:"timestamp"`
}

// MarketAnalysisBundle groups the derivatives analytics for a symbol
type MarketAnalysisBundle struct {
	Symbol         string           `json:"symbol"`
	Liquidations   []Liquidation    `json:"liquidations"`
	LongShortRatio []LongShortRatio `json:"long_short_ratio"`
	OpenInterest   []OpenInterest   `json:"open_interest"`
	Timestamp      time.Time        `json:"timestamp"`
}

// Empty reports whether no sub-fetch produced data.
func (b *MarketAnalysisBundle) Empty() bool {
	return b == nil || len(b.Liquidations) == 0 && len(b.LongShortRatio) == 0 && len(b.OpenInterest) == 0
}

// WalletBalance is the unified account balance summary
type WalletBalance struct {
	AccountType           string        `json:"account_type"`
	TotalEquity           float64       `json:"total_equity"`
	TotalWalletBalance    float64       `json:"total_wallet_balance"`
	TotalAvailableBalance float64       `json:"total_available_balance"`
	Coins                 []CoinBalance `json:"coins"`
}

// CoinBalance is one coin's position inside a wallet
type CoinBalance struct {
	Coin          string  `json:"coin"`
	Equity        float64 `json:"equity"`
	WalletBalance float64 `json:"wallet_balance"`
	USDValue      float64 `json:"usd_value"`
}

// CoinInfo describes deposit/withdraw availability for a coin
type CoinInfo struct {
	Coin   string      `json:"coin"`
	Name   string      `json:"name"`
	Chains []ChainInfo `json:"chains"`
}

// ChainInfo describes one network a coin can move on
type ChainInfo struct {
	Chain         string  `json:"chain"`
	ChainType     string  `json:"chain_type"`
	Confirmations int     `json:"confirmations"`
	WithdrawFee   float64 `json:"withdraw_fee"`
	DepositMin    float64 `json:"deposit_min"`
	WithdrawMin   float64 `json:"withdraw_min"`
	Depositable   bool    `json:"depositable"`
	Withdrawable  bool    `json:"withdrawable"`
}

// SyncKind names the snapshot table a record belongs to
type SyncKind string

const (
	SyncTicker     SyncKind = "ticker"
	SyncOrderbook  SyncKind = "orderbook"
	SyncInstrument SyncKind = "instrument"
)

// SyncRecord is a symbol-keyed durable snapshot
type SyncRecord struct {
	Kind      SyncKind    `json:"kind"`
	Symbol    string      `json:"symbol"`
	Data      interface{} `json:"data"`
	SyncedAt  time.Time   `json:"synced_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}
