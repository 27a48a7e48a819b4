package bybit

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "marketcache/internal/errors"
	"marketcache/internal/types"
)

type rawTicker struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Price24hPcnt string `json:"price24hPcnt"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
	Volume24h    string `json:"volume24h"`
	Turnover24h  string `json:"turnover24h"`
	Bid1Price    string `json:"bid1Price"`
	Ask1Price    string `json:"ask1Price"`
}

func (r rawTicker) toTicker(at time.Time) (types.Ticker, error) {
	last, err := parseNumber(r.LastPrice)
	if err != nil {
		return types.Ticker{}, err
	}
	return types.Ticker{
		Symbol:       r.Symbol,
		LastPrice:    last,
		Change24h:    percent(r.Price24hPcnt),
		Volume24h:    number(r.Volume24h),
		Turnover24h:  number(r.Turnover24h),
		HighPrice24h: number(r.HighPrice24h),
		LowPrice24h:  number(r.LowPrice24h),
		Bid1Price:    number(r.Bid1Price),
		Ask1Price:    number(r.Ask1Price),
		UpdatedAt:    at,
	}, nil
}

func (c *Client) fetchTickers(ctx context.Context, op, symbol string) ([]types.Ticker, error) {
	var result struct {
		List []rawTicker `json:"list"`
	}
	serverTime, err := c.call(ctx, op, "/v5/market/tickers", c.marketParams(symbol), false, &result)
	if err != nil {
		return nil, err
	}

	tickers := make([]types.Ticker, 0, len(result.List))
	for _, raw := range result.List {
		t, err := raw.toTicker(serverTime)
		if err != nil {
			return nil, apperrors.NewAppError(apperrors.ErrCodeUpstreamInvalidData, "invalid ticker", err).
				WithContext("symbol", raw.Symbol)
		}
		tickers = append(tickers, t)
	}
	return tickers, nil
}

// GetTicker fetches the 24h ticker for one symbol. A symbol the exchange does
// not list yields (nil, nil).
func (c *Client) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	tickers, err := c.fetchTickers(ctx, "ticker", symbol)
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, nil
	}
	return &tickers[0], nil
}

// GetTickers fetches tickers for symbols. One symbol is requested directly,
// several are filtered out of the full category listing in a single call.
func (c *Client) GetTickers(ctx context.Context, symbols []string) ([]types.Ticker, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	if len(symbols) == 1 {
		return c.fetchTickers(ctx, "tickers", symbols[0])
	}

	all, err := c.fetchTickers(ctx, "tickers", "")
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	out := make([]types.Ticker, 0, len(symbols))
	for _, t := range all {
		if wanted[t.Symbol] {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetOrderBook fetches current order book
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (*types.OrderBook, error) {
	params := c.marketParams(symbol)
	if depth > 0 {
		params.Set("limit", strconv.Itoa(depth))
	}

	var raw struct {
		Symbol   string     `json:"s"`
		Bids     [][]string `json:"b"`
		Asks     [][]string `json:"a"`
		TS       int64      `json:"ts"`
		UpdateID int64      `json:"u"`
	}
	if _, err := c.call(ctx, "orderbook", "/v5/market/orderbook", params, false, &raw); err != nil {
		return nil, err
	}
	if raw.Symbol == "" {
		return nil, nil
	}

	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return nil, apperrors.Upstream(Name, "orderbook", err)
	}
	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return nil, apperrors.Upstream(Name, "orderbook", err)
	}

	book := &types.OrderBook{
		Symbol:    raw.Symbol,
		UpdateID:  raw.UpdateID,
		UpdatedAt: time.UnixMilli(raw.TS),
		Bids:      make([]types.Level, 0, len(bids)),
		Asks:      make([]types.Level, 0, len(asks)),
	}
	for _, l := range bids {
		book.Bids = append(book.Bids, types.Level{Price: l.price, Quantity: l.qty})
	}
	for _, l := range asks {
		book.Asks = append(book.Asks, types.Level{Price: l.price, Quantity: l.qty})
	}
	return book, nil
}

// GetRecentTrades fetches the latest public trades
func (c *Client) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	params := c.marketParams(symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		List []struct {
			ExecID string `json:"execId"`
			Symbol string `json:"symbol"`
			Price  string `json:"price"`
			Size   string `json:"size"`
			Side   string `json:"side"`
			Time   string `json:"time"`
		} `json:"list"`
	}
	if _, err := c.call(ctx, "recent_trades", "/v5/market/recent-trade", params, false, &result); err != nil {
		return nil, err
	}

	trades := make([]types.Trade, 0, len(result.List))
	for _, raw := range result.List {
		price, err := parseNumber(raw.Price)
		if err != nil {
			continue
		}
		trades = append(trades, types.Trade{
			ID:        raw.ExecID,
			Symbol:    raw.Symbol,
			Price:     price,
			Quantity:  number(raw.Size),
			Side:      raw.Side,
			Timestamp: millis(raw.Time),
		})
	}
	return trades, nil
}

// GetKlines fetches candlesticks, oldest first. interval accepts both
// conventional ("1h") and exchange ("60") notation.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error) {
	code, err := klineInterval(interval)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "invalid kline interval", err)
	}

	params := c.marketParams(symbol)
	params.Set("interval", code)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		Symbol string     `json:"symbol"`
		List   [][]string `json:"list"`
	}
	if _, err := c.call(ctx, "klines", "/v5/market/kline", params, false, &result); err != nil {
		return nil, err
	}

	klines := make([]types.Kline, 0, len(result.List))
	for _, raw := range result.List {
		if len(raw) < 7 {
			continue
		}
		klines = append(klines, types.Kline{
			Symbol:   result.Symbol,
			Interval: interval,
			OpenTime: millis(raw[0]),
			Open:     number(raw[1]),
			High:     number(raw[2]),
			Low:      number(raw[3]),
			Close:    number(raw[4]),
			Volume:   number(raw[5]),
			Turnover: number(raw[6]),
		})
	}
	// the exchange lists newest first
	sort.Slice(klines, func(i, j int) bool { return klines[i].OpenTime.Before(klines[j].OpenTime) })
	return klines, nil
}

// GetFundingRate fetches the most recent settled funding rate
func (c *Client) GetFundingRate(ctx context.Context, symbol string) (*types.FundingRate, error) {
	params := c.marketParams(symbol)
	params.Set("limit", "1")

	var result struct {
		List []struct {
			Symbol               string `json:"symbol"`
			FundingRate          string `json:"fundingRate"`
			FundingRateTimestamp string `json:"fundingRateTimestamp"`
		} `json:"list"`
	}
	if _, err := c.call(ctx, "funding", "/v5/market/funding/history", params, false, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, nil
	}

	raw := result.List[0]
	rate, err := parseNumber(raw.FundingRate)
	if err != nil {
		return nil, apperrors.Upstream(Name, "funding", err)
	}
	return &types.FundingRate{
		Symbol:    raw.Symbol,
		Rate:      rate,
		Timestamp: millis(raw.FundingRateTimestamp),
	}, nil
}

// GetLiquidations is not served: the v5 REST API has no liquidation history.
func (c *Client) GetLiquidations(ctx context.Context, symbol string) ([]types.Liquidation, error) {
	return nil, apperrors.Unsupported(Name, "liquidations")
}

// GetLongShortRatio fetches the hourly account long/short split
func (c *Client) GetLongShortRatio(ctx context.Context, symbol string, limit int) ([]types.LongShortRatio, error) {
	params := c.marketParams(symbol)
	params.Set("period", "1h")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			BuyRatio  string `json:"buyRatio"`
			SellRatio string `json:"sellRatio"`
			Timestamp string `json:"timestamp"`
		} `json:"list"`
	}
	if _, err := c.call(ctx, "long_short_ratio", "/v5/market/account-ratio", params, false, &result); err != nil {
		return nil, err
	}

	ratios := make([]types.LongShortRatio, 0, len(result.List))
	for _, raw := range result.List {
		ratios = append(ratios, types.LongShortRatio{
			Symbol:    raw.Symbol,
			BuyRatio:  number(raw.BuyRatio),
			SellRatio: number(raw.SellRatio),
			Timestamp: millis(raw.Timestamp),
		})
	}
	return ratios, nil
}

// GetOpenInterest fetches hourly open interest
func (c *Client) GetOpenInterest(ctx context.Context, symbol string, limit int) ([]types.OpenInterest, error) {
	params := c.marketParams(symbol)
	params.Set("intervalTime", "1h")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result struct {
		Symbol string `json:"symbol"`
		List   []struct {
			OpenInterest string `json:"openInterest"`
			Timestamp    string `json:"timestamp"`
		} `json:"list"`
	}
	if _, err := c.call(ctx, "open_interest", "/v5/market/open-interest", params, false, &result); err != nil {
		return nil, err
	}

	points := make([]types.OpenInterest, 0, len(result.List))
	for _, raw := range result.List {
		points = append(points, types.OpenInterest{
			Symbol:    result.Symbol,
			Value:     number(raw.OpenInterest),
			Timestamp: millis(raw.Timestamp),
		})
	}
	return points, nil
}

