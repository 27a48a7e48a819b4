package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcache/internal/testutils"
	"marketcache/internal/types"
)

func TestGetOrFetchTicker(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	ctx := context.Background()

	t.Run("single fetch on miss", func(t *testing.T) {
		observer := newCountingObserver()
		store := newTestStore(suite, WithObserver(observer))

		calls := 0
		fetch := func(ctx context.Context, symbol string) (*types.Ticker, error) {
			calls++
			return &types.Ticker{Symbol: symbol, LastPrice: 50000}, nil
		}

		first, err := store.GetOrFetchTicker(ctx, "btcusdt", fetch)
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", first.Symbol)

		second, err := store.GetOrFetchTicker(ctx, "BTCUSDT", fetch)
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, observer.hits["ticker"])
		assert.Equal(t, 1, observer.misses["ticker"])

		// 过期后重新获取
		suite.Clock.Advance(31 * time.Second)
		_, err = store.GetOrFetchTicker(ctx, "BTCUSDT", fetch)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		store := newTestStore(suite)
		boom := errors.New("upstream down")

		calls := 0
		fetch := func(ctx context.Context, symbol string) (*types.Ticker, error) {
			calls++
			return nil, boom
		}

		_, err := store.GetOrFetchTicker(ctx, "ETHUSDT", fetch)
		assert.ErrorIs(t, err, boom)
		_, err = store.GetOrFetchTicker(ctx, "ETHUSDT", fetch)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("empty results are not cached", func(t *testing.T) {
		store := newTestStore(suite)

		calls := 0
		fetch := func(ctx context.Context, symbol string) (*types.Ticker, error) {
			calls++
			return &types.Ticker{Symbol: symbol}, nil
		}

		ticker, err := store.GetOrFetchTicker(ctx, "SOLUSDT", fetch)
		require.NoError(t, err)
		assert.False(t, ticker.Valid())
		_, _ = store.GetOrFetchTicker(ctx, "SOLUSDT", fetch)
		assert.Equal(t, 2, calls)
	})
}

func TestKindTTLs(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	ctx := context.Background()
	store := newTestStore(suite)

	assert.Equal(t, 30*time.Second, store.TTLFor(KindTicker))
	assert.Equal(t, 20*time.Second, store.TTLFor(KindOrderbook))
	assert.Equal(t, 10*time.Second, store.TTLFor(KindTrades))
	assert.Equal(t, 5*time.Minute, store.TTLFor(KindKlines))
	assert.Equal(t, 2*time.Minute, store.TTLFor(KindAnalysis))

	trades := 0
	fetchTrades := func(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
		trades++
		return []types.Trade{{ID: "1", Symbol: symbol, Price: 1, Quantity: 1}}, nil
	}
	klines := 0
	fetchKlines := func(ctx context.Context, symbol, interval string, limit int) ([]types.Kline, error) {
		klines++
		return []types.Kline{{Symbol: symbol, Interval: interval, Close: 1}}, nil
	}

	_, err := store.GetOrFetchRecentTrades(ctx, "BTCUSDT", 50, fetchTrades)
	require.NoError(t, err)
	_, err = store.GetOrFetchKlines(ctx, "BTCUSDT", "1h", 100, fetchKlines)
	require.NoError(t, err)

	// 11 秒后成交已过期，K 线仍然有效
	suite.Clock.Advance(11 * time.Second)
	_, _ = store.GetOrFetchRecentTrades(ctx, "BTCUSDT", 50, fetchTrades)
	_, _ = store.GetOrFetchKlines(ctx, "BTCUSDT", "1h", 100, fetchKlines)
	assert.Equal(t, 2, trades)
	assert.Equal(t, 1, klines)

	// 不同参数使用不同的键
	_, _ = store.GetOrFetchKlines(ctx, "BTCUSDT", "4h", 100, fetchKlines)
	assert.Equal(t, 2, klines)

	overridden := newTestStore(suite, WithKindTTLs(map[string]time.Duration{"ticker": 5 * time.Second}))
	assert.Equal(t, 5*time.Second, overridden.TTLFor(KindTicker))
	assert.Equal(t, 20*time.Second, overridden.TTLFor(KindOrderbook))
}

func TestGetOrFetchOrderbookAndAnalysis(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	ctx := context.Background()
	store := newTestStore(suite)

	books := 0
	fetchBook := func(ctx context.Context, symbol string, depth int) (*types.OrderBook, error) {
		books++
		return &types.OrderBook{Symbol: symbol, Bids: []types.Level{{Price: 1, Quantity: 2}}}, nil
	}
	ob, err := store.GetOrFetchOrderbook(ctx, "BTCUSDT", 25, fetchBook)
	require.NoError(t, err)
	assert.Len(t, ob.Bids, 1)
	_, _ = store.GetOrFetchOrderbook(ctx, "BTCUSDT", 25, fetchBook)
	assert.Equal(t, 1, books)

	_, ok := Get[*types.OrderBook](store, OrderbookKey("BTCUSDT", 25))
	assert.True(t, ok)

	analysis := 0
	fetchAnalysis := func(ctx context.Context, symbol string) (*types.MarketAnalysisBundle, error) {
		analysis++
		return &types.MarketAnalysisBundle{Symbol: symbol}, nil
	}
	bundle, err := store.GetOrFetchMarketAnalysis(ctx, "BTCUSDT", fetchAnalysis)
	require.NoError(t, err)
	assert.True(t, bundle.Empty())
	_, _ = store.GetOrFetchMarketAnalysis(ctx, "BTCUSDT", fetchAnalysis)
	assert.Equal(t, 2, analysis, "empty bundles are not cached")
}

func TestGetOrFetchMultipleTickers(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	ctx := context.Background()
	store := newTestStore(suite)
	store.Set(TickerKey("ETHUSDT"), &types.Ticker{Symbol: "ETHUSDT", LastPrice: 3000}, time.Minute)

	var requested [][]string
	fetch := func(ctx context.Context, symbols []string) ([]types.Ticker, error) {
		requested = append(requested, symbols)
		return []types.Ticker{
			{Symbol: "SOLUSDT", LastPrice: 150},
			{Symbol: "BTCUSDT", LastPrice: 50000},
			{Symbol: "DOGEUSDT", LastPrice: 0.1}, // 未请求的不写入
		}, nil
	}

	out, err := store.GetOrFetchMultipleTickers(ctx, []string{"btcusdt", "ETHUSDT", "SOLUSDT", "XRPUSDT"}, fetch)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, 50000.0, out[0].LastPrice)
	assert.Equal(t, 3000.0, out[1].LastPrice)
	assert.Equal(t, 150.0, out[2].LastPrice)
	assert.Nil(t, out[3])

	require.Len(t, requested, 1)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT", "XRPUSDT"}, requested[0])

	_, ok := store.Get(TickerKey("BTCUSDT"))
	assert.True(t, ok, "batch result backfills the cache")
	_, ok = store.Get(TickerKey("DOGEUSDT"))
	assert.False(t, ok)

	t.Run("all hits skip the fetch", func(t *testing.T) {
		out, err := store.GetOrFetchMultipleTickers(ctx, []string{"SOLUSDT", "BTCUSDT"}, fetch)
		require.NoError(t, err)
		assert.Equal(t, "SOLUSDT", out[0].Symbol)
		assert.Len(t, requested, 1)
	})

	t.Run("fetch error keeps hits", func(t *testing.T) {
		boom := errors.New("batch failed")
		out, err := store.GetOrFetchMultipleTickers(ctx, []string{"ETHUSDT", "ADAUSDT"}, func(context.Context, []string) ([]types.Ticker, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
		require.Len(t, out, 2)
		assert.NotNil(t, out[0])
		assert.Nil(t, out[1])
	})
}
