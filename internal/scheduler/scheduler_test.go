package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcache/internal/cache"
	"marketcache/internal/jobs"
	"marketcache/internal/logger"
	"marketcache/internal/testutils"
	"marketcache/internal/types"
)

type fakeSource struct {
	mu          sync.Mutex
	configured  bool
	tickerCalls int
	bookCalls   map[string]int
	tickersErr  error
	bookErr     map[string]error
}

func newFakeSource(configured bool) *fakeSource {
	return &fakeSource{configured: configured, bookCalls: map[string]int{}, bookErr: map[string]error{}}
}

func (f *fakeSource) Name() string     { return "fake" }
func (f *fakeSource) Configured() bool { return f.configured }

func (f *fakeSource) GetTickers(_ context.Context, symbols []string) ([]types.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickerCalls++
	if f.tickersErr != nil {
		return nil, f.tickersErr
	}
	out := make([]types.Ticker, 0, len(symbols))
	for i, s := range symbols {
		out = append(out, types.Ticker{Symbol: s, LastPrice: float64(100 * (i + 1))})
	}
	return out, nil
}

func (f *fakeSource) GetOrderBook(_ context.Context, symbol string, depth int) (*types.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookCalls[symbol]++
	if err := f.bookErr[symbol]; err != nil {
		return nil, err
	}
	return &types.OrderBook{
		Symbol: symbol,
		Bids:   []types.Level{{Price: 99, Quantity: float64(depth)}},
		Asks:   []types.Level{{Price: 101, Quantity: 1}},
	}, nil
}

func (f *fakeSource) tickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickerCalls
}

type fakeInstruments struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeInstruments) LoadInstruments(context.Context) ([]types.Instrument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []types.Instrument{
		{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Active: true},
		{Symbol: "ETHUSDT", Base: "ETH", Quote: "USDT", Active: true},
	}, nil
}

func (f *fakeInstruments) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu           sync.Mutex
	records      []types.SyncRecord
	failSymbol   string
	cleanupCalls int
	expired      int64
}

func (f *fakeStore) Upsert(_ context.Context, rec types.SyncRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.Symbol == f.failSymbol {
		return errors.New("write failed")
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) DeleteExpired(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	return f.expired, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

func (f *fakeStore) byKind(kind types.SyncKind) []types.SyncRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.SyncRecord
	for _, r := range f.records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStore) cleanups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanupCalls
}

type recordingRecorder struct {
	mu     sync.Mutex
	syncs  map[string]int
	writes map[string]int
	failed map[string]int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{syncs: map[string]int{}, writes: map[string]int{}, failed: map[string]int{}}
}

func (r *recordingRecorder) ObserveSync(job string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs[job]++
}

func (r *recordingRecorder) RecordSyncWrite(kind string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed[kind]++
		return
	}
	r.writes[kind]++
}

func (r *recordingRecorder) RecordMarketDataUpdate(string, string) {}

type fixture struct {
	source      *fakeSource
	instruments *fakeInstruments
	store       *fakeStore
	cache       *cache.Store
	recorder    *recordingRecorder
	clock       *testutils.ManualClock
	sched       *Scheduler
}

func newFixture(t *testing.T, configured bool) *fixture {
	t.Helper()
	f := &fixture{
		source:      newFakeSource(configured),
		instruments: &fakeInstruments{},
		store:       &fakeStore{},
		cache:       cache.NewStore(cache.WithLogger(logger.Nop())),
		recorder:    newRecordingRecorder(),
		clock:       testutils.NewManualClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.sched = New(Deps{
		Source:      f.source,
		Instruments: f.instruments,
		Store:       f.store,
		Cache:       f.cache,
		Runner:      jobs.NewRunner(logger.Nop()),
		Recorder:    f.recorder,
		Logger:      logger.Nop(),
	}, Options{
		Symbols: []string{"btcusdt", " ETHUSDT ", "SOLUSDT"},
		Now:     f.clock.Now,
	})
	return f
}

func TestPlanFor(t *testing.T) {
	tests := []struct {
		tick        int64
		instruments bool
		cleanup     bool
	}{
		{1, false, false},
		{2, false, true},
		{3, true, false},
		{4, false, true},
		{5, false, false},
		{6, true, true},
	}

	for _, tt := range tests {
		plan := PlanFor(tt.tick)
		assert.True(t, plan.Tickers, "tick %d", tt.tick)
		assert.True(t, plan.Orderbooks, "tick %d", tt.tick)
		assert.Equal(t, tt.instruments, plan.Instruments, "tick %d", tt.tick)
		assert.Equal(t, tt.cleanup, plan.Cleanup, "tick %d", tt.tick)
	}

	assert.Equal(t, Plan{Tickers: true, Instruments: true, Orderbooks: true, Cleanup: true}, FullPlan())
}

func TestRunTickStaggersInstrumentRefresh(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for n := int64(1); n <= 6; n++ {
		before := f.instruments.count()
		require.NoError(t, f.sched.RunTick(ctx))
		refreshed := f.instruments.count() > before
		assert.Equal(t, n%3 == 0, refreshed, "tick %d", n)
	}

	assert.Equal(t, int64(6), f.sched.Tick())
	assert.Equal(t, 6, f.source.tickers())
	assert.Equal(t, 2, f.instruments.count())
	assert.Equal(t, 3, f.store.cleanups())
}

func TestSyncTickersPrimesCacheAndPersists(t *testing.T) {
	f := newFixture(t, true)

	n, err := f.sched.SyncTickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cached, ok := cache.Get[*types.Ticker](f.cache, cache.TickerKey("ETHUSDT"))
	require.True(t, ok)
	assert.Equal(t, 200.0, cached.LastPrice)

	records := f.store.byKind(types.SyncTicker)
	require.Len(t, records, 3)
	assert.Equal(t, "BTCUSDT", records[0].Symbol)
	assert.Equal(t, f.clock.Now(), records[0].SyncedAt)
	assert.Equal(t, f.clock.Now().Add(10*time.Minute), records[0].ExpiresAt)
}

func TestSyncTickersWriteFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, true)
	f.store.failSymbol = "ETHUSDT"

	n, err := f.sched.SyncTickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var symbols []string
	for _, r := range f.store.byKind(types.SyncTicker) {
		symbols = append(symbols, r.Symbol)
	}
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, symbols)
	assert.Equal(t, 1, f.recorder.failed[string(types.SyncTicker)])
	assert.Equal(t, 2, f.recorder.writes[string(types.SyncTicker)])

	// The cache is still primed for the symbol whose write failed.
	_, ok := cache.Get[*types.Ticker](f.cache, cache.TickerKey("ETHUSDT"))
	assert.True(t, ok)
}

func TestSyncTickersFetchError(t *testing.T) {
	f := newFixture(t, true)
	f.source.tickersErr = errors.New("upstream down")

	n, err := f.sched.SyncTickers(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.store.byKind(types.SyncTicker))
}

func TestSyncOrderbooksSkipsFailedSymbol(t *testing.T) {
	f := newFixture(t, true)
	f.source.bookErr["SOLUSDT"] = errors.New("timeout")

	n, err := f.sched.SyncOrderbooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records := f.store.byKind(types.SyncOrderbook)
	require.Len(t, records, 2)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), records[0].ExpiresAt)

	book, ok := cache.Get[*types.OrderBook](f.cache, cache.OrderbookKey("BTCUSDT", 50))
	require.True(t, ok)
	assert.Equal(t, 50.0, book.Bids[0].Quantity)

	_, ok = cache.Get[*types.OrderBook](f.cache, cache.OrderbookKey("SOLUSDT", 50))
	assert.False(t, ok)
}

func TestSyncInstruments(t *testing.T) {
	f := newFixture(t, true)

	n, err := f.sched.SyncInstruments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records := f.store.byKind(types.SyncInstrument)
	require.Len(t, records, 2)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), records[1].ExpiresAt)

	f.instruments.err = errors.New("listing unavailable")
	_, err = f.sched.SyncInstruments(context.Background())
	assert.Error(t, err)
}

func TestCleanupExpired(t *testing.T) {
	f := newFixture(t, true)
	f.store.expired = 7

	n, err := f.sched.CleanupExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestRunJob(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	n, err := f.sched.RunJob(ctx, JobOrderbooks)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, f.recorder.syncs[JobOrderbooks])

	_, err = f.sched.RunJob(ctx, "funding")
	assert.Error(t, err)
}

func TestStartWithoutCredentialsIsNoop(t *testing.T) {
	f := newFixture(t, false)

	stop := f.sched.Start(context.Background(), time.Minute)
	require.NotNil(t, stop)
	f.sched.Wait()
	stop()

	assert.False(t, f.sched.Running())
	assert.Zero(t, f.source.tickers())
	assert.Zero(t, f.instruments.count())
}

func TestStartRunsFullPassThenStops(t *testing.T) {
	f := newFixture(t, true)

	stop := f.sched.Start(context.Background(), time.Hour)
	f.sched.Wait()

	assert.True(t, f.sched.Running())
	assert.Equal(t, 1, f.source.tickers())
	assert.Equal(t, 1, f.instruments.count())
	assert.Equal(t, 1, f.store.cleanups())
	assert.Len(t, f.store.byKind(types.SyncOrderbook), 3)
	assert.Zero(t, f.sched.Tick())

	// A second Start while running does not double-register.
	again := f.sched.Start(context.Background(), time.Hour)
	again()
	assert.True(t, f.sched.Running())

	stop()
	stop()
	assert.False(t, f.sched.Running())
}
