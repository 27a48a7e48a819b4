// Package scheduler keeps the cache and durable snapshots warm for a fixed
// set of hot symbols, independently of request traffic.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"marketcache/internal/cache"
	"marketcache/internal/jobs"
	"marketcache/internal/logger"
	"marketcache/internal/storage"
	"marketcache/internal/types"
)

// Job names accepted by RunJob.
const (
	JobTickers     = "tickers"
	JobInstruments = "instruments"
	JobOrderbooks  = "orderbooks"
	JobCleanup     = "cleanup"
)

const taskName = "market-sync"

// MarketSource is the primary provider surface the scheduler reads from.
type MarketSource interface {
	Name() string
	Configured() bool
	GetTickers(ctx context.Context, symbols []string) ([]types.Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*types.OrderBook, error)
}

// InstrumentSource lists tradable instruments.
type InstrumentSource interface {
	LoadInstruments(ctx context.Context) ([]types.Instrument, error)
}

// Recorder receives sync metrics.
type Recorder interface {
	ObserveSync(job string, duration time.Duration, err error)
	RecordSyncWrite(kind string, err error)
	RecordMarketDataUpdate(symbol, dataType string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSync(string, time.Duration, error) {}
func (nopRecorder) RecordSyncWrite(string, error)            {}
func (nopRecorder) RecordMarketDataUpdate(string, string)    {}

// Deps are the collaborators of a Scheduler. Only Source is required.
type Deps struct {
	Source      MarketSource
	Instruments InstrumentSource
	Store       storage.SnapshotStore
	Cache       *cache.Store
	Runner      *jobs.Runner
	Recorder    Recorder
	Logger      logger.Logger
}

// Options tune what is synced and for how long snapshots stay valid.
type Options struct {
	Symbols            []string
	OrderbookDepth     int
	FetchTimeout       time.Duration
	TickerLifetime     time.Duration
	OrderbookLifetime  time.Duration
	InstrumentLifetime time.Duration
	Now                func() time.Time
}

// DefaultOptions returns the built-in hot symbol set and lifetimes.
func DefaultOptions() Options {
	return Options{
		Symbols:            []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"},
		OrderbookDepth:     50,
		FetchTimeout:       10 * time.Second,
		TickerLifetime:     10 * time.Minute,
		OrderbookLifetime:  5 * time.Minute,
		InstrumentLifetime: 24 * time.Hour,
	}
}

// StopFunc stops future ticks. It never interrupts a tick in progress.
type StopFunc func()

// Scheduler periodically refreshes tickers, orderbooks and instruments.
type Scheduler struct {
	source      MarketSource
	instruments InstrumentSource
	store       storage.SnapshotStore
	cache       *cache.Store
	runner      *jobs.Runner
	ownRunner   bool
	recorder    Recorder
	log         logger.Logger
	opts        Options

	tick    atomic.Int64
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a scheduler. Zero option fields take their defaults.
func New(deps Deps, opts Options) *Scheduler {
	def := DefaultOptions()
	if len(opts.Symbols) == 0 {
		opts.Symbols = def.Symbols
	}
	if opts.OrderbookDepth <= 0 {
		opts.OrderbookDepth = def.OrderbookDepth
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.TickerLifetime <= 0 {
		opts.TickerLifetime = def.TickerLifetime
	}
	if opts.OrderbookLifetime <= 0 {
		opts.OrderbookLifetime = def.OrderbookLifetime
	}
	if opts.InstrumentLifetime <= 0 {
		opts.InstrumentLifetime = def.InstrumentLifetime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	symbols := make([]string, 0, len(opts.Symbols))
	for _, sym := range opts.Symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	opts.Symbols = symbols

	s := &Scheduler{
		source:      deps.Source,
		instruments: deps.Instruments,
		store:       deps.Store,
		cache:       deps.Cache,
		runner:      deps.Runner,
		recorder:    deps.Recorder,
		log:         deps.Logger,
		opts:        opts,
	}
	if s.store == nil {
		s.store = storage.NopStore{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.log == nil {
		s.log = logger.GetGlobalLogger()
	}
	s.log = s.log.WithField("component", "scheduler")
	if s.runner == nil {
		s.runner = jobs.NewRunner(s.log)
		s.ownRunner = true
	}
	return s
}

// Configured reports whether the primary provider has credentials.
func (s *Scheduler) Configured() bool {
	return s.source != nil && s.source.Configured()
}

// Running reports whether recurring ticks are armed.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Tick returns the number of recurring ticks started so far.
func (s *Scheduler) Tick() int64 {
	return s.tick.Load()
}

// Start runs one full pass in the background and arms the recurring tick.
// Without provider credentials it does nothing and returns a no-op StopFunc.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) StopFunc {
	if !s.Configured() {
		s.log.Info("Market sync disabled: primary provider credentials not configured")
		return func() {}
	}
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("Market sync already running")
		return func() {}
	}
	if interval <= 0 {
		interval = 3 * time.Minute
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.RunFull(ctx); err != nil {
			s.log.Warn("Initial market sync finished with errors", "error", err)
		}
	}()

	if err := s.runner.Every(taskName, interval, s.RunTick); err != nil {
		s.log.Error("Failed to schedule market sync", "error", err)
		s.running.Store(false)
		return func() {}
	}
	s.runner.Start(ctx)
	s.log.Info("Market sync started", "interval", interval.String(), "symbols", len(s.opts.Symbols))

	var once sync.Once
	return func() {
		once.Do(func() {
			s.runner.Remove(taskName)
			if s.ownRunner {
				s.runner.Stop()
			}
			s.running.Store(false)
			s.log.Info("Market sync stopped")
		})
	}
}

// Wait blocks until the background initial pass started by Start returns.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Plan lists the jobs one tick runs.
type Plan struct {
	Tickers     bool `json:"tickers"`
	Instruments bool `json:"instruments"`
	Orderbooks  bool `json:"orderbooks"`
	Cleanup     bool `json:"cleanup"`
}

// FullPlan runs every job.
func FullPlan() Plan {
	return Plan{Tickers: true, Instruments: true, Orderbooks: true, Cleanup: true}
}

// PlanFor returns the work for recurring tick n (counted from 1). Volatile
// data refreshes every tick; the instrument list every third tick and the
// durable cleanup every second tick.
func PlanFor(n int64) Plan {
	return Plan{
		Tickers:     true,
		Orderbooks:  true,
		Instruments: n%3 == 0,
		Cleanup:     n%2 == 0,
	}
}

// RunTick runs the next recurring tick.
func (s *Scheduler) RunTick(ctx context.Context) error {
	n := s.tick.Add(1)
	return s.run(ctx, fmt.Sprintf("tick-%d", n), PlanFor(n))
}

// RunFull runs every job once, outside the tick numbering.
func (s *Scheduler) RunFull(ctx context.Context) error {
	return s.run(ctx, "full", FullPlan())
}

func (s *Scheduler) run(ctx context.Context, label string, plan Plan) error {
	runID := uuid.NewString()
	ctx = logger.ContextWithRunID(ctx, runID)
	log := s.log.WithContext(ctx).WithField("pass", label)
	start := time.Now()

	var errs []error
	step := func(enabled bool, job string, fn func(context.Context) (int, error)) {
		if !enabled {
			return
		}
		if _, err := s.observe(ctx, job, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job, err))
		}
	}

	step(plan.Tickers, JobTickers, s.SyncTickers)
	step(plan.Instruments, JobInstruments, s.SyncInstruments)
	step(plan.Orderbooks, JobOrderbooks, s.SyncOrderbooks)
	step(plan.Cleanup, JobCleanup, s.CleanupExpired)

	err := errors.Join(errs...)
	s.recorder.ObserveSync("pass", time.Since(start), err)
	log.Debug("Market sync pass finished", "duration_ms", time.Since(start).Milliseconds(), "failed_jobs", len(errs))
	return err
}

func (s *Scheduler) observe(ctx context.Context, job string, fn func(context.Context) (int, error)) (int, error) {
	start := time.Now()
	n, err := fn(ctx)
	s.recorder.ObserveSync(job, time.Since(start), err)

	log := s.log.WithContext(ctx)
	if err != nil {
		log.Warn("Sync job failed", "job", job, "error", err)
	} else {
		log.Debug("Sync job completed", "job", job, "count", n)
	}
	return n, err
}

// RunJob runs one named job immediately and returns how many records it handled.
func (s *Scheduler) RunJob(ctx context.Context, job string) (int, error) {
	var fn func(context.Context) (int, error)
	switch job {
	case JobTickers:
		fn = s.SyncTickers
	case JobInstruments:
		fn = s.SyncInstruments
	case JobOrderbooks:
		fn = s.SyncOrderbooks
	case JobCleanup:
		fn = s.CleanupExpired
	default:
		return 0, fmt.Errorf("unknown sync job %q", job)
	}
	ctx = logger.ContextWithRunID(ctx, uuid.NewString())
	return s.observe(ctx, job, fn)
}
