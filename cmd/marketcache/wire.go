package main

import (
	"context"
	"strings"
	"time"

	"marketcache/internal/cache"
	"marketcache/internal/config"
	"marketcache/internal/exchange"
	"marketcache/internal/jobs"
	"marketcache/internal/logger"
	"marketcache/internal/market"
	"marketcache/internal/monitoring"
	"marketcache/internal/provider/bybit"
	"marketcache/internal/provider/coingecko"
	"marketcache/internal/provider/httpclient"
	"marketcache/internal/scheduler"
	"marketcache/internal/storage"
)

const sweepTask = "cache-sweep"

// application holds the wired components of one process.
type application struct {
	cfg        *config.Config
	log        logger.Logger
	metrics    *monitoring.Metrics
	cache      *cache.Store
	aggregator *market.Aggregator
	store      storage.SnapshotStore
	loader     *exchange.MarketLoader
	runner     *jobs.Runner
	sync       *scheduler.Scheduler
}

func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*application, error) {
	app := &application{
		cfg:     cfg,
		log:     log,
		metrics: monitoring.NewMetrics(nil),
		runner:  jobs.NewRunner(log),
	}

	app.cache = cache.NewStore(
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithKindTTLs(cfg.Cache.TTLs),
		cache.WithObserver(app.metrics),
		cache.WithLogger(log),
	)

	pc := cfg.Providers
	hc := httpclient.New(pc.FetchTimeout,
		httpclient.WithMaxRetries(pc.HTTP.RetryMax),
		httpclient.WithRetryWait(pc.HTTP.RetryWaitMin, pc.HTTP.RetryWaitMax),
		httpclient.WithLogger(log),
	)
	primary := bybit.NewClient(pc.Bybit, bybit.WithHTTPClient(hc), bybit.WithLogger(log))
	fallback := coingecko.NewClient(pc.CoinGecko, coingecko.WithHTTPClient(hc), coingecko.WithLogger(log))

	budget := market.NewBudget(map[string]int{
		primary.Name():  pc.Bybit.RateLimitPerMinute,
		fallback.Name(): pc.CoinGecko.RateLimitPerMinute,
	})
	app.aggregator = market.NewAggregator(primary, fallback,
		market.WithStore(app.cache),
		market.WithFetchTimeout(pc.FetchTimeout),
		market.WithConcurrency(pc.PrimaryConcurrency),
		market.WithBudget(budget),
		market.WithRecorder(app.metrics),
		market.WithLogger(log),
	)

	store, err := storage.New(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	app.store = store

	deps := scheduler.Deps{
		Source:   primary,
		Store:    store,
		Cache:    app.cache,
		Runner:   app.runner,
		Recorder: app.metrics,
		Logger:   log,
	}
	if pc.Bybit.Configured() {
		loader, err := exchange.NewMarketLoader(exchange.LoaderConfig{
			Exchange:  cfg.Sync.Exchange,
			APIKey:    pc.Bybit.APIKey,
			APISecret: pc.Bybit.APISecret,
			Quote:     "USDT",
		}, log)
		if err != nil {
			log.Warn("Instrument loader unavailable, instrument sync disabled", "exchange", cfg.Sync.Exchange, "error", err)
		} else {
			app.loader = loader
			deps.Instruments = loader
		}
	}

	app.sync = scheduler.New(deps, scheduler.Options{
		Symbols:            cfg.Sync.Symbols,
		OrderbookDepth:     cfg.Sync.OrderbookDepth,
		FetchTimeout:       pc.FetchTimeout,
		TickerLifetime:     cfg.Sync.TickerLifetime,
		OrderbookLifetime:  cfg.Sync.OrderbookLifetime,
		InstrumentLifetime: cfg.Sync.InstrumentLifetime,
	})

	log.Info("Components wired",
		"primary_configured", primary.Configured(),
		"fallback_configured", fallback.Configured(),
		"storage", strings.ToLower(cfg.Storage.Driver),
		"sync_symbols", len(cfg.Sync.Symbols))
	return app, nil
}

// startSweep registers the periodic eviction of stale cache entries.
func (a *application) startSweep(ctx context.Context) error {
	interval := a.cfg.Cache.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	err := a.runner.Every(sweepTask, interval, func(context.Context) error {
		a.cache.Cleanup()
		a.metrics.SetCacheEntries(a.cache.Len())
		return nil
	})
	if err != nil {
		return err
	}
	a.runner.Start(ctx)
	return nil
}

// Close releases storage and exchange resources.
func (a *application) Close() {
	if a.loader != nil {
		if err := a.loader.Close(); err != nil {
			a.log.Warn("Failed to close instrument loader", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("Failed to close snapshot store", "error", err)
		}
	}
}
