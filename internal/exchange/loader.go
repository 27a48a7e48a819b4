package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/banbox/banexg"
	"github.com/banbox/banexg/bex"

	apperrors "marketcache/internal/errors"
	"marketcache/internal/logger"
	"marketcache/internal/types"
)

// LoaderConfig selects the exchange and credentials the instrument list is read from.
type LoaderConfig struct {
	Exchange  string
	APIKey    string
	APISecret string
	// Quote keeps only instruments quoted in this asset when set.
	Quote string
}

// LoadFunc returns the raw instrument list.
type LoadFunc func(ctx context.Context) ([]types.Instrument, error)

// MarketLoader reads the tradable instrument list through the banexg SDK,
// retrying transient failures.
type MarketLoader struct {
	name  string
	quote string
	load  LoadFunc
	close func() error
	retry *RetryConfig
	log   logger.Logger
}

// NewMarketLoader creates a banexg backed loader for linear (USDT-M) markets.
func NewMarketLoader(cfg LoaderConfig, log logger.Logger) (*MarketLoader, error) {
	name := strings.ToLower(cfg.Exchange)
	if name == "" {
		name = "bybit"
	}

	options := map[string]interface{}{
		banexg.OptApiKey:     cfg.APIKey,
		banexg.OptApiSecret:  cfg.APISecret,
		banexg.OptMarketType: banexg.MarketLinear,
	}

	exg, err := bex.New(name, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create banexg exchange: %w", err)
	}

	load := func(ctx context.Context) ([]types.Instrument, error) {
		markets, err := exg.LoadMarkets(true, nil)
		if err != nil {
			return nil, apperrors.Upstream(name, "load_markets", err)
		}
		out := make([]types.Instrument, 0, len(markets))
		for _, market := range markets {
			// unified symbols look like BTC/USDT:USDT; snapshots are keyed by the exchange id
			out = append(out, types.Instrument{
				Symbol: strings.ToUpper(market.Base + market.Quote),
				Base:   market.Base,
				Quote:  market.Quote,
				Active: true,
			})
		}
		return out, nil
	}
	closeFn := func() error {
		if err := exg.Close(); err != nil {
			return fmt.Errorf("failed to close banexg exchange: %w", err)
		}
		return nil
	}

	loader := NewMarketLoaderFunc(name, load, log)
	loader.quote = strings.ToUpper(cfg.Quote)
	loader.close = closeFn
	return loader, nil
}

// NewMarketLoaderFunc creates a loader around an arbitrary LoadFunc.
func NewMarketLoaderFunc(name string, load LoadFunc, log logger.Logger) *MarketLoader {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &MarketLoader{
		name:  name,
		load:  load,
		close: func() error { return nil },
		retry: DefaultRetryConfig(),
		log:   log.WithField("exchange", name),
	}
}

// SetRetryConfig overrides the retry policy.
func (l *MarketLoader) SetRetryConfig(cfg *RetryConfig) {
	l.retry = cfg
}

// Name returns the exchange name.
func (l *MarketLoader) Name() string { return l.name }

// LoadInstruments returns instruments sorted by symbol, de-duplicated and
// optionally filtered by quote asset.
func (l *MarketLoader) LoadInstruments(ctx context.Context) ([]types.Instrument, error) {
	raw, err := RetryWithResult(ctx, l.load, l.retry)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(raw))
	out := make([]types.Instrument, 0, len(raw))
	for _, inst := range raw {
		if inst.Symbol == "" || seen[inst.Symbol] {
			continue
		}
		if l.quote != "" && !strings.EqualFold(inst.Quote, l.quote) {
			continue
		}
		seen[inst.Symbol] = true
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })

	l.log.Debug("Loaded instruments", "count", len(out))
	return out, nil
}

// Close implements cleanup
func (l *MarketLoader) Close() error {
	return l.close()
}
