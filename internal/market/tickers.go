package market

import (
	"context"

	"marketcache/internal/types"
)

// GetTickers returns primary tickers aligned with symbols. Symbols without an
// instrument mapping, or that the provider did not return, stay nil. Cached
// tickers are served directly and every miss is resolved by one batched call.
func (a *Aggregator) GetTickers(ctx context.Context, symbols []string) []*types.Ticker {
	out := make([]*types.Ticker, len(symbols))
	if !primaryConfigured(a.primary) || len(symbols) == 0 {
		return out
	}

	var (
		insts []string
		index []int
	)
	for i, s := range symbols {
		if inst, ok := a.InstrumentFor(s); ok {
			insts = append(insts, inst)
			index = append(index, i)
		}
	}
	if len(insts) == 0 {
		return out
	}

	fetch := func(ctx context.Context, batch []string) ([]types.Ticker, error) {
		return observed(ctx, a, a.primary.Name(), "tickers", func(ctx context.Context) ([]types.Ticker, error) {
			return a.primary.GetTickers(ctx, batch)
		})
	}

	var (
		got []*types.Ticker
		err error
	)
	if a.store != nil {
		got, err = a.store.GetOrFetchMultipleTickers(ctx, insts, fetch)
	} else {
		got, err = alignTickers(ctx, insts, fetch)
	}
	if err != nil {
		a.log.WithContext(ctx).Warn("Batch ticker fetch failed", "symbols", len(insts), "error", err)
	}

	for j, t := range got {
		out[index[j]] = t
	}
	return out
}

func alignTickers(ctx context.Context, insts []string, fetch func(context.Context, []string) ([]types.Ticker, error)) ([]*types.Ticker, error) {
	out := make([]*types.Ticker, len(insts))
	fetched, err := fetch(ctx, insts)
	if err != nil {
		return out, err
	}
	bySymbol := make(map[string]*types.Ticker, len(fetched))
	for i := range fetched {
		if fetched[i].Valid() {
			bySymbol[fetched[i].Symbol] = &fetched[i]
		}
	}
	for i, inst := range insts {
		out[i] = bySymbol[inst]
	}
	return out, nil
}
