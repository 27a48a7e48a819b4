package market

import (
	"context"
	"sync"
)

// ProviderHealth is the outcome of one availability probe.
type ProviderHealth struct {
	Provider   string `json:"provider"`
	Role       string `json:"role"`
	Configured bool   `json:"configured"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
}

// CheckProviderHealth probes both providers in parallel. A probe that fails,
// times out or is skipped for lack of configuration reports unhealthy.
func (a *Aggregator) CheckProviderHealth(ctx context.Context) map[string]ProviderHealth {
	type probe struct {
		role       string
		name       string
		configured bool
		ping       func(context.Context) error
	}

	var probes []probe
	if a.primary != nil {
		probes = append(probes, probe{"primary", a.primary.Name(), a.primary.Configured(), a.primary.Ping})
	}
	if a.fallback != nil {
		probes = append(probes, probe{"fallback", a.fallback.Name(), a.fallback.Configured(), a.fallback.Ping})
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]ProviderHealth, len(probes))
	)
	for _, p := range probes {
		h := ProviderHealth{Provider: p.name, Role: p.role, Configured: p.configured}
		if !p.configured {
			out[p.name] = h
			continue
		}

		wg.Add(1)
		go func(p probe, h ProviderHealth) {
			defer wg.Done()
			_, err := observed(ctx, a, p.name, "ping", func(ctx context.Context) (struct{}, error) {
				return struct{}{}, p.ping(ctx)
			})
			h.Healthy = err == nil
			if err != nil {
				h.Error = err.Error()
			}
			mu.Lock()
			out[p.name] = h
			mu.Unlock()
		}(p, h)
	}
	wg.Wait()
	return out
}

// RateLimitStatus is an indicative view of a provider's request allowance.
// It is derived from configuration and this process's own call count, never
// from the upstream's rate-limit headers.
type RateLimitStatus struct {
	Provider          string `json:"provider"`
	Configured        bool   `json:"configured"`
	Tier              string `json:"tier"`
	LimitPerMinute    int    `json:"limit_per_minute"`
	RemainingEstimate int    `json:"remaining_estimate"`
	Indicative        bool   `json:"indicative"`
}

// keyed is implemented by providers whose tier depends on an API key.
type keyed interface {
	HasAPIKey() bool
}

// GetRateLimitStatus reports the indicative budget for each provider.
func (a *Aggregator) GetRateLimitStatus() map[string]RateLimitStatus {
	out := make(map[string]RateLimitStatus, 2)

	if a.primary != nil {
		name := a.primary.Name()
		st := RateLimitStatus{Provider: name, Configured: a.primary.Configured(), Tier: "unconfigured", Indicative: true}
		if st.Configured {
			st.Tier = "authenticated"
			st.LimitPerMinute = a.budget.Limit(name)
			st.RemainingEstimate = a.budget.Remaining(name)
		}
		out[name] = st
	}

	if a.fallback != nil {
		name := a.fallback.Name()
		st := RateLimitStatus{Provider: name, Configured: a.fallback.Configured(), Tier: "unconfigured", Indicative: true}
		if st.Configured {
			st.Tier = "public"
			if k, ok := a.fallback.(keyed); ok && k.HasAPIKey() {
				st.Tier = "demo"
			}
			st.LimitPerMinute = a.budget.Limit(name)
			st.RemainingEstimate = a.budget.Remaining(name)
		}
		out[name] = st
	}
	return out
}
