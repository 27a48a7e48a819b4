package market

import (
	"sync"

	"golang.org/x/time/rate"
)

// Budget estimates how much of each provider's per-minute request allowance
// this process has used. It only counts calls made here; it never blocks and
// knows nothing about the upstream's own accounting.
type Budget struct {
	mu       sync.Mutex
	limits   map[string]int
	limiters map[string]*rate.Limiter
}

// NewBudget creates a budget from per-minute limits keyed by provider name.
func NewBudget(perMinute map[string]int) *Budget {
	b := &Budget{
		limits:   make(map[string]int, len(perMinute)),
		limiters: make(map[string]*rate.Limiter, len(perMinute)),
	}
	for name, n := range perMinute {
		b.SetLimit(name, n)
	}
	return b
}

// SetLimit replaces the allowance for provider.
func (b *Budget) SetLimit(provider string, perMinute int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if perMinute <= 0 {
		delete(b.limits, provider)
		delete(b.limiters, provider)
		return
	}
	b.limits[provider] = perMinute
	b.limiters[provider] = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
}

// Record counts one request against provider.
func (b *Budget) Record(provider string) {
	b.mu.Lock()
	l := b.limiters[provider]
	b.mu.Unlock()
	if l != nil {
		l.Allow()
	}
}

// Limit returns the configured per-minute allowance, or 0.
func (b *Budget) Limit(provider string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.limits[provider]
}

// Remaining estimates the requests left in the current window.
func (b *Budget) Remaining(provider string) int {
	b.mu.Lock()
	l := b.limiters[provider]
	b.mu.Unlock()
	if l == nil {
		return 0
	}
	tokens := int(l.Tokens())
	if tokens < 0 {
		return 0
	}
	return tokens
}
