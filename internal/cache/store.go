package cache

import (
	"encoding/json"
	"sort"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"marketcache/internal/logger"
)

// Observer receives cache events, typically a metrics sink.
type Observer interface {
	ObserveLookup(kind string, hit bool)
	ObserveEvictions(count int)
}

type nopObserver struct{}

func (nopObserver) ObserveLookup(string, bool) {}
func (nopObserver) ObserveEvictions(int)       {}

// entry is owned by the Store. Its ttl is fixed when it is stored.
type entry struct {
	data      interface{}
	timestamp time.Time
	ttl       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.timestamp) > e.ttl
}

// Store is an in-process TTL cache. It is safe for concurrent use; writes to
// the same key are last-write-wins.
type Store struct {
	entries    *xsync.MapOf[string, *entry]
	defaultTTL time.Duration
	kindTTLs   map[Kind]time.Duration
	now        func() time.Time
	log        logger.Logger
	observer   Observer

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDefaultTTL sets the lifetime used when Set is called with ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithKindTTLs overrides per-kind lifetimes used by the fetch-through helpers.
func WithKindTTLs(ttls map[string]time.Duration) Option {
	return func(s *Store) {
		for kind, ttl := range ttls {
			if ttl > 0 {
				s.kindTTLs[Kind(kind)] = ttl
			}
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:    xsync.NewMapOf[string, *entry](),
		defaultTTL: time.Minute,
		kindTTLs:   make(map[Kind]time.Duration, len(DefaultTTLs)),
		now:        time.Now,
		log:        logger.GetGlobalLogger(),
		observer:   nopObserver{},
	}
	for kind, ttl := range DefaultTTLs {
		s.kindTTLs[kind] = ttl
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value stored under key. A stale entry is evicted and reported as a miss.
func (s *Store) Get(key string) (interface{}, bool) {
	e, ok := s.entries.Load(key)
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	if e.expired(s.now()) {
		s.evictIfSame(key, e)
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return e.data, true
}

// Get is the typed form of Store.Get. A value of another type counts as absent.
func Get[T any](s *Store, key string) (T, bool) {
	var zero T
	raw, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// evictIfSame removes key only while it still maps to stale, so a concurrent Set wins.
func (s *Store) evictIfSame(key string, stale *entry) {
	evicted := false
	s.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
		if loaded && old == stale {
			evicted = true
			return nil, true
		}
		return old, !loaded
	})
	if evicted {
		s.evictions.Add(1)
		s.observer.ObserveEvictions(1)
	}
}

// Set stores data under key, replacing any existing entry. ttl <= 0 uses the default TTL.
func (s *Store) Set(key string, data interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.entries.Store(key, &entry{data: data, timestamp: s.now(), ttl: ttl})
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
	_, ok := s.entries.LoadAndDelete(key)
	return ok
}

// Clear removes every entry and returns how many were held.
func (s *Store) Clear() int {
	size := s.entries.Size()
	s.entries.Clear()
	s.log.Info("Cache cleared", "entries", size)
	return size
}

// Len returns the number of stored entries, stale ones included.
func (s *Store) Len() int {
	return s.entries.Size()
}

// Cleanup evicts all stale entries and returns the count.
func (s *Store) Cleanup() int {
	now := s.now()
	var stale []string
	s.entries.Range(func(key string, e *entry) bool {
		if e.expired(now) {
			stale = append(stale, key)
		}
		return true
	})

	evicted := 0
	for _, key := range stale {
		s.entries.Compute(key, func(old *entry, loaded bool) (*entry, bool) {
			if loaded && old.expired(now) {
				evicted++
				return nil, true
			}
			return old, !loaded
		})
	}
	if evicted > 0 {
		s.evictions.Add(int64(evicted))
		s.observer.ObserveEvictions(evicted)
		s.log.Debug("Cache sweep evicted entries", "evicted", evicted, "remaining", s.entries.Size())
	}
	return evicted
}

// EntryInfo describes one live entry for diagnostics.
type EntryInfo struct {
	Key         string    `json:"key"`
	StoredAt    time.Time `json:"stored_at"`
	AgeMs       int64     `json:"age_ms"`
	TTLMs       int64     `json:"ttl_ms"`
	RemainingMs int64     `json:"remaining_ms"`
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Entries     int         `json:"entries"`
	Expired     int         `json:"expired"`
	ApproxBytes int64       `json:"approx_bytes"`
	Hits        int64       `json:"hits"`
	Misses      int64       `json:"misses"`
	Evictions   int64       `json:"evictions"`
	Oldest      []EntryInfo `json:"oldest"`
}

// Stats reports counts, the approximate footprint as the sum of JSON encoded
// sizes, and the oldest live entries, at most oldest of them.
func (s *Store) Stats(oldest int) Stats {
	now := s.now()
	stats := Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}

	var live []EntryInfo
	s.entries.Range(func(key string, e *entry) bool {
		stats.Entries++
		if raw, err := json.Marshal(e.data); err == nil {
			stats.ApproxBytes += int64(len(key) + len(raw))
		}
		if e.expired(now) {
			stats.Expired++
			return true
		}
		age := now.Sub(e.timestamp)
		live = append(live, EntryInfo{
			Key:         key,
			StoredAt:    e.timestamp,
			AgeMs:       age.Milliseconds(),
			TTLMs:       e.ttl.Milliseconds(),
			RemainingMs: (e.ttl - age).Milliseconds(),
		})
		return true
	})

	sort.Slice(live, func(i, j int) bool {
		if live[i].StoredAt.Equal(live[j].StoredAt) {
			return live[i].Key < live[j].Key
		}
		return live[i].StoredAt.Before(live[j].StoredAt)
	})
	if oldest < 0 {
		oldest = 0
	}
	if len(live) > oldest {
		live = live[:oldest]
	}
	stats.Oldest = live
	return stats
}
