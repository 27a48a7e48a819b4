package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcache/internal/testutils"
)

type countingObserver struct {
	mu        sync.Mutex
	hits      map[string]int
	misses    map[string]int
	evictions int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{hits: map[string]int{}, misses: map[string]int{}}
}

func (o *countingObserver) ObserveLookup(kind string, hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits[kind]++
	} else {
		o.misses[kind]++
	}
}

func (o *countingObserver) ObserveEvictions(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evictions += n
}

func newTestStore(suite *testutils.TestSuite, opts ...Option) *Store {
	base := []Option{WithClock(suite.Clock.Now), WithLogger(suite.Logger)}
	return NewStore(append(base, opts...)...)
}

func TestStoreBasicOperations(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	store := newTestStore(suite)

	t.Run("set and get", func(t *testing.T) {
		store.Set("key1", "value1", time.Minute)

		value, ok := store.Get("key1")
		require.True(t, ok)
		assert.Equal(t, "value1", value)
	})

	t.Run("last write wins", func(t *testing.T) {
		store.Set("key1", "value2", time.Minute)
		value, ok := Get[string](store, "key1")
		require.True(t, ok)
		assert.Equal(t, "value2", value)
	})

	t.Run("typed get with wrong type", func(t *testing.T) {
		_, ok := Get[int](store, "key1")
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		assert.True(t, store.Delete("key1"))
		assert.False(t, store.Delete("key1"))
		_, ok := store.Get("key1")
		assert.False(t, ok)
	})

	t.Run("clear returns prior size", func(t *testing.T) {
		store.Set("a", 1, time.Minute)
		store.Set("b", 2, time.Minute)
		assert.Equal(t, 2, store.Clear())
		assert.Equal(t, 0, store.Len())
	})

	t.Run("non-positive ttl uses default", func(t *testing.T) {
		s := newTestStore(suite, WithDefaultTTL(10*time.Second))
		s.Set("k", "v", 0)

		suite.Clock.Advance(10 * time.Second)
		_, ok := s.Get("k")
		assert.True(t, ok)

		suite.Clock.Advance(time.Millisecond)
		_, ok = s.Get("k")
		assert.False(t, ok)
	})
}

func TestStoreTickerScenario(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	store := newTestStore(suite)
	key := "bybit:ticker:symbol=BTCUSDT"
	store.Set(key, map[string]float64{"lastPrice": 50000}, 30*time.Second)

	value, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, map[string]float64{"lastPrice": 50000}, value)

	suite.Clock.Advance(31 * time.Second)
	value, ok = store.Get(key)
	assert.False(t, ok)
	assert.Nil(t, value)
	assert.Equal(t, 0, store.Len(), "stale get should evict the entry")
}

func TestStoreExpiry(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	observer := newCountingObserver()
	store := newTestStore(suite, WithObserver(observer))

	ttls := []time.Duration{time.Millisecond, time.Second, 30 * time.Second, 5 * time.Minute}
	for i, ttl := range ttls {
		store.Set(fmt.Sprintf("k%d", i), i, ttl)
	}

	// 写入后立即读取
	for i := range ttls {
		v, ok := store.Get(fmt.Sprintf("k%d", i))
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	// 超过 TTL 后由清理任务移除
	suite.Clock.Advance(31 * time.Second)
	assert.Equal(t, 3, store.Cleanup())
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 3, observer.evictions)

	_, ok := store.Get("k3")
	assert.True(t, ok)

	assert.Equal(t, 0, store.Cleanup(), "second sweep has nothing to do")
}

func TestStoreStaleEntryReplaced(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	store := newTestStore(suite)
	store.Set("k", "old", time.Second)
	suite.Clock.Advance(2 * time.Second)

	stale, _ := store.entries.Load("k")
	store.Set("k", "new", time.Minute)

	// 已被覆盖的键不会因旧条目过期而被删除
	store.evictIfSame("k", stale)
	v, ok := store.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestStoreStats(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	store := newTestStore(suite)
	store.Set("first", "aaaa", time.Minute)
	suite.Clock.Advance(time.Second)
	store.Set("second", "bb", time.Minute)
	suite.Clock.Advance(time.Second)
	store.Set("third", 3, time.Minute)
	store.Set("short", true, time.Millisecond)
	suite.Clock.Advance(time.Second)

	store.Get("first")
	store.Get("missing")

	stats := store.Stats(2)
	assert.Equal(t, 4, stats.Entries)
	assert.Equal(t, 1, stats.Expired)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Greater(t, stats.ApproxBytes, int64(0))

	require.Len(t, stats.Oldest, 2)
	assert.Equal(t, "first", stats.Oldest[0].Key)
	assert.Equal(t, "second", stats.Oldest[1].Key)
	assert.EqualValues(t, 3000, stats.Oldest[0].AgeMs)
	assert.EqualValues(t, 57000, stats.Oldest[0].RemainingMs)

	assert.Empty(t, store.Stats(0).Oldest)
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%20)
				store.Set(key, g, time.Minute)
				store.Get(key)
				if i%50 == 0 {
					store.Cleanup()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 20, store.Len())
}

func BenchmarkStoreGet(b *testing.B) {
	store := NewStore()
	store.Set("bybit:ticker:symbol=BTCUSDT", 1, time.Minute)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		store.Get("bybit:ticker:symbol=BTCUSDT")
	}
}
