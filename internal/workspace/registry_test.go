package workspace

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type evictLog struct {
	mu     sync.Mutex
	keys   []string
	reason []EvictReason
}

func (l *evictLog) record(key string, _ int, reason EvictReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	l.reason = append(l.reason, reason)
}

func newTestRegistry(capacity int, ttl time.Duration) (*Registry[int], *clockwork.FakeClock, *evictLog) {
	clock := clockwork.NewFakeClock()
	log := &evictLog{}
	r := NewRegistry(RegistryConfig[int]{Capacity: capacity, IdleTTL: ttl, Clock: clock, OnEvict: log.record})
	return r, clock, log
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r, _, _ := newTestRegistry(4, time.Hour)
	calls := 0
	create := func() int { calls++; return calls }

	v, created := r.GetOrCreate("a", create)
	assert.True(t, created)
	assert.Equal(t, 1, v)

	v, created = r.GetOrCreate("a", create)
	assert.False(t, created)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, calls)

	st := r.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
}

func TestRegistry_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	r, _, log := newTestRegistry(2, 0)
	r.GetOrCreate("a", func() int { return 1 })
	r.GetOrCreate("b", func() int { return 2 })
	_, ok := r.Get("a")
	require.True(t, ok)
	r.GetOrCreate("c", func() int { return 3 })

	assert.Equal(t, 2, r.Len())
	_, ok = r.Get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, log.keys)
	assert.Equal(t, []EvictReason{EvictCapacity}, log.reason)
}

func TestRegistry_IdleEntriesAreReplaced(t *testing.T) {
	r, clock, log := newTestRegistry(4, time.Minute)
	r.GetOrCreate("a", func() int { return 1 })

	clock.Advance(59 * time.Second)
	_, ok := r.Get("a")
	require.True(t, ok, "touch refreshes the deadline")

	clock.Advance(59 * time.Second)
	v, created := r.GetOrCreate("a", func() int { return 2 })
	assert.False(t, created)
	assert.Equal(t, 1, v)

	clock.Advance(time.Minute)
	v, created = r.GetOrCreate("a", func() int { return 2 })
	assert.True(t, created)
	assert.Equal(t, 2, v)
	assert.Equal(t, []EvictReason{EvictIdle}, log.reason)
}

func TestRegistry_Sweep(t *testing.T) {
	r, clock, log := newTestRegistry(8, time.Minute)
	r.GetOrCreate("old1", func() int { return 1 })
	r.GetOrCreate("old2", func() int { return 2 })
	clock.Advance(30 * time.Second)
	r.GetOrCreate("fresh", func() int { return 3 })
	clock.Advance(40 * time.Second)

	assert.Equal(t, 2, r.Sweep())
	assert.Equal(t, 1, r.Len())
	assert.ElementsMatch(t, []string{"old1", "old2"}, log.keys)
	assert.Zero(t, r.Sweep())
}

func TestRegistry_DeleteAndClear(t *testing.T) {
	r, _, log := newTestRegistry(8, 0)
	r.GetOrCreate("a", func() int { return 1 })
	r.GetOrCreate("b", func() int { return 2 })
	r.GetOrCreate("c", func() int { return 3 })

	assert.True(t, r.Delete("a"))
	assert.False(t, r.Delete("a"))
	assert.Equal(t, 2, r.Clear())
	assert.Zero(t, r.Len())
	assert.Equal(t, []EvictReason{EvictRemoved, EvictShutdown, EvictShutdown}, log.reason)
}

func TestRegistry_EvictCallbackMayReenter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var r *Registry[int]
	r = NewRegistry(RegistryConfig[int]{
		Capacity: 1,
		Clock:    clock,
		OnEvict:  func(string, int, EvictReason) { _ = r.Len() },
	})
	r.GetOrCreate("a", func() int { return 1 })
	r.GetOrCreate("b", func() int { return 2 })
	assert.Equal(t, 1, r.Len())
}
