package workspace

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// EvictReason says why an entry left the registry.
type EvictReason string

// Eviction reasons.
const (
	EvictCapacity EvictReason = "capacity"
	EvictIdle     EvictReason = "idle"
	EvictRemoved  EvictReason = "removed"
	EvictShutdown EvictReason = "shutdown"
)

// Registry is an in-memory LRU keyed by browser id with an idle TTL.
// Touching an entry refreshes its idle deadline. Concurrency: methods are
// safe for concurrent use; OnEvict runs without the registry lock held.
type Registry[V any] struct {
	mu      sync.Mutex
	cap     int
	idleTTL time.Duration
	ll      *list.List               // front = most-recently used
	items   map[string]*list.Element // key -> element
	clock   clockwork.Clock
	onEvict func(key string, v V, reason EvictReason)

	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
}

type entry[V any] struct {
	key      string
	value    V
	lastSeen time.Time
}

// RegistryConfig groups constructor options.
type RegistryConfig[V any] struct {
	Capacity int
	// IdleTTL <= 0 disables idle expiry.
	IdleTTL time.Duration
	Clock   clockwork.Clock
	OnEvict func(key string, v V, reason EvictReason)
}

// NewRegistry creates a Registry.
func NewRegistry[V any](cfg RegistryConfig[V]) *Registry[V] {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1024
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry[V]{
		cap:     capacity,
		idleTTL: cfg.IdleTTL,
		ll:      list.New(),
		items:   make(map[string]*list.Element, min(capacity, 1024)),
		clock:   clock,
		onEvict: cfg.OnEvict,
	}
}

type evicted[V any] struct {
	key    string
	value  V
	reason EvictReason
}

// GetOrCreate returns the live entry for key, calling create on a miss or
// when the previous entry went idle. The bool reports whether it was created.
func (r *Registry[V]) GetOrCreate(key string, create func() V) (V, bool) {
	var gone []evicted[V]
	defer func() { r.notify(gone) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if el, found := r.items[key]; found {
		ent := el.Value.(*entry[V])
		if !r.isIdle(ent, now) {
			ent.lastSeen = now
			r.ll.MoveToFront(el)
			r.hits.Add(1)
			return ent.value, false
		}
		gone = append(gone, r.removeElement(el, EvictIdle))
	}
	r.misses.Add(1)

	v := create()
	el := r.ll.PushFront(&entry[V]{key: key, value: v, lastSeen: now})
	r.items[key] = el
	for r.ll.Len() > r.cap {
		gone = append(gone, r.removeElement(r.ll.Back(), EvictCapacity))
	}
	return v, true
}

// Get returns the live entry for key without creating one.
func (r *Registry[V]) Get(key string) (V, bool) {
	var gone []evicted[V]
	defer func() { r.notify(gone) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	var zero V
	el, found := r.items[key]
	if !found {
		r.misses.Add(1)
		return zero, false
	}
	ent := el.Value.(*entry[V])
	now := r.clock.Now()
	if r.isIdle(ent, now) {
		gone = append(gone, r.removeElement(el, EvictIdle))
		r.misses.Add(1)
		return zero, false
	}
	ent.lastSeen = now
	r.ll.MoveToFront(el)
	r.hits.Add(1)
	return ent.value, true
}

// Delete removes key.
func (r *Registry[V]) Delete(key string) bool {
	var gone []evicted[V]
	defer func() { r.notify(gone) }()

	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.items[key]; ok {
		gone = append(gone, r.removeElement(el, EvictRemoved))
		return true
	}
	return false
}

// Sweep evicts every idle entry and returns how many went.
func (r *Registry[V]) Sweep() int {
	var gone []evicted[V]
	defer func() { r.notify(gone) }()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	// Least recently used entries sit at the back, so stop at the first live one.
	for el := r.ll.Back(); el != nil; {
		ent := el.Value.(*entry[V])
		if !r.isIdle(ent, now) {
			break
		}
		prev := el.Prev()
		gone = append(gone, r.removeElement(el, EvictIdle))
		el = prev
	}
	return len(gone)
}

// Clear evicts everything.
func (r *Registry[V]) Clear() int {
	var gone []evicted[V]
	defer func() { r.notify(gone) }()

	r.mu.Lock()
	defer r.mu.Unlock()
	for el := r.ll.Back(); el != nil; el = r.ll.Back() {
		gone = append(gone, r.removeElement(el, EvictShutdown))
	}
	return len(gone)
}

// Len returns the number of entries, idle ones included until swept.
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ll.Len()
}

// RegistryStats are simple counters for observability.
type RegistryStats struct {
	Hits, Misses, Evictions uint64
	Size, Capacity          int
}

// Stats returns a snapshot of counters and sizes.
func (r *Registry[V]) Stats() RegistryStats {
	return RegistryStats{
		Hits:      r.hits.Load(),
		Misses:    r.misses.Load(),
		Evictions: r.evicts.Load(),
		Size:      r.Len(),
		Capacity:  r.cap,
	}
}

// Helpers (caller must hold r.mu).
func (r *Registry[V]) isIdle(e *entry[V], now time.Time) bool {
	if r.idleTTL <= 0 {
		return false
	}
	return now.Sub(e.lastSeen) >= r.idleTTL
}

func (r *Registry[V]) removeElement(el *list.Element, reason EvictReason) evicted[V] {
	r.ll.Remove(el)
	ent := el.Value.(*entry[V])
	delete(r.items, ent.key)
	r.evicts.Add(1)
	return evicted[V]{key: ent.key, value: ent.value, reason: reason}
}

func (r *Registry[V]) notify(gone []evicted[V]) {
	if r.onEvict == nil {
		return
	}
	for _, g := range gone {
		r.onEvict(g.key, g.value, g.reason)
	}
}
