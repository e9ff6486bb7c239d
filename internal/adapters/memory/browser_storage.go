// Package memory provides in-process adapters for single-instance and
// development deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/uvalib/tracksys2/internal/ports"
)

var _ ports.BrowserStorage = (*BrowserStorage)(nil)

type browserData struct {
	values  map[string]string
	expires time.Time // zero means never
}

// BrowserStorage keeps client storage in process memory. Data is lost on
// restart, which signs every browser out.
type BrowserStorage struct {
	mu    sync.Mutex
	data  map[string]*browserData
	ttl   time.Duration
	clock clockwork.Clock
}

// BrowserStorageOptions configures BrowserStorage.
type BrowserStorageOptions struct {
	// TTL <= 0 keeps data until purged.
	TTL   time.Duration
	Clock clockwork.Clock
}

// NewBrowserStorage creates in-memory browser storage.
func NewBrowserStorage(opts BrowserStorageOptions) *BrowserStorage {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BrowserStorage{data: make(map[string]*browserData), ttl: opts.TTL, clock: clock}
}

// For returns storage bound to one browser.
func (s *BrowserStorage) For(browserID string) ports.ClientStorage {
	return &clientStorage{parent: s, id: browserID}
}

// Purge removes everything stored for browserID.
func (s *BrowserStorage) Purge(_ context.Context, browserID string) error {
	s.mu.Lock()
	delete(s.data, browserID)
	s.mu.Unlock()
	return nil
}

// Len is the number of browsers with stored data, expired ones included.
func (s *BrowserStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Sweep drops expired browsers and returns how many went.
func (s *BrowserStorage) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	n := 0
	for id, d := range s.data {
		if d.expired(now) {
			delete(s.data, id)
			n++
		}
	}
	return n
}

func (d *browserData) expired(now time.Time) bool {
	return !d.expires.IsZero() && !now.Before(d.expires)
}

// live returns the browser's data, dropping it when expired. Caller holds s.mu.
func (s *BrowserStorage) live(id string) *browserData {
	d, ok := s.data[id]
	if !ok {
		return nil
	}
	if d.expired(s.clock.Now()) {
		delete(s.data, id)
		return nil
	}
	return d
}

type clientStorage struct {
	parent *BrowserStorage
	id     string
}

func (c *clientStorage) Get(_ context.Context, key string) (string, error) {
	s := c.parent
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.live(c.id); d != nil {
		return d.values[key], nil
	}
	return "", nil
}

func (c *clientStorage) Set(_ context.Context, key, value string) error {
	s := c.parent
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.live(c.id)
	if d == nil {
		d = &browserData{values: make(map[string]string, 2)}
		s.data[c.id] = d
	}
	d.values[key] = value
	if s.ttl > 0 {
		d.expires = s.clock.Now().Add(s.ttl)
	}
	return nil
}

func (c *clientStorage) Remove(_ context.Context, key string) error {
	s := c.parent
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.live(c.id); d != nil {
		delete(d.values, key)
	}
	return nil
}
