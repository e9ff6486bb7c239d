// Package redis provides Redis-based adapters for the admin front end.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/uvalib/tracksys2/internal/ports"
)

// DefaultPrefix namespaces browser hashes.
const DefaultPrefix = "tracksys:browser:"

var _ ports.BrowserStorage = (*BrowserStorage)(nil)

// BrowserStorage keeps each browser's client storage in one Redis hash.
// Every write refreshes the hash TTL, so storage lives as long as the
// browser keeps using it.
type BrowserStorage struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// BrowserStorageOptions configures BrowserStorage.
type BrowserStorageOptions struct {
	Prefix string
	// TTL <= 0 keeps hashes forever.
	TTL time.Duration
}

// NewBrowserStorage creates Redis-backed browser storage.
func NewBrowserStorage(client redis.UniversalClient, opts BrowserStorageOptions) *BrowserStorage {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &BrowserStorage{client: client, prefix: prefix, ttl: opts.TTL}
}

// For returns storage bound to one browser.
func (s *BrowserStorage) For(browserID string) ports.ClientStorage {
	return &clientStorage{parent: s, key: s.prefix + browserID}
}

// Purge removes everything stored for browserID.
func (s *BrowserStorage) Purge(ctx context.Context, browserID string) error {
	if browserID == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+browserID).Err(); err != nil {
		return unavailable("redis del", err)
	}
	return nil
}

type clientStorage struct {
	parent *BrowserStorage
	key    string
}

func (c *clientStorage) Get(ctx context.Context, field string) (string, error) {
	v, err := c.parent.client.HGet(ctx, c.key, field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", unavailable("redis hget", err)
	}
	return v, nil
}

func (c *clientStorage) Set(ctx context.Context, field, value string) error {
	_, err := c.parent.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, c.key, field, value)
		if c.parent.ttl > 0 {
			p.Expire(ctx, c.key, c.parent.ttl)
		}
		return nil
	})
	if err != nil {
		return unavailable("redis hset", err)
	}
	return nil
}

func (c *clientStorage) Remove(ctx context.Context, field string) error {
	if err := c.parent.client.HDel(ctx, c.key, field).Err(); err != nil {
		return unavailable("redis hdel", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ports.ErrStorageUnavailable, err)
}
