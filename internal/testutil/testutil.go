// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }

// TestRedis is a Redis client plus, when running in-process, the server
// behind it so tests can move its clock.
type TestRedis struct {
	Client *redis.Client
	// Mini is nil when the tests run against a real Redis.
	Mini *miniredis.Miniredis
}

// FastForward moves key expiry forward. Against a real Redis it is a no-op,
// so TTL tests that depend on it should check Mini first.
func (r TestRedis) FastForward(d time.Duration) {
	if r.Mini != nil {
		r.Mini.FastForward(d)
	}
}

// SetupTestRedis returns a client for tests. With REDIS_ADDR set it uses that
// server (flushing the selected DB); otherwise it starts an in-process
// miniredis. Everything is closed on test cleanup.
func SetupTestRedis(t testing.TB) TestRedis {
	t.Helper()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: 1})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			if requireRedis() {
				t.Fatalf("Redis not available for testing at %s: %v", addr, err)
			}
			t.Skipf("Redis not available for testing at %s: %v", addr, err)
		}
		client.FlushDB(ctx)
		t.Cleanup(func() {
			if err := client.Close(); err != nil {
				t.Logf("warning: failed to close redis client: %v", err)
			}
		})
		return TestRedis{Client: client}
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return TestRedis{Client: client, Mini: mr}
}

// FixedTimeFunc returns a function that always returns the same time.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time {
		return t
	}
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}
