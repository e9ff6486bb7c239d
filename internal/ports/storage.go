package ports

import (
	"context"
	"errors"
)

// Well-known client storage keys. These match the keys the browser app used
// in localStorage so an external authenticate endpoint needs no changes.
const (
	KeyToken  = "ts2_jwt"
	KeyIntent = "tsPriorURL"
)

// ErrStorageUnavailable is returned when the backing store cannot be reached.
var ErrStorageUnavailable = errors.New("client storage unavailable")

// ClientStorage is persistent per-browser key/value storage.
// Get returns "" with a nil error for a missing key.
type ClientStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// BrowserStorage hands out ClientStorage bound to a single browser.
type BrowserStorage interface {
	For(browserID string) ClientStorage
	// Purge drops everything stored for a browser.
	Purge(ctx context.Context, browserID string) error
}

// Navigator records an in-app navigation requested outside the guard,
// for example after a 401 or a 404 on a detail fetch.
type Navigator interface {
	Push(path string)
}
