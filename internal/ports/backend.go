package ports

import (
	"context"
	"errors"
	"net/http"
)

// ErrRedirected means a backend request was answered by navigating the
// browser elsewhere (signed-out or forbidden page). Callers treat it as
// handled and surface nothing.
var ErrRedirected = errors.New("request redirected")

// Backend is the REST collaborator as seen by the stores. Paths are relative
// to the backend API base; absolute URLs (the jobs service) are used as is.
// Failures are AppErrors, or the sentinel for a request that already sent the
// browser elsewhere.
type Backend interface {
	GetJSON(ctx context.Context, path string, out any) error
	GetText(ctx context.Context, path string) (string, error)
	PostJSON(ctx context.Context, path string, in, out any) error
	PostText(ctx context.Context, path string, in any) (string, error)
	// Delete decodes the answer into out when out is non-nil.
	Delete(ctx context.Context, path string, in, out any) error
	// Stream returns a successful response whose body the caller must close.
	Stream(ctx context.Context, path string) (*http.Response, error)
}
