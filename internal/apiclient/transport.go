package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/session"
)

// ErrRedirected is returned once the browser has been sent to the signed-out
// or forbidden page.
var ErrRedirected = ports.ErrRedirected

// Expired is where a 401 sends the browser.
const Expired = "/signedout?expired=1"

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Middleware wraps a transport.
type Middleware func(http.RoundTripper) http.RoundTripper

// Chain applies middleware so the first one listed runs outermost.
func Chain(base http.RoundTripper, mw ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mw) - 1; i >= 0; i-- {
		base = mw[i](base)
	}
	return base
}

// Prefixes is a set of URL prefixes that may grow after the client is built,
// as collaborator URLs are discovered.
type Prefixes struct {
	mu   sync.RWMutex
	list []string
}

// NewPrefixes returns a set holding the non-empty entries of initial.
func NewPrefixes(initial ...string) *Prefixes {
	p := &Prefixes{}
	for _, v := range initial {
		p.Add(v)
	}
	return p
}

// Add records prefix. Blank and duplicate entries are ignored.
func (p *Prefixes) Add(prefix string) {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if slices.Contains(p.list, prefix) {
		return
	}
	p.list = append(p.list, prefix)
}

// Match reports whether u starts with one of the prefixes.
func (p *Prefixes) Match(u string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, v := range p.list {
		if strings.HasPrefix(u, v) {
			return true
		}
	}
	return false
}

// Bearer attaches the session token to every request except those whose URL
// starts with one of the unauthenticated prefixes.
func Bearer(sc *session.Context, unauthenticated *Prefixes) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			tok := sc.Token()
			if tok == "" || unauthenticated.Match(r.URL.String()) {
				return next.RoundTrip(r)
			}
			r = r.Clone(r.Context())
			r.Header.Set("Authorization", "Bearer "+tok)
			return next.RoundTrip(r)
		})
	}
}

// UnauthorizedOptions configures the Unauthorized middleware.
type UnauthorizedOptions struct {
	Session   *session.Context
	Storage   ports.ClientStorage
	Navigator ports.Navigator
	Logger    *slog.Logger
}

// Unauthorized handles expired sessions. A failed call to an authenticate
// endpoint goes to the forbidden page. A 401 from anywhere else signs the
// session out, forgets the stored token and sends the browser to the
// signed-out page. Both answer with ErrRedirected.
func Unauthorized(opts UnauthorizedOptions) Middleware {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(r)
			authCall := strings.Contains(r.URL.Path, "/authenticate")

			if authCall && (err != nil || resp.StatusCode >= http.StatusBadRequest) {
				drain(resp)
				opts.Navigator.Push("/forbidden")
				return nil, ErrRedirected
			}
			if err != nil || resp.StatusCode != http.StatusUnauthorized {
				return resp, err
			}

			drain(resp)
			logger.InfoContext(r.Context(), "backend rejected session token", slog.String("url", r.URL.Path))
			opts.Session.SignOut()
			// a detached context so the token is cleared even if the request's was canceled
			clearCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
			defer cancel()
			if rmErr := opts.Storage.Remove(clearCtx, ports.KeyToken); rmErr != nil {
				logger.WarnContext(r.Context(), "clear stored token", slog.Any("error", rmErr))
			}
			opts.Navigator.Push(Expired)
			return nil, ErrRedirected
		})
	}
}

func drain(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

// BreakerOptions configures the circuit breaker middleware.
type BreakerOptions struct {
	Name     string
	Failures uint32
	Cooldown time.Duration
	Logger   *slog.Logger
}

// ErrBreakerOpen is returned while the backend is considered down.
var ErrBreakerOpen = errors.New("backend circuit open")

// Breaker fails fast after consecutive transport errors or 5xx answers.
// Nothing is retried.
func Breaker(opts BreakerOptions) (Middleware, *gobreaker.CircuitBreaker) {
	failures := opts.Failures
	if failures == 0 {
		failures = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Timeout:     opts.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("backend breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	mw := func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			var (
				resp  *http.Response
				rtErr error
			)
			_, err := cb.Execute(func() (any, error) {
				resp, rtErr = next.RoundTrip(r)
				if rtErr != nil {
					if r.Context().Err() != nil {
						// canceled by the caller; the backend is not at fault
						return nil, nil
					}
					return nil, rtErr
				}
				if resp.StatusCode >= http.StatusInternalServerError {
					return nil, fmt.Errorf("backend status %d", resp.StatusCode)
				}
				return nil, nil
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, fmt.Errorf("%w: %w", ErrBreakerOpen, err)
			}
			if rtErr != nil {
				return nil, rtErr
			}
			// 5xx still reaches the caller with its body
			return resp, nil
		})
	}
	return mw, cb
}
