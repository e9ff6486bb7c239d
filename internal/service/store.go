package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "github.com/uvalib/tracksys2/internal/errors"
	"github.com/uvalib/tracksys2/internal/observability/statsd"
	"github.com/uvalib/tracksys2/internal/poller"
	"github.com/uvalib/tracksys2/internal/ports"
)

// NotFoundPath is where a missing detail record sends the browser.
const NotFoundPath = "/not_found"

// StoreDeps groups what every resource store needs.
type StoreDeps struct {
	Backend   ports.Backend   // Required: backend API
	System    *SystemStore    // Required: shared error and toast state
	Navigator ports.Navigator // Required: receives /not_found on detail 404s
	Logger    *slog.Logger    // Optional: structured logger
}

func (d StoreDeps) validate(name string) {
	if d.Backend == nil || d.System == nil || d.Navigator == nil {
		//nolint:forbidigo // Store construction must fail fast during wiring when dependencies are missing
		panic(name + ": Backend, System and Navigator are required")
	}
}

// PollOptions tunes job polling for a store.
type PollOptions struct {
	Interval time.Duration
	Clock    clockwork.Clock // Optional: defaults to the real clock
	Metrics  statsd.Sink     // Optional: metrics sink
}

func (p PollOptions) options(name string, logger *slog.Logger) poller.Options {
	return poller.Options{
		Name:     name,
		Interval: p.Interval,
		Clock:    p.Clock,
		Logger:   logger,
		Metrics:  p.Metrics,
	}
}

// detailFailed applies the detail-fetch error policy: a 404 navigates to the
// not-found page, anything else goes to the error banner.
func detailFailed(d StoreDeps, err error) error {
	if apperrors.IsNotFound(err) {
		d.Navigator.Push(NotFoundPath)
		d.System.SetWorking(false)
		return err
	}
	d.System.SetError(err)
	return err
}

// background detaches a poll sequence from the request that started it while
// keeping the request's values (correlation id) for logging.
func background(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// IsRedirected reports whether err means the browser was already sent elsewhere.
func IsRedirected(err error) bool { return errors.Is(err, ports.ErrRedirected) }
