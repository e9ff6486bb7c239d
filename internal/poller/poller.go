// Package poller tracks server-accepted long-running jobs to completion.
//
// A sequence issues one trigger request, then polls a status check on a fixed
// interval until a terminal status, a transport error or cancellation. Polls
// are strictly serial: the next one is scheduled only after the previous
// response was handled. Errors end the sequence; nothing is retried.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/uvalib/tracksys2/internal/observability/metrics"
	"github.com/uvalib/tracksys2/internal/observability/statsd"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = time.Second

// Ticket is what the trigger request returned: an identifier to poll, or an
// immediate status for results the server already had.
type Ticket struct {
	JobID string
	// Token correlates status requests for operations that use one (PDF).
	Token string
	// Status, when terminal, short-circuits polling.
	Status  string
	Message string
}

// Trigger issues the request that starts (or finds) the server-side job.
type Trigger func(ctx context.Context) (Ticket, error)

// Check polls the job once.
type Check func(ctx context.Context, t Ticket) (Status, error)

// FailedError is the error for a job that reached a failure status.
type FailedError struct {
	Operation string
	Message   string
}

func (e *FailedError) Error() string {
	if e.Message == "" {
		return e.Operation + " failed"
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Options configures one poll sequence.
type Options struct {
	// Name labels logs and metrics (pdf, clone, replace, order_check).
	Name     string
	Interval time.Duration
	Clock    clockwork.Clock
	Logger   *slog.Logger
	Metrics  statsd.Sink

	// OnProgress runs for every non-terminal observation, including an
	// immediate one from the trigger.
	OnProgress func(Status)
	// OnSuccess runs exactly once on a success status.
	OnSuccess func(Ticket, Status)
	// OnFailure runs exactly once on a failure status or any transport error.
	// It does not run when the sequence is canceled.
	OnFailure func(Ticket, error)
}

func (o *Options) setDefaults() {
	if o.Name == "" {
		o.Name = "job"
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = statsd.Discard{}
	}
}

// Outcome describes how a sequence ended.
type Outcome struct {
	Ticket Ticket
	Status Status
	// Err is nil on success, a *FailedError on a failure status, the
	// transport error, or context.Canceled.
	Err   error
	Polls int
}

// Canceled reports whether the sequence was stopped before a terminal state.
func (o Outcome) Canceled() bool { return errors.Is(o.Err, context.Canceled) }

// Handle is a running (or finished) poll sequence.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	outcome Outcome
}

// Start launches a sequence in its own goroutine. Cancel ctx or call
// Handle.Cancel to stop it.
func Start(ctx context.Context, trigger Trigger, check Check, opts Options) *Handle {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go h.run(ctx, trigger, check, opts)
	return h
}

// Done is closed once the sequence has ended and its callbacks have returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops the sequence. It is safe to call at any time and more than once.
func (h *Handle) Cancel() { h.cancel() }

// Finished reports whether the sequence has ended.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome once finished.
func (h *Handle) Result() (Outcome, bool) {
	if !h.Finished() {
		return Outcome{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, true
}

// Wait blocks until the sequence ends or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		out, _ := h.Result()
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (h *Handle) run(ctx context.Context, trigger Trigger, check Check, opts Options) {
	defer close(h.done)
	defer h.cancel()

	started := opts.Clock.Now()
	logger := opts.Logger.With(slog.String("operation", opts.Name))
	metrics.EmitPollLifecycle(opts.Metrics, metrics.PollMetric{Operation: opts.Name, Outcome: metrics.OutcomeStarted})

	out := Outcome{}
	defer func() {
		h.finish(ctx, logger, opts, out, opts.Clock.Since(started))
	}()

	ticket, err := trigger(ctx)
	out.Ticket = ticket
	if err != nil {
		out.Err = err
		return
	}

	st := ParseStatus(ticket.Status)
	st.Message = ticket.Message
	out.Status = st
	if st.Terminal() {
		out.Err = statusErr(opts.Name, st)
		return
	}
	if st.HasPercent && opts.OnProgress != nil {
		opts.OnProgress(st)
	}

	timer := opts.Clock.NewTimer(opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			out.Err = ctx.Err()
			return
		case <-timer.Chan():
		}

		out.Polls++
		st, err := check(ctx, ticket)
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			out.Err = err
			return
		}
		out.Status = st
		if st.Terminal() {
			out.Err = statusErr(opts.Name, st)
			return
		}
		if opts.OnProgress != nil {
			opts.OnProgress(st)
		}
		timer.Reset(opts.Interval)
	}
}

func statusErr(name string, st Status) error {
	if st.Phase == Failed {
		return &FailedError{Operation: name, Message: st.Message}
	}
	return nil
}

// finish records the outcome and runs the terminal callback. It runs before
// Done is closed, so observers of Done see the callback's effects.
func (h *Handle) finish(ctx context.Context, logger *slog.Logger, opts Options, out Outcome, elapsed time.Duration) {
	h.mu.Lock()
	h.outcome = out
	h.mu.Unlock()

	m := metrics.PollMetric{Operation: opts.Name, Polls: out.Polls, Duration: elapsed, Err: out.Err}
	switch {
	case out.Err == nil:
		m.Outcome = metrics.OutcomeSucceeded
		logger.InfoContext(ctx, "job completed", slog.Int("polls", out.Polls), slog.Duration("elapsed", elapsed))
		if opts.OnSuccess != nil {
			opts.OnSuccess(out.Ticket, out.Status)
		}
	case out.Canceled():
		m.Outcome = metrics.OutcomeCanceled
		logger.InfoContext(ctx, "job polling canceled", slog.Int("polls", out.Polls))
	default:
		m.Outcome = metrics.OutcomeFailed
		logger.WarnContext(ctx, "job failed", slog.Int("polls", out.Polls), slog.Any("error", out.Err))
		if opts.OnFailure != nil {
			opts.OnFailure(out.Ticket, out.Err)
		}
	}
	metrics.EmitPollLifecycle(opts.Metrics, m)
}

// Slot allows at most one active sequence per logical operation.
type Slot struct {
	mu     sync.Mutex
	active *Handle
}

// TryStart starts a sequence unless one is still running, in which case it is
// a no-op: no trigger is issued and the running handle is returned with false.
func (s *Slot) TryStart(ctx context.Context, trigger Trigger, check Check, opts Options) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && !s.active.Finished() {
		return s.active, false
	}
	s.active = Start(ctx, trigger, check, opts)
	return s.active, true
}

// Busy reports whether a sequence is in flight.
func (s *Slot) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && !s.active.Finished()
}

// Current returns the most recent handle, running or not.
func (s *Slot) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Cancel stops the in-flight sequence, if any.
func (s *Slot) Cancel() {
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}
