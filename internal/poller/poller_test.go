package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const interval = time.Second

type recorder struct {
	mu        sync.Mutex
	progress  []int
	successes int
	failures  []error
}

func (r *recorder) options(clock clockwork.Clock) Options {
	return Options{
		Name:     "pdf",
		Interval: interval,
		Clock:    clock,
		OnProgress: func(s Status) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, s.Percent)
		},
		OnSuccess: func(Ticket, Status) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.successes++
		},
		OnFailure: func(_ Ticket, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.failures = append(r.failures, err)
		},
	}
}

// scripted answers checks from a fixed list and counts requests.
type scripted struct {
	answers []string
	calls   atomic.Int32
}

func (s *scripted) check(context.Context, Ticket) (Status, error) {
	n := int(s.calls.Add(1))
	return ParseStatus(s.answers[n-1]), nil
}

func pendingTrigger(context.Context) (Ticket, error) {
	return Ticket{JobID: "1", Token: "abc", Status: "0%"}, nil
}

// tick waits until the poller has armed its timer and fires it.
func tick(t *testing.T, ctx context.Context, clock *clockwork.FakeClock) {
	t.Helper()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(interval)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStart_PollsUntilReady(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	s := &scripted{answers: []string{"10%", "55%", "READY"}}

	h := Start(ctx, pendingTrigger, s.check, rec.options(clock))
	for range s.answers {
		tick(t, ctx, clock)
	}

	out, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.NoError(t, out.Err)
	assert.Equal(t, 3, out.Polls)
	assert.Equal(t, int32(3), s.calls.Load(), "no poll after the terminal status")
	assert.Equal(t, []int{0, 10, 55}, rec.progress)
	assert.Equal(t, 1, rec.successes)
	assert.Empty(t, rec.failures)

	// the timer was released: nothing is waiting on the clock anymore
	require.NoError(t, clock.BlockUntilContext(ctx, 0))
}

func TestStart_StopsOnFailure(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	s := &scripted{answers: []string{"30%", "FAILED"}}

	h := Start(ctx, pendingTrigger, s.check, rec.options(clock))
	tick(t, ctx, clock)
	tick(t, ctx, clock)

	out, err := h.Wait(ctx)
	require.NoError(t, err)
	var failed *FailedError
	require.ErrorAs(t, out.Err, &failed)
	assert.Equal(t, "pdf", failed.Operation)
	assert.Equal(t, 0, rec.successes)
	assert.Len(t, rec.failures, 1)
	assert.Equal(t, int32(2), s.calls.Load())

	clock.Advance(10 * interval)
	assert.Equal(t, int32(2), s.calls.Load(), "no further polls after failure")
}

func TestStart_TransportErrorFailsFast(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	boom := errors.New("connection reset")
	var calls atomic.Int32
	check := func(context.Context, Ticket) (Status, error) {
		calls.Add(1)
		return Status{}, boom
	}

	h := Start(ctx, pendingTrigger, check, rec.options(clock))
	tick(t, ctx, clock)

	out, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err, boom)
	assert.Equal(t, int32(1), calls.Load())
	require.Len(t, rec.failures, 1)
	assert.ErrorIs(t, rec.failures[0], boom)
}

func TestStart_TriggerErrorNeverPolls(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	boom := errors.New("500")
	s := &scripted{}

	h := Start(ctx, func(context.Context) (Ticket, error) { return Ticket{}, boom }, s.check, rec.options(clock))
	out, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err, boom)
	assert.Equal(t, int32(0), s.calls.Load())
	assert.Len(t, rec.failures, 1)
}

func TestStart_ImmediateTerminalStatus(t *testing.T) {
	tests := []struct {
		status  string
		success bool
	}{
		{status: "READY", success: true},
		{status: "FAILED", success: false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			ctx := testContext(t)
			clock := clockwork.NewFakeClock()
			rec := &recorder{}
			s := &scripted{}
			trigger := func(context.Context) (Ticket, error) {
				return Ticket{Token: "t", Status: tt.status, Message: "no pages"}, nil
			}

			h := Start(ctx, trigger, s.check, rec.options(clock))
			out, err := h.Wait(ctx)
			require.NoError(t, err)

			assert.Equal(t, 0, out.Polls)
			assert.Equal(t, int32(0), s.calls.Load())
			if tt.success {
				assert.NoError(t, out.Err)
				assert.Equal(t, 1, rec.successes)
			} else {
				assert.EqualError(t, out.Err, "pdf failed: no pages")
				assert.Len(t, rec.failures, 1)
			}
		})
	}
}

func TestHandle_Cancel(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	s := &scripted{answers: []string{"10%"}}

	h := Start(ctx, pendingTrigger, s.check, rec.options(clock))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	h.Cancel()

	out, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, out.Canceled())
	assert.Empty(t, rec.failures, "cancellation is not a failure")
	assert.Equal(t, 0, rec.successes)
	assert.Equal(t, int32(0), s.calls.Load())
	require.NoError(t, clock.BlockUntilContext(ctx, 0))

	h.Cancel()
}

func TestHandle_ResultBeforeFinish(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	s := &scripted{answers: []string{"READY"}}

	h := Start(ctx, pendingTrigger, s.check, Options{Clock: clock, Interval: interval})
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	_, ok := h.Result()
	assert.False(t, ok)

	clock.Advance(interval)
	<-h.Done()
	out, ok := h.Result()
	assert.True(t, ok)
	assert.Equal(t, Succeeded, out.Status.Phase)
}

func TestSlot_SecondStartIsNoOpWhileBusy(t *testing.T) {
	ctx := testContext(t)
	clock := clockwork.NewFakeClock()
	var triggers atomic.Int32
	trigger := func(context.Context) (Ticket, error) {
		triggers.Add(1)
		return Ticket{JobID: "9", Status: "queued"}, nil
	}
	s := &scripted{answers: []string{"finished", "finished"}}
	opts := Options{Name: "clone", Clock: clock, Interval: interval}

	var slot Slot
	first, started := slot.TryStart(ctx, trigger, s.check, opts)
	require.True(t, started)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.True(t, slot.Busy())

	second, started := slot.TryStart(ctx, trigger, s.check, opts)
	assert.False(t, started)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), triggers.Load())

	clock.Advance(interval)
	<-first.Done()
	assert.False(t, slot.Busy())

	third, started := slot.TryStart(ctx, trigger, s.check, opts)
	assert.True(t, started)
	assert.NotSame(t, first, third)
	assert.Same(t, third, slot.Current())
	slot.Cancel()
	<-third.Done()
}

func TestStart_ParentContextCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	s := &scripted{answers: []string{"10%"}}

	h := Start(parent, pendingTrigger, s.check, rec.options(clock))
	require.NoError(t, clock.BlockUntilContext(testContext(t), 1))
	cancel()

	<-h.Done()
	out, _ := h.Result()
	assert.True(t, out.Canceled())
	assert.Empty(t, rec.failures)
}
