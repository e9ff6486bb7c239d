package workspace

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTarget struct {
	sweeps atomic.Int32
}

func (c *countingTarget) Sweep() int {
	c.sweeps.Add(1)
	return 2
}

func (c *countingTarget) Live() int { return 5 }

func TestSweeper_SweepsOnEveryTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	target := &countingTarget{}
	s, err := NewSweeper(SweeperOptions{Target: target, Interval: time.Minute, Clock: clock})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return target.sweeps.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return target.sweeps.Load() == 2 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_DeadlineIsReturned(t *testing.T) {
	s, err := NewSweeper(SweeperOptions{Target: &countingTarget{}, Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)
}

func TestNewSweeper_Validation(t *testing.T) {
	_, err := NewSweeper(SweeperOptions{Interval: time.Minute})
	require.Error(t, err)
	_, err = NewSweeper(SweeperOptions{Target: &countingTarget{}})
	require.Error(t, err)
}
