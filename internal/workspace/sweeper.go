package workspace

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Sweepable is anything holding idle state that can be swept.
type Sweepable interface {
	Sweep() int
	Live() int
}

// SweeperOptions groups dependencies for Sweeper.
type SweeperOptions struct {
	Target   Sweepable       // Required: what to sweep
	Interval time.Duration   // Required: time between sweeps
	Clock    clockwork.Clock // Optional: defaults to the real clock
	Logger   *slog.Logger    // Optional: structured logger
}

// Sweeper evicts idle workspaces on a fixed interval.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewSweeper constructs a Sweeper.
func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Target == nil {
		return nil, errors.New("sweep target is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		target:   opts.Target,
		interval: opts.Interval,
		clock:    clock,
		logger:   logger.With("component", "workspace_sweeper"),
	}, nil
}

// Run sweeps until ctx is done. It returns nil on graceful shutdown.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting workspace sweeper", "interval", s.interval)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "workspace sweeper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.Chan():
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n := s.target.Sweep()
	if n == 0 {
		return
	}
	s.logger.InfoContext(ctx, "evicted idle workspaces",
		slog.Int("evicted", n),
		slog.Int("live", s.target.Live()),
	)
}
