package metrics

import (
	"time"

	obserrors "github.com/uvalib/tracksys2/internal/observability/errors"
	"github.com/uvalib/tracksys2/internal/observability/statsd"
)

// Outcome constants for poll metric tagging.
const (
	OutcomeStarted   = "started"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCanceled  = "canceled"
	OutcomeSkipped   = "skipped"
)

// PollMetric captures one poll sequence transition for metric emission.
type PollMetric struct {
	Operation string
	Outcome   string
	Polls     int
	Duration  time.Duration
	Err       error
}

// EmitPollLifecycle emits standardised poll lifecycle metrics.
func EmitPollLifecycle(sink statsd.Sink, in PollMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"outcome":   in.Outcome,
		"error":     "none",
	}
	if in.Err != nil && in.Outcome == OutcomeFailed {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error"] = class
		}
	}

	sink.Count("poll.transition", 1, tags)

	if in.Outcome == OutcomeStarted || in.Outcome == OutcomeSkipped {
		return
	}
	timingTags := map[string]string{"operation": in.Operation, "outcome": in.Outcome}
	if in.Duration > 0 {
		sink.Timing("poll.duration", in.Duration, timingTags)
	}
	sink.Gauge("poll.requests", float64(in.Polls), CloneTags(timingTags))
}

// EmitWorkspaceEvictions records how many workspaces a sweep removed.
func EmitWorkspaceEvictions(sink statsd.Sink, reason string, evicted, live int) {
	if sink == nil {
		return
	}
	if evicted > 0 {
		sink.Count("workspace.evicted", int64(evicted), map[string]string{"reason": reason})
	}
	sink.Gauge("workspace.live", float64(live), nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
