package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/uvalib/tracksys2/internal/errors"
)

type recordingSink struct {
	mu      sync.Mutex
	counts  map[string][]map[string]string
	gauges  map[string]float64
	timings map[string]time.Duration
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		counts:  map[string][]map[string]string{},
		gauges:  map[string]float64{},
		timings: map[string]time.Duration{},
	}
}

func (r *recordingSink) Count(name string, _ int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] = append(r.counts[name], tags)
}

func (r *recordingSink) Gauge(name string, v float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = v
}

func (r *recordingSink) Timing(name string, d time.Duration, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timings[name] = d
}

func TestEmitPollLifecycle_Started(t *testing.T) {
	sink := newRecordingSink()
	EmitPollLifecycle(sink, PollMetric{Operation: "pdf", Outcome: OutcomeStarted})

	assert.Len(t, sink.counts["poll.transition"], 1)
	assert.Empty(t, sink.timings)
	assert.Empty(t, sink.gauges)
}

func TestEmitPollLifecycle_FailedClassifiesError(t *testing.T) {
	sink := newRecordingSink()
	EmitPollLifecycle(sink, PollMetric{
		Operation: "clone",
		Outcome:   OutcomeFailed,
		Polls:     3,
		Duration:  30 * time.Second,
		Err:       apperrors.Unavailable(errors.New("refused"), "backend"),
	})

	tags := sink.counts["poll.transition"][0]
	assert.Equal(t, "unavailable", tags["error"])
	assert.Equal(t, 30*time.Second, sink.timings["poll.duration"])
	assert.InDelta(t, 3, sink.gauges["poll.requests"], 0.001)
}

func TestEmitWorkspaceEvictions(t *testing.T) {
	sink := newRecordingSink()
	EmitWorkspaceEvictions(sink, "idle", 0, 5)
	assert.Empty(t, sink.counts)
	assert.InDelta(t, 5, sink.gauges["workspace.live"], 0.001)

	EmitWorkspaceEvictions(sink, "idle", 2, 3)
	assert.Len(t, sink.counts["workspace.evicted"], 1)

	EmitWorkspaceEvictions(nil, "idle", 2, 3)
}
