package prom

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_Count(t *testing.T) {
	s := NewSink("tracksys", nil)

	s.Count("poll.transition", 1, map[string]string{"operation": "pdf", "outcome": "succeeded"})
	s.Count("poll.transition", 2, map[string]string{"operation": "pdf", "outcome": "succeeded"})
	s.Count("poll.transition", 1, map[string]string{"operation": "clone", "outcome": "failed"})

	vec := s.counters["poll_transition_total"]
	require.NotNil(t, vec)
	assert.InDelta(t, 3, testutil.ToFloat64(vec.WithLabelValues("pdf", "succeeded")), 0.0001)
	assert.InDelta(t, 1, testutil.ToFloat64(vec.WithLabelValues("clone", "failed")), 0.0001)
}

func TestSink_LabelMismatchDropped(t *testing.T) {
	s := NewSink("tracksys", nil)

	s.Count("poll.transition", 1, map[string]string{"operation": "pdf"})
	assert.NotPanics(t, func() {
		s.Count("poll.transition", 1, map[string]string{"other": "x"})
	})
	assert.InDelta(t, 1, testutil.ToFloat64(s.counters["poll_transition_total"].WithLabelValues("pdf")), 0.0001)
}

func TestSink_GaugeAndTiming(t *testing.T) {
	s := NewSink("tracksys", nil)

	s.Gauge("workspace.live", 4, nil)
	s.Timing("poll.duration", 1500*time.Millisecond, map[string]string{"operation": "pdf"})

	assert.InDelta(t, 4, testutil.ToFloat64(s.gauges["workspace_live"].WithLabelValues()), 0.0001)
	assert.Equal(t, 1, testutil.CollectAndCount(s.histograms["poll_duration_seconds"]))
}

func TestSink_Handler(t *testing.T) {
	s := NewSink("tracksys", nil)
	s.Count("workspace.evicted", 2, map[string]string{"reason": "idle"})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tracksys_workspace_evicted_total{reason="idle"} 2`))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "poll_transition", sanitize(" poll.transition "))
	assert.Equal(t, "job_duration", sanitize("job/duration"))
	assert.Equal(t, "x9", sanitize("9x9"))
	assert.Empty(t, sanitize("..."))
}
