// Package prom adapts the metrics Sink interface onto a Prometheus registry
// so the same call sites can be scraped instead of pushed to StatsD.
package prom

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uvalib/tracksys2/internal/observability/statsd"
)

// Sink registers collectors lazily, one per metric name. The label set of a
// name is fixed by its first use; later calls with different tag keys are dropped.
type Sink struct {
	reg       *prometheus.Registry
	namespace string
	logger    *slog.Logger

	mu         sync.Mutex
	labels     map[string][]string
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

var _ statsd.Sink = (*Sink)(nil)

// NewSink creates a sink backed by a fresh registry that also carries the
// Go runtime and process collectors.
func NewSink(namespace string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return &Sink{
		reg:        reg,
		namespace:  sanitize(namespace),
		logger:     logger,
		labels:     map[string][]string{},
		counters:   map[string]*prometheus.CounterVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
		histograms: map[string]*prometheus.HistogramVec{},
	}
}

// Registry exposes the underlying registry (tests, extra collectors).
func (s *Sink) Registry() *prometheus.Registry { return s.reg }

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}

// Count adds value to the counter <name>_total.
func (s *Sink) Count(name string, value int64, tags map[string]string) {
	keys, labels := splitTags(tags)
	vec := s.counter(sanitize(name)+"_total", keys)
	if vec == nil || value < 0 {
		return
	}
	vec.With(labels).Add(float64(value))
}

// Gauge sets the gauge <name>.
func (s *Sink) Gauge(name string, value float64, tags map[string]string) {
	keys, labels := splitTags(tags)
	vec := s.gauge(sanitize(name), keys)
	if vec == nil {
		return
	}
	vec.With(labels).Set(value)
}

// Timing observes value in the histogram <name>_seconds.
func (s *Sink) Timing(name string, value time.Duration, tags map[string]string) {
	keys, labels := splitTags(tags)
	vec := s.histogram(sanitize(name)+"_seconds", keys)
	if vec == nil {
		return
	}
	vec.With(labels).Observe(value.Seconds())
}

func (s *Sink) counter(name string, keys []string) *prometheus.CounterVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vec, ok := s.counters[name]; ok {
		return checked(s, name, keys, vec)
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: s.namespace, Name: name, Help: name}, keys)
	if !s.register(name, keys, vec) {
		return nil
	}
	s.counters[name] = vec
	return vec
}

func (s *Sink) gauge(name string, keys []string) *prometheus.GaugeVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vec, ok := s.gauges[name]; ok {
		return checked(s, name, keys, vec)
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: s.namespace, Name: name, Help: name}, keys)
	if !s.register(name, keys, vec) {
		return nil
	}
	s.gauges[name] = vec
	return vec
}

func (s *Sink) histogram(name string, keys []string) *prometheus.HistogramVec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vec, ok := s.histograms[name]; ok {
		return checked(s, name, keys, vec)
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: s.namespace,
		Name:      name,
		Help:      name,
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, keys)
	if !s.register(name, keys, vec) {
		return nil
	}
	s.histograms[name] = vec
	return vec
}

func (s *Sink) register(name string, keys []string, c prometheus.Collector) bool {
	if name == "" || name == "_total" || name == "_seconds" {
		return false
	}
	if err := s.reg.Register(c); err != nil {
		s.logger.Debug("prometheus register failed", "metric", name, "error", err)
		return false
	}
	s.labels[name] = keys
	return true
}

// checked returns vec when keys match the registered label set, else nil.
func checked[V any](s *Sink, name string, keys []string, vec V) V {
	var zero V
	if !slices.Equal(s.labels[name], keys) {
		s.logger.Debug("prometheus label mismatch", "metric", name, "want", s.labels[name], "got", keys)
		return zero
	}
	return vec
}

func splitTags(tags map[string]string) ([]string, prometheus.Labels) {
	labels := make(prometheus.Labels, len(tags))
	for k, v := range tags {
		if key := sanitize(k); key != "" {
			labels[key] = strings.TrimSpace(v)
		}
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, labels
}

// sanitize maps a StatsD-style name onto the Prometheus charset.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9' && i > 0:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
