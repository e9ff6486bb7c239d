package config

import (
	"fmt"
	"strings"
)

// MetricsSink selects where metrics are emitted.
type MetricsSink string

const (
	// MetricsSinkStatsd pushes metrics over UDP to a StatsD agent.
	MetricsSinkStatsd MetricsSink = "statsd"
	// MetricsSinkPrometheus exposes metrics on /metrics for scraping.
	MetricsSinkPrometheus MetricsSink = "prometheus"
)

// UnmarshalText implements encoding.TextUnmarshaler for MetricsSink.
func (m *MetricsSink) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "statsd", "prometheus":
		*m = MetricsSink(v)
		return nil
	default:
		return fmt.Errorf("invalid MetricsSink: %q (valid options: statsd, prometheus)", v)
	}
}

// ObservabilityConfig groups configuration that controls metrics and logging.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to StatsD or Prometheus.
type ObservabilityMetricsConfig struct {
	Enabled       bool        `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	Sink          MetricsSink `env:"OBSERVABILITY_METRICS_SINK"           envDefault:"statsd"`
	StatsdAddress string      `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string      `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"tracksys"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.TrimSpace(c.Prefix)
	if c.Sink == "" {
		c.Sink = MetricsSinkStatsd
	}
	if c.Sink == MetricsSinkStatsd && c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	if !c.Enabled {
		return false
	}
	return c.Sink == MetricsSinkPrometheus || c.StatsdAddress != ""
}

// UsesPrometheus reports whether metrics are exposed for scraping.
func (c *ObservabilityMetricsConfig) UsesPrometheus() bool {
	return c.IsEnabled() && c.Sink == MetricsSinkPrometheus
}
