package config

import (
	"strings"
	"time"
)

// BackendConfig describes the REST collaborators the admin front end talks to.
type BackendConfig struct {
	// APIURL is the base of the tracksys REST API (paths under /api/...).
	APIURL string `env:"API_URL" envDefault:"http://localhost:8085"`

	// JobsURL is the fallback base for the background jobs service when
	// /api/config does not report one.
	JobsURL string `env:"BACKEND_JOBS_URL" envDefault:"http://localhost:8180"`

	// UnauthenticatedPrefixes are URL prefixes reached without this app's bearer token
	// (jobs service, IIIF manifest service). Separated by ';'.
	UnauthenticatedPrefixes []string `env:"BACKEND_UNAUTH_PREFIXES" envSeparator:";"`

	// Timeout bounds every individual backend request.
	Timeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"30s"`

	// Breaker trips after BreakerFailures consecutive transport failures and
	// stays open for BreakerCooldown.
	BreakerFailures uint32        `env:"BACKEND_BREAKER_FAILURES" envDefault:"5"`
	BreakerCooldown time.Duration `env:"BACKEND_BREAKER_COOLDOWN" envDefault:"30s"`
}

// Sanitize applies guardrails to backend configuration values.
func (b *BackendConfig) Sanitize() {
	b.APIURL = strings.TrimRight(strings.TrimSpace(b.APIURL), "/")
	b.JobsURL = strings.TrimRight(strings.TrimSpace(b.JobsURL), "/")

	prefixes := make([]string, 0, len(b.UnauthenticatedPrefixes)+1)
	for _, p := range b.UnauthenticatedPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	if b.JobsURL != "" && !containsString(prefixes, b.JobsURL) {
		prefixes = append(prefixes, b.JobsURL)
	}
	b.UnauthenticatedPrefixes = prefixes

	if b.Timeout <= 0 {
		b.Timeout = 30 * time.Second
	}
	if b.BreakerFailures == 0 {
		b.BreakerFailures = 5
	}
	if b.BreakerCooldown <= 0 {
		b.BreakerCooldown = 30 * time.Second
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
