package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeSweeper evicts idle browser workspaces and cancels their polls.
	ServiceModeSweeper ServiceMode = "sweeper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeSweeper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeSweeper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, sweeper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// PollConfig controls the async job poller.
type PollConfig struct {
	// PDFInterval is the status poll interval for PDF generation.
	PDFInterval time.Duration `env:"POLL_PDF_INTERVAL" envDefault:"1s"`

	// JobInterval is the status poll interval for jobs-service operations
	// (clone, replace, order checks).
	JobInterval time.Duration `env:"POLL_JOB_INTERVAL" envDefault:"10s"`

	// StatusExpr is the JMESPath expression selecting the status from a job status document.
	StatusExpr string `env:"POLL_STATUS_EXPR" envDefault:"status"`

	// ErrorExpr is the JMESPath expression selecting the failure message from a job status document.
	ErrorExpr string `env:"POLL_ERROR_EXPR" envDefault:"error"`
}

// Sanitize applies guardrails to poll configuration values.
func (p *PollConfig) Sanitize() {
	if p.PDFInterval < 100*time.Millisecond {
		p.PDFInterval = time.Second
	}
	if p.JobInterval < 100*time.Millisecond {
		p.JobInterval = 10 * time.Second
	}
	if strings.TrimSpace(p.StatusExpr) == "" {
		p.StatusExpr = "status"
	}
	if strings.TrimSpace(p.ErrorExpr) == "" {
		p.ErrorExpr = "error"
	}
}

// WorkspaceConfig controls per-browser workspaces.
type WorkspaceConfig struct {
	// Capacity bounds the number of live workspaces; least recently used are evicted first.
	Capacity int `env:"WORKSPACE_CAPACITY" envDefault:"2048"`

	// IdleTTL evicts workspaces not touched for this long.
	IdleTTL time.Duration `env:"WORKSPACE_IDLE_TTL" envDefault:"2h"`

	// SweepInterval is how often the sweeper looks for idle workspaces.
	SweepInterval time.Duration `env:"WORKSPACE_SWEEP_INTERVAL" envDefault:"1m"`

	// CookieName identifies the browser.
	CookieName string `env:"WORKSPACE_COOKIE" envDefault:"ts_browser"`
}

// Sanitize applies guardrails to workspace configuration values.
func (w *WorkspaceConfig) Sanitize() {
	if w.Capacity < 1 {
		w.Capacity = 1
	}
	if w.IdleTTL <= 0 {
		w.IdleTTL = 2 * time.Hour
	}
	if w.SweepInterval <= 0 {
		w.SweepInterval = time.Minute
	}
	if strings.TrimSpace(w.CookieName) == "" {
		w.CookieName = "ts_browser"
	}
}
