package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	apperrors "github.com/uvalib/tracksys2/internal/errors"
	"github.com/uvalib/tracksys2/internal/ports"
)

// ToastKind selects how a notification is styled.
type ToastKind string

// Toast kinds.
const (
	ToastInfo    ToastKind = "info"
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
)

// Toast is a transient notification for the browser.
type Toast struct {
	Kind    ToastKind `json:"kind"`
	Message string    `json:"message"`
}

// SystemConfig is the backend's /api/config answer.
type SystemConfig struct {
	Version         string `json:"version"`
	ReportsURL      string `json:"reportsURL"`
	ProjectsURL     string `json:"projectsURL"`
	JobsURL         string `json:"jobsURL"`
	IIIFManifestURL string `json:"iiifManifestURL"`
	CurioURL        string `json:"curioURL"`
}

// Notices is everything pending for display, drained by the browser.
type Notices struct {
	Working bool    `json:"working"`
	Error   string  `json:"error,omitempty"`
	Toasts  []Toast `json:"toasts,omitempty"`
}

// SystemStoreOptions groups dependencies for SystemStore.
type SystemStoreOptions struct {
	Backend ports.Backend  // Required: backend API
	JobsURL string         // Optional: used until /api/config names one
	Exempt  BearerExempter // Optional: told the jobs URL /api/config names
	Logger  *slog.Logger   // Optional: structured logger
}

// BearerExempter keeps the session token away from collaborator URLs.
type BearerExempter interface {
	ExemptPrefix(prefix string)
}

// SystemStore holds the shared working flag, the error banner and toasts,
// plus the backend's configuration.
type SystemStore struct {
	backend ports.Backend
	exempt  BearerExempter
	logger  *slog.Logger

	mu       sync.Mutex
	working  bool
	errMsg   string
	toasts   []Toast
	cfg      SystemConfig
	fallback string
}

// NewSystemStore constructs a SystemStore.
func NewSystemStore(opts SystemStoreOptions) *SystemStore {
	if opts.Backend == nil {
		//nolint:forbidigo // Store construction must fail fast during wiring when dependencies are missing
		panic("Backend is required")
	}
	return &SystemStore{
		backend:  opts.Backend,
		exempt:   opts.Exempt,
		logger:   resolveLogger(opts.Logger).With("store", "system"),
		cfg:      SystemConfig{Version: "unknown"},
		fallback: strings.TrimRight(opts.JobsURL, "/"),
	}
}

// LoadConfig fetches /api/config.
func (s *SystemStore) LoadConfig(ctx context.Context) error {
	s.SetWorking(true)
	var cfg SystemConfig
	if err := s.backend.GetJSON(ctx, "/api/config", &cfg); err != nil {
		s.SetError(err)
		return err
	}
	cfg.JobsURL = strings.TrimRight(cfg.JobsURL, "/")
	if cfg.JobsURL != "" && s.exempt != nil {
		s.exempt.ExemptPrefix(cfg.JobsURL)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.working = false
	s.mu.Unlock()
	return nil
}

// Config returns the last loaded configuration.
func (s *SystemStore) Config() SystemConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// JobsURL is the jobs service base, from /api/config or the configured fallback.
func (s *SystemStore) JobsURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.JobsURL != "" {
		return s.cfg.JobsURL
	}
	return s.fallback
}

// SetWorking toggles the busy indicator.
func (s *SystemStore) SetWorking(on bool) {
	s.mu.Lock()
	s.working = on
	s.mu.Unlock()
}

// Working reports the busy indicator.
func (s *SystemStore) Working() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working
}

// SetError shows err in the error banner and clears the busy indicator.
// Requests that already redirected the browser, or were canceled because
// the page no longer needs them, are not errors.
func (s *SystemStore) SetError(err error) {
	if err == nil || errors.Is(err, ports.ErrRedirected) ||
		errors.Is(err, context.Canceled) || apperrors.IsCanceled(err) {
		s.SetWorking(false)
		return
	}
	msg := err.Error()
	if appErr := new(apperrors.AppError); errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	s.logger.Debug("store error", slog.String("error", err.Error()))

	s.mu.Lock()
	s.errMsg = msg
	s.working = false
	s.mu.Unlock()
}

// SetErrorMessage shows a fixed message in the error banner.
func (s *SystemStore) SetErrorMessage(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.working = false
	s.mu.Unlock()
}

// Error returns the current banner text.
func (s *SystemStore) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// ClearError dismisses the banner.
func (s *SystemStore) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

// Toast queues a notification.
func (s *SystemStore) Toast(kind ToastKind, msg string) {
	s.mu.Lock()
	s.toasts = append(s.toasts, Toast{Kind: kind, Message: msg})
	s.mu.Unlock()
}

// Notices drains queued toasts and the error banner.
func (s *SystemStore) Notices() Notices {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := Notices{Working: s.working, Error: s.errMsg, Toasts: s.toasts}
	s.errMsg = ""
	s.toasts = nil
	return n
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
