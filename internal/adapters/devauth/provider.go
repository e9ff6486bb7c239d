package devauth

// Package devauth provides a simple, config-driven AuthProvider for local development.

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
	"github.com/uvalib/tracksys2/internal/ports"
)

// CallbackPath is where Begin sends the browser.
const CallbackPath = "/authenticate/callback"

// Config controls the dev auth provider behavior.
// ComputeID is required; Groups may be empty.
type Config struct {
	UserID          int64
	ComputeID       string
	FirstName       string
	LastName        string
	Email           string
	Groups          []string
	SessionDuration time.Duration // default 8h when zero
	Clock           clockwork.Clock
}

// Provider implements ports.AuthProvider for local development.
// It short-circuits the login by redirecting straight back to our own
// callback with locally generated state and nonce.
// Exchange ignores the code and returns the configured identity.
type Provider struct {
	identity        domainauth.Identity
	sessionDuration time.Duration
	clock           clockwork.Clock
}

var _ ports.AuthProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ComputeID == "" {
		return nil, errors.New("dev auth: ComputeID is required")
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Provider{
		identity: domainauth.Identity{
			UserID:    cfg.UserID,
			ComputeID: cfg.ComputeID,
			FirstName: cfg.FirstName,
			LastName:  cfg.LastName,
			Email:     cfg.Email,
			Groups:    append([]string(nil), cfg.Groups...),
		},
		sessionDuration: dur,
		clock:           clock,
	}, nil
}

// Begin returns the local callback URL with a random state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state := uuid.NewString()
	nonce := uuid.NewString()
	q := url.Values{"code": {"dev"}, "state": {state}}
	return CallbackPath + "?" + q.Encode(), state, nonce, nil
}

// Exchange returns the dev identity. State validation is the caller's job.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (domainauth.Identity, error) {
	id := p.identity
	id.Groups = append([]string(nil), p.identity.Groups...)
	id.ExpiresAt = p.clock.Now().Add(p.sessionDuration)
	return id, nil
}
