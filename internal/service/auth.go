package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
	apperrors "github.com/uvalib/tracksys2/internal/errors"
	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/session"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider // Required: identity provider
	Roles    ports.RoleMapper   // Required: groups to staff role
	Codec    *session.Codec     // Required: must hold a signing key
	TokenTTL time.Duration      // Optional: defaults to 8h
	Clock    clockwork.Clock    // Optional: defaults to the real clock
	Logger   *slog.Logger       // Optional: structured logger
}

// AuthService runs the built-in authenticate flow: it signs staff in with an
// identity provider and mints the same session token the external
// authenticate endpoint would have issued.
type AuthService struct {
	provider ports.AuthProvider
	roles    ports.RoleMapper
	codec    *session.Codec
	ttl      time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Provider == nil || opts.Roles == nil || opts.Codec == nil {
		return nil, errors.New("auth service: Provider, Roles and Codec are required")
	}
	if !opts.Codec.Verifies() {
		return nil, fmt.Errorf("auth service: %w", session.ErrNoSigningKey)
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AuthService{
		provider: opts.Provider,
		roles:    opts.Roles,
		codec:    opts.Codec,
		ttl:      ttl,
		clock:    clock,
		logger:   resolveLogger(opts.Logger).With("component", "auth_service"),
	}, nil
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, apperrors.Validation("redirect URL is required")
	}
	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLoginResult is the signed-in user and the token to hand to the browser.
type CompleteLoginResult struct {
	User      domainauth.User
	Token     string
	ExpiresAt time.Time
}

// CompleteLogin exchanges the code for an identity, maps its groups to a
// role and mints a session token. Identities with no tracksys group are
// refused with a Forbidden error.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*CompleteLoginResult, error) {
	if input.Code == "" {
		return nil, apperrors.Validation("authorization code is required")
	}
	if input.State == "" {
		return nil, apperrors.Validation("state parameter is required")
	}
	if input.Nonce == "" {
		return nil, apperrors.Validation("nonce parameter is required")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput(input))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "exchange authorization code")
	}

	role, ok := s.roles.Map(identity.Groups)
	if !ok {
		s.logger.WarnContext(ctx, "sign in refused: no tracksys role",
			slog.String("compute_id", identity.ComputeID),
			slog.Int("groups", len(identity.Groups)),
		)
		return nil, apperrors.Forbidden("you are not authorized to use tracksys")
	}

	user := domainauth.User{
		ID:        identity.UserID,
		ComputeID: identity.ComputeID,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Role:      role,
	}

	ttl := s.ttl
	if !identity.ExpiresAt.IsZero() {
		if left := identity.ExpiresAt.Sub(s.clock.Now()); left > 0 && left < ttl {
			ttl = left
		}
	}
	token, err := s.codec.Mint(user, ttl)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "mint session token")
	}

	s.logger.InfoContext(ctx, "staff signed in",
		slog.String("compute_id", user.ComputeID),
		slog.String("role", string(role)),
	)
	return &CompleteLoginResult{User: user, Token: token, ExpiresAt: s.clock.Now().Add(ttl)}, nil
}
