package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uvalib/tracksys2/config"
	"github.com/uvalib/tracksys2/internal/adapters/authroles"
	"github.com/uvalib/tracksys2/internal/adapters/devauth"
	"github.com/uvalib/tracksys2/internal/adapters/oidc"
	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/service"
	"github.com/uvalib/tracksys2/internal/session"
)

// AuthConfig contains configuration for the built-in authenticate flow.
type AuthConfig struct {
	Auth   config.AuthConfig
	Codec  *session.Codec
	Logger *slog.Logger
}

// BuildAuthService creates the auth service for the built-in authenticate
// modes. It returns nil, nil in external mode, where another deployment
// serves /authenticate.
func BuildAuthService(ctx context.Context, cfg AuthConfig) (*service.AuthService, error) {
	if !cfg.Auth.Mode.IsBuiltIn() {
		return nil, nil
	}

	roleMapper := authroles.StaticRoleMapper{
		AdminGroup:      cfg.Auth.Groups.Admin,
		SupervisorGroup: cfg.Auth.Groups.Supervisor,
		StudentGroup:    cfg.Auth.Groups.Student,
		ViewerGroup:     cfg.Auth.Groups.Viewer,
	}

	var (
		prov ports.AuthProvider
		err  error
	)
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		prov, err = buildDevAuthProvider(cfg)
	case config.AuthModeOAuth:
		prov, err = buildOIDCProvider(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	svc, err := service.NewAuthService(service.AuthServiceOptions{
		Provider: prov,
		Roles:    roleMapper,
		Codec:    cfg.Codec,
		TokenTTL: cfg.Auth.TokenTTL,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build auth service: %w", err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Info("built-in authentication enabled", "mode", cfg.Auth.Mode)
	}
	return svc, nil
}

//nolint:ireturn // provider selection happens at runtime.
func buildDevAuthProvider(cfg AuthConfig) (ports.AuthProvider, error) {
	dev := cfg.Auth.DevAuth
	prov, err := devauth.NewProvider(devauth.Config{
		UserID:          dev.UserID,
		ComputeID:       dev.ComputeID,
		FirstName:       dev.FirstName,
		LastName:        dev.LastName,
		Email:           dev.Email,
		Groups:          dev.Groups,
		SessionDuration: cfg.Auth.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Warn("dev authentication is enabled; every browser signs in as the configured user",
			"compute_id", dev.ComputeID)
	}
	return prov, nil
}

//nolint:ireturn // provider selection happens at runtime.
func buildOIDCProvider(ctx context.Context, cfg AuthConfig) (ports.AuthProvider, error) {
	oauth := cfg.Auth.OAuth
	if oauth.DiscoveryURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
		return nil, errors.New("AUTH_MODE=oauth requires OAUTH_DISCOVERY_URL, OAUTH_CLIENT_ID and OAUTH_CLIENT_SECRET")
	}
	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURL:  oauth.RedirectURL,
		Scope:        oauth.Scope,
		DiscoveryURL: oauth.DiscoveryURL,
		LogoutURL:    oauth.LogoutURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	return prov, nil
}
