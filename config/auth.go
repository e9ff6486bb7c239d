package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeExternal sends browsers to an external authenticate endpoint
	// (NetBadge in production) which sets the JWT cookie and returns to /granted.
	AuthModeExternal AuthMode = "external"
	// AuthModeOAuth uses OAuth/OIDC for authentication and mints the JWT locally.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "external", "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: external, oauth, mock)", v)
	}
}

// IsBuiltIn reports whether this process serves /authenticate itself.
func (a AuthMode) IsBuiltIn() bool {
	return a == AuthModeOAuth || a == AuthModeMock
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"tracksys"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"tracksys"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/authenticate/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID    int64    `env:"USER_ID"    envDefault:"1"`
	ComputeID string   `env:"COMPUTE_ID" envDefault:"dev1x"`
	FirstName string   `env:"FIRST_NAME" envDefault:"Dev"`
	LastName  string   `env:"LAST_NAME"  envDefault:"User"`
	Email     string   `env:"EMAIL"      envDefault:"dev1x@virginia.edu"`
	Groups    []string `env:"GROUPS"     envDefault:"tracksys-admins" envSeparator:";"`
}

// RoleGroups maps directory groups onto staff roles. The first match wins,
// checked from most to least privileged.
type RoleGroups struct {
	Admin      string `env:"ADMIN_GROUP"      envDefault:"tracksys-admins"`
	Supervisor string `env:"SUPERVISOR_GROUP" envDefault:"tracksys-supervisors"`
	Student    string `env:"STUDENT_GROUP"    envDefault:"tracksys-students"`
	Viewer     string `env:"VIEWER_GROUP"     envDefault:"tracksys-viewers"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"external"`

	// AuthenticateURL is where unauthenticated browsers are sent (full-page redirect).
	AuthenticateURL string `env:"AUTH_AUTHENTICATE_URL" envDefault:"/authenticate"`

	// JWTCookie is the cookie the authenticate endpoint sets before redirecting to /granted.
	JWTCookie string `env:"AUTH_JWT_COOKIE" envDefault:"ts2_jwt"`

	// JWTKey verifies (and, in built-in modes, signs) HS256 tokens.
	// When empty, tokens are decoded without verification.
	JWTKey string `env:"AUTH_JWT_KEY"`

	// TokenTTL is the lifetime of tokens minted in built-in modes.
	TokenTTL time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"8h"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// Groups maps directory groups to roles (built-in modes only).
	Groups RoleGroups
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.AuthenticateURL = strings.TrimSpace(a.AuthenticateURL)
	if a.AuthenticateURL == "" {
		a.AuthenticateURL = "/authenticate"
	}
	if strings.TrimSpace(a.JWTCookie) == "" {
		a.JWTCookie = "ts2_jwt"
	}
	if a.TokenTTL <= 0 {
		a.TokenTTL = 8 * time.Hour
	}
}
