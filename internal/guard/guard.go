// Package guard decides, before every navigation, whether it proceeds,
// is sent to sign in, or ends at a terminal error view.
package guard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/session"
)

// Well-known paths and route names.
const (
	CallbackPath  = "/granted"
	HomePath      = "/"
	ForbiddenPath = "/forbidden"
	SignedOutPath = "/signedout"
	NotFoundPath  = "/not_found"

	RouteNotFound  = "not_found"
	RouteForbidden = "forbidden"
	RouteSignedOut = "signedout"
)

// noAuthRoutes render regardless of session state.
var noAuthRoutes = map[string]bool{
	RouteNotFound:  true,
	RouteForbidden: true,
	RouteSignedOut: true,
}

// Navigation describes one attempted navigation.
type Navigation struct {
	// Path is the request path without query.
	Path string
	// FullPath includes the query string; it is what gets remembered as intent.
	FullPath string
	// RouteName is the logical route the path matched.
	RouteName string
	// CallbackToken is the token handed over by the authenticate endpoint
	// (the JWT cookie), only meaningful on the callback path.
	CallbackToken string
}

// Options configures a Guard.
type Options struct {
	Session         *session.Context
	Storage         ports.ClientStorage
	AuthenticateURL string
	Logger          *slog.Logger
}

// Guard evaluates navigations for one browser.
type Guard struct {
	session         *session.Context
	storage         ports.ClientStorage
	authenticateURL string
	logger          *slog.Logger
}

// New creates a guard.
func New(opts Options) *Guard {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authURL := opts.AuthenticateURL
	if authURL == "" {
		authURL = "/authenticate"
	}
	return &Guard{
		session:         opts.Session,
		storage:         opts.Storage,
		authenticateURL: authURL,
		logger:          logger,
	}
}

// Evaluate decides the outcome of nav. It never performs the redirect itself.
// An error means client storage failed; no decision could be made.
func (g *Guard) Evaluate(ctx context.Context, nav Navigation) (Decision, error) {
	if nav.Path == CallbackPath {
		return g.completeSignIn(ctx, nav)
	}

	token, err := g.storage.Get(ctx, ports.KeyToken)
	if err != nil {
		return Decision{}, fmt.Errorf("load session token: %w", err)
	}
	g.session.SetJWT(token)

	if noAuthRoutes[nav.RouteName] {
		return Allowed(), nil
	}

	if !g.session.SignedIn() {
		intent := nav.FullPath
		if intent == "" {
			intent = nav.Path
		}
		if err := g.storage.Set(ctx, ports.KeyIntent, intent); err != nil {
			return Decision{}, fmt.Errorf("remember navigation intent: %w", err)
		}
		g.logger.DebugContext(ctx, "navigation requires authentication",
			slog.String("intent", intent),
		)
		return External(g.authenticateURL), nil
	}

	return Allowed(), nil
}

func (g *Guard) completeSignIn(ctx context.Context, nav Navigation) (Decision, error) {
	if nav.CallbackToken != "" {
		if err := g.storage.Set(ctx, ports.KeyToken, nav.CallbackToken); err != nil {
			return Decision{}, fmt.Errorf("store session token: %w", err)
		}
	}
	g.session.SetJWT(nav.CallbackToken)

	if !g.session.SignedIn() {
		g.logger.InfoContext(ctx, "authentication callback without a usable token")
		return Denied(), nil
	}

	intent, err := g.TakeIntent(ctx)
	if err != nil {
		return Decision{}, err
	}
	if intent == "" || intent == CallbackPath {
		intent = HomePath
	}

	user := g.session.User()
	g.logger.InfoContext(ctx, "signed in",
		slog.String("compute_id", user.ComputeID),
		slog.String("role", string(user.Role)),
	)
	return InApp(intent), nil
}

// TakeIntent reads and clears the stored navigation intent.
func (g *Guard) TakeIntent(ctx context.Context) (string, error) {
	intent, err := g.storage.Get(ctx, ports.KeyIntent)
	if err != nil {
		return "", fmt.Errorf("load navigation intent: %w", err)
	}
	if intent == "" {
		return "", nil
	}
	if err := g.storage.Remove(ctx, ports.KeyIntent); err != nil {
		return "", fmt.Errorf("clear navigation intent: %w", err)
	}
	return intent, nil
}
