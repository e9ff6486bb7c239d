package httpx

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/uvalib/tracksys2/internal/guard"
	"github.com/uvalib/tracksys2/internal/workspace"
)

// WorkspaceRegistry is the browser workspace pool as the router sees it.
type WorkspaceRegistry interface {
	WorkspaceSource
	Live() int
}

var _ WorkspaceRegistry = (*workspace.Manager)(nil)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Workspaces WorkspaceRegistry // Required
	// Auth serves the built-in authenticate endpoint. Nil when an external
	// authenticate service issues tokens.
	Auth          AuthServiceInterface
	JWTCookie     string
	BrowserCookie string
	CookieDomain  string
	CookieSecure  bool
	TemplateFS    fs.FS        // Embedded templates; replaced by disk in dev mode
	StaticFS      fs.FS        // Embedded static assets; replaced by disk in dev mode
	Metrics       http.Handler // Optional: exposed at /metrics
	IsDev         bool
	Logger        *slog.Logger
}

// NewRouter creates and configures a new HTTP router with browser middleware.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	ui := setupUIHandlers(services)
	registerViewRoutes(mux, ui)
	registerActionRoutes(mux, ui)

	health := healthHandler(services.Workspaces.Live)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}
	if services.Auth != nil {
		registerAuthRoutes(mux, &AuthHandlers{
			Svc:          services.Auth,
			JWTCookie:    services.JWTCookie,
			CookieDomain: services.CookieDomain,
			CookieSecure: services.CookieSecure,
			Logger:       services.Logger,
		})
	}
	mux.Handle("GET /static/", staticHandler(services.StaticFS, services.IsDev))

	handler := Workspaces(WorkspaceConfig{
		Source:       services.Workspaces,
		CookieName:   services.BrowserCookie,
		CookieDomain: services.CookieDomain,
		CookieSecure: services.CookieSecure,
		SkipPrefixes: []string{"/static/", "/healthz", "/metrics", "/authenticate"},
	})(mux)
	return BrowserDetection()(handler)
}

// setupUIHandlers creates UI handlers with a template renderer.
// In dev mode templates are read from disk so edits show without a rebuild.
// Without templates the pages still answer JSON.
func setupUIHandlers(services RouterServices) *UIHandlers {
	templateFS := services.TemplateFS
	if services.IsDev {
		templateFS = os.DirFS(TemplatePathFromRoot)
	}

	h := &UIHandlers{
		JWTCookie:    services.JWTCookie,
		CookieDomain: services.CookieDomain,
		CookieSecure: services.CookieSecure,
		Logger:       services.Logger,
	}
	if templateFS == nil {
		return h
	}
	tr, err := NewTemplateRenderer(TemplateRendererConfig{
		TemplateFS: templateFS,
		Logger:     services.Logger,
	})
	if err != nil {
		h.logger().Error("failed to create template renderer", slog.Any("error", err))
		return h
	}
	h.T = tr
	return h
}

type workspaceHandler = func(http.ResponseWriter, *http.Request, *workspace.Workspace)

func registerViewRoutes(mux *http.ServeMux, h *UIHandlers) {
	view := func(route string, fn workspaceHandler) http.Handler {
		return h.guarded(route, h.withWorkspace(fn))
	}

	mux.Handle("GET /{$}", view(RouteHome, h.Home))
	mux.Handle("GET /orders", view(RouteOrders, h.Orders))
	mux.Handle("GET /orders/{id}", view(RouteOrder, h.Order))
	mux.Handle("GET /units/{id}", view(RouteUnit, h.Unit))
	mux.Handle("GET /masterfiles/{id}", view(RouteMasterFile, h.MasterFile))
	mux.Handle("GET /metadata/{id}", view(RouteMetadata, h.Metadata))
	mux.Handle("GET /jobs", view(RouteJobs, h.Jobs))
	mux.Handle("GET /jobs/{id}", view(RouteJob, h.Job))
	mux.Handle("GET "+guard.CallbackPath, view(RouteGranted, h.Granted))

	mux.Handle("GET "+guard.SignedOutPath, view(guard.RouteSignedOut, h.SignedOut))
	mux.Handle("GET "+guard.ForbiddenPath, view(guard.RouteForbidden, h.Forbidden))
	mux.Handle("GET "+guard.NotFoundPath, view(guard.RouteNotFound, h.NotFound))
	// Anything unmatched.
	mux.Handle("/", view(guard.RouteNotFound, h.NotFound))
}

func registerActionRoutes(mux *http.ServeMux, h *UIHandlers) {
	mux.Handle("POST /units/{id}/pdf", h.requireSession(h.RequestPDF))
	mux.Handle("GET /units/{id}/pdf/progress", h.requireSession(h.PDFProgress))
	mux.Handle("GET /units/{id}/pdf/download", h.requireSession(h.DownloadPDF))
	mux.Handle("POST /units/{id}/clone", h.requireSession(h.CloneMasterFiles))
	mux.Handle("POST /units/{id}/replace", h.requireSession(h.ReplaceMasterFiles))
	mux.Handle("POST /orders/{id}/check", h.requireSession(h.CheckOrder))
	mux.Handle("POST /jobs/delete", h.requireSession(h.DeleteJobs))
	mux.Handle("GET /notices", h.requireSession(h.Notices))
	mux.Handle("POST /signout", http.HandlerFunc(h.SignOut))
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.Handle("GET /authenticate", http.HandlerFunc(h.Login))
	mux.Handle("GET /authenticate/callback", http.HandlerFunc(h.Callback))
}

// staticHandler serves /static/* assets from the embedded FS, or from disk
// in dev mode.
func staticHandler(static fs.FS, isDev bool) http.Handler {
	if isDev || static == nil {
		return staticWithCacheHeaders(http.StripPrefix("/static/", http.FileServer(http.Dir(StaticPathFromRoot))), true)
	}
	return staticWithCacheHeaders(http.StripPrefix("/static/", http.FileServer(http.FS(static))), false)
}

// staticWithCacheHeaders wraps a static file handler to add appropriate cache headers.
func staticWithCacheHeaders(handler http.Handler, noCache bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if noCache {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}
		handler.ServeHTTP(w, r)
	})
}
