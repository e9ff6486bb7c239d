package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"

	tracksys2 "github.com/uvalib/tracksys2"
	"github.com/uvalib/tracksys2/config"
	httpx "github.com/uvalib/tracksys2/internal/http"
	"github.com/uvalib/tracksys2/internal/service"
	"github.com/uvalib/tracksys2/internal/workspace"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config     *config.AppConfig
	Workspaces *workspace.Manager
	Auth       *service.AuthService // nil in external authenticate mode
	Metrics    http.Handler         // nil unless Prometheus is the sink
	Logger     *slog.Logger
}

// NewHTTPServer builds the HTTP server around the router and middleware.
func NewHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil || cfg.Config == nil || cfg.Workspaces == nil {
		return nil, errors.New("http server: config and workspaces are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	templates, err := fs.Sub(tracksys2.TemplateFS, "web/templates")
	if err != nil {
		return nil, fmt.Errorf("embedded templates: %w", err)
	}
	static, err := fs.Sub(tracksys2.StaticFS, "web/static")
	if err != nil {
		return nil, fmt.Errorf("embedded static assets: %w", err)
	}

	services := httpx.RouterServices{
		Workspaces:    cfg.Workspaces,
		JWTCookie:     appCfg.Auth.JWTCookie,
		BrowserCookie: appCfg.Workspace.CookieName,
		CookieDomain:  appCfg.HTTP.CookieDomain,
		CookieSecure:  appCfg.HTTP.CookieSecure,
		TemplateFS:    templates,
		StaticFS:      static,
		Metrics:       cfg.Metrics,
		IsDev:         appCfg.IsDev,
		Logger:        logger,
	}
	// A nil *AuthService must not become a non-nil interface.
	if cfg.Auth != nil {
		services.Auth = cfg.Auth
	}

	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: services,
		HTTP:     appCfg.HTTP,
	})

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      appCfg.HTTP.WriteTimeout,
		IdleTimeout:       appCfg.HTTP.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}, nil
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
	HTTP     config.HTTPConfig
}

func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	router := httpx.NewRouter(cfg.Services)

	// Apply compression middleware first (innermost) so logging captures compressed sizes
	// Order: Recover -> Logging -> Compression -> Router
	h := router
	if cfg.HTTP.CompressionEnabled {
		cfg.Logger.Info("HTTP compression enabled", "level", cfg.HTTP.CompressionLevel)
		h = httpx.Compression(httpx.CompressionConfig{Level: cfg.HTTP.CompressionLevel, Logger: cfg.Logger})(h)
	}

	h = httpx.Logging(cfg.Logger)(h)
	h = httpx.Recover(cfg.Logger)(h)

	return h
}

// ServeHTTP listens until ctx is done, then shuts the server down within
// the configured timeout.
func ServeHTTP(ctx context.Context, server *http.Server, cfg config.HTTPConfig, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", server.Addr, err)
	}
	logger.InfoContext(ctx, "starting HTTP server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
		if err == nil {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}
