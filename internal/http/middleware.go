package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uvalib/tracksys2/internal/observability/logging"
	"github.com/uvalib/tracksys2/internal/workspace"
)

// CorrelationHeader carries the request correlation id in and out.
const CorrelationHeader = "X-Correlation-ID"

// Logging returns a middleware that tags each request with a correlation id
// and logs it once it completes.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := strings.TrimSpace(r.Header.Get(CorrelationHeader))
			if id == "" || len(id) > 64 {
				id = logging.NewCorrelationID()
			}
			ctx := logging.WithCorrelationID(r.Context(), id)
			w.Header().Set(CorrelationHeader, id)

			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r.WithContext(ctx))
			logger.InfoContext(ctx, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush passes through so downloads can stream.
func (w *respWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.ErrorContext(r.Context(), "panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that detects browser requests vs API requests.
// Downstream handlers use it to choose between HTML pages and JSON.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if val, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return val
	}
	// Fallback to direct detection if middleware wasn't used
	return isBrowserRequest(r)
}

// isBrowserRequest determines if a request is from a browser based on:
// 1. Path prefix - static assets are never pages
// 2. X-Requested-With - fetch/XHR callers want JSON
// 3. Accept header - browsers typically accept text/html.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/static/") {
		return false
	}
	if strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest") {
		return false
	}

	accept := r.Header.Get("Accept")
	if accept == "" {
		// No Accept header, assume browser
		return true
	}
	if strings.Contains(accept, "text/html") {
		return true
	}
	return !strings.Contains(accept, "application/json")
}

// WorkspaceSource hands out the workspace of a browser id.
type WorkspaceSource interface {
	Get(browserID string) *workspace.Workspace
}

// WorkspaceConfig configures the Workspaces middleware.
type WorkspaceConfig struct {
	Source       WorkspaceSource
	CookieName   string
	CookieDomain string
	CookieSecure bool
	// SkipPrefixes are paths served without a workspace.
	SkipPrefixes []string
}

const browserCookieMaxAge = 400 * 24 * 60 * 60

// Workspaces returns a middleware that identifies the browser by its
// cookie, issuing a fresh id when it has none, and puts the browser's
// workspace into the request context.
func Workspaces(cfg WorkspaceConfig) func(http.Handler) http.Handler {
	if cfg.Source == nil {
		//nolint:forbidigo // Fail fast during server setup.
		panic("Workspaces: Source is required")
	}
	name := cfg.CookieName
	if name == "" {
		name = defaultBrowserKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range cfg.SkipPrefixes {
				if strings.HasPrefix(r.URL.Path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			id := ""
			if c, err := r.Cookie(name); err == nil {
				if _, perr := uuid.Parse(c.Value); perr == nil {
					id = c.Value
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     name,
					Value:    id,
					Path:     "/",
					Domain:   cfg.CookieDomain,
					HttpOnly: true,
					Secure:   cfg.CookieSecure || isSecureRequest(r),
					SameSite: http.SameSiteLaxMode,
					MaxAge:   browserCookieMaxAge,
				})
			}

			ws := cfg.Source.Get(id)
			next.ServeHTTP(w, r.WithContext(SetWorkspaceInContext(r.Context(), ws)))
		})
	}
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
