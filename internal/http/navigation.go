package httpx

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/uvalib/tracksys2/internal/guard"
	"github.com/uvalib/tracksys2/internal/workspace"
)

// respondNavigation sends the client to target: a redirect for pages and
// form posts, a {"redirect": target} body for fetch callers.
func respondNavigation(w http.ResponseWriter, r *http.Request, target string, jsonStatus int) {
	if IsBrowserRequest(r) {
		code := http.StatusSeeOther
		if u, err := url.Parse(target); err == nil && u.IsAbs() {
			code = http.StatusFound
		}
		http.Redirect(w, r, target, code)
		return
	}
	WriteJSON(w, jsonStatus, map[string]string{"redirect": target})
}

// followNavigation delivers a navigation a store requested while serving
// this request (a 404 detail, an expired session). It reports whether one
// was pending.
func followNavigation(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace) bool {
	target := ws.TakeNavigation()
	if target == "" {
		return false
	}
	respondNavigation(w, r, target, http.StatusOK)
	return true
}

// guarded runs the session guard before next and maps its decision onto
// the response.
func (h *UIHandlers) guarded(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, ok := WorkspaceFromContext(r.Context())
		if !ok {
			http.Error(w, "no workspace", http.StatusInternalServerError)
			return
		}

		nav := guard.Navigation{
			Path:      r.URL.Path,
			FullPath:  r.URL.RequestURI(),
			RouteName: route,
		}
		if r.URL.Path == guard.CallbackPath {
			if c, err := r.Cookie(h.jwtCookie()); err == nil {
				nav.CallbackToken = c.Value
			}
		}

		d, err := ws.Evaluate(r.Context(), nav)
		if err != nil {
			h.logger().ErrorContext(r.Context(), "session guard failed",
				slog.String("path", r.URL.Path),
				slog.Any("error", err),
			)
			h.renderStatus(w, r, http.StatusInternalServerError, "Unable to read your session. Please try again.")
			return
		}

		switch d.Kind {
		case guard.Allow:
			next(w, r)
		case guard.RedirectInApp:
			respondNavigation(w, r, d.Target, http.StatusOK)
		case guard.RedirectExternal:
			respondNavigation(w, r, d.Target, http.StatusUnauthorized)
		case guard.Deny:
			respondNavigation(w, r, guard.ForbiddenPath, http.StatusForbidden)
		}
	})
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns fallback when invalid.
func safeRedirectPath(candidate, fallback string) string {
	if candidate == "" {
		return fallback
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return fallback
	}
	return candidate
}
