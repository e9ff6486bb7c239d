package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/uvalib/tracksys2/internal/errors"
	"github.com/uvalib/tracksys2/internal/guard"
	"github.com/uvalib/tracksys2/internal/service"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
}

var _ AuthServiceInterface = (*service.AuthService)(nil)

// AuthHandlers serves the built-in authenticate endpoint. It hands the minted
// token to the callback page in the JWT cookie, the same way the external
// authenticate service does.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	JWTCookie    string
	CookieDomain string
	CookieSecure bool
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

const oauthCookieMaxAge = 600

// Login starts the identity provider flow.
// GET /authenticate.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	result, err := h.Svc.BeginLogin(r.Context(), guard.CallbackPath)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", slog.Any("error", err))
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("unable to start sign in"),
		})
		return
	}

	h.setCookie(w, r, cookieParams{Name: oauthStateCookie, Value: result.State, MaxAge: oauthCookieMaxAge})
	h.setCookie(w, r, cookieParams{Name: oauthNonceCookie, Value: result.Nonce, MaxAge: oauthCookieMaxAge})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback completes the flow and hands the token to the callback page.
// GET /authenticate/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_params",
			Err:     errors.New("code and state are required"),
		})
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie(oauthNonceCookie)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}

	h.clearCookie(w, r, oauthStateCookie)
	h.clearCookie(w, r, oauthNonceCookie)

	result, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "complete login failed", slog.Any("error", err))
		if apperrors.IsForbidden(err) || apperrors.IsUnauthorized(err) {
			http.Redirect(w, r, guard.ForbiddenPath, http.StatusFound)
			return
		}
		WriteAppError(w, err)
		return
	}

	h.setCookie(w, r, cookieParams{
		Name:   h.jwtCookie(),
		Value:  result.Token,
		MaxAge: int(time.Until(result.ExpiresAt).Seconds()),
	})
	http.Redirect(w, r, guard.CallbackPath, http.StatusFound)
}

func (h *AuthHandlers) jwtCookie() string {
	if h.JWTCookie != "" {
		return h.JWTCookie
	}
	return defaultJWTCookie
}

// cookieParams groups the values of a cookie this package sets.
type cookieParams struct {
	Name   string
	Value  string
	Domain string
	Secure bool
	MaxAge int
}

func (h *AuthHandlers) setCookie(w http.ResponseWriter, r *http.Request, p cookieParams) {
	p.Domain = h.CookieDomain
	p.Secure = h.CookieSecure
	setCookie(w, r, p)
}

func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	clearCookie(w, r, cookieParams{Name: name, Domain: h.CookieDomain, Secure: h.CookieSecure})
}

func setCookie(w http.ResponseWriter, r *http.Request, p cookieParams) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.Name,
		Value:    p.Value,
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: true,
		Secure:   p.Secure || isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   p.MaxAge,
	})
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors key attributes (Secure, Path, Domain, SameSite) used when setting cookies
// to maximize compatibility across browsers during deletion.
func clearCookie(w http.ResponseWriter, r *http.Request, p cookieParams) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.Name,
		Value:    "",
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: true,
		Secure:   p.Secure || isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
