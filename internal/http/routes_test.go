package httpx

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/service"
)

func TestRouter_IssuesBrowserCookie(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())

	rec := env.do(http.MethodGet, "/signedout", reqOpts{})
	require.Equal(t, http.StatusOK, rec.Code)

	var browser *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == defaultBrowserKey {
			browser = c
		}
	}
	require.NotNil(t, browser)
	_, err := uuid.Parse(browser.Value)
	require.NoError(t, err)
	assert.True(t, browser.HttpOnly)
	assert.Equal(t, 1, env.manager.Live())

	// A known browser keeps its id.
	rec = env.do(http.MethodGet, "/signedout", reqOpts{browser: browser.Value})
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, 1, env.manager.Live())
}

func TestRouter_UnauthenticatedNavigationRemembersIntent(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := uuid.NewString()

	rec := env.do(http.MethodGet, "/orders?filter=await", reqOpts{browser: id})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, testAuthenticateURL, rec.Header().Get("Location"))
	assert.Equal(t, "/orders?filter=await", env.stored(t, id, ports.KeyIntent))

	rec = env.do(http.MethodGet, "/jobs", reqOpts{browser: id, json: true})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, testAuthenticateURL, decodeBody[map[string]string](t, rec)["redirect"])
}

func TestRouter_GrantedCompletesSignIn(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := uuid.NewString()
	env.do(http.MethodGet, "/orders?filter=await", reqOpts{browser: id})

	tok := env.token(t)
	rec := env.do(http.MethodGet, "/granted", reqOpts{
		browser: id,
		cookies: []*http.Cookie{{Name: defaultJWTCookie, Value: tok}},
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/orders?filter=await", rec.Header().Get("Location"))
	assert.Equal(t, tok, env.stored(t, id, ports.KeyToken))
	assert.Empty(t, env.stored(t, id, ports.KeyIntent))

	// Signed in now: the page renders.
	rec = env.do(http.MethodGet, "/orders", reqOpts{browser: id})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_GrantedWithoutTokenIsForbidden(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())

	rec := env.do(http.MethodGet, "/granted", reqOpts{browser: uuid.NewString()})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/forbidden", rec.Header().Get("Location"))

	rec = env.do(http.MethodGet, "/forbidden", reqOpts{browser: uuid.NewString()})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "not authorized")
}

func TestRouter_OrdersPage(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	rec := env.do(http.MethodGet, "/orders", reqOpts{browser: id})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Civil War letters")
	assert.Contains(t, body, "Lee, Ann")
	assert.Contains(t, body, "Mary Smith (mst3k)")
	assert.Contains(t, body, "version 2.4.0")
	assert.Contains(t, body, "https://reports.example.edu")

	rec = env.do(http.MethodGet, "/orders?q=letters", reqOpts{browser: id, json: true})
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[service.OrderPage](t, rec)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, "2026-03-01", page.Orders[0].DateDue)
}

func TestRouter_UnitFetchesDetailsAndMasterFiles(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	rec := env.do(http.MethodGet, "/units/5", reqOpts{browser: id, json: true})
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[unitPage](t, rec)
	assert.Equal(t, int64(7), page.Unit.OrderID)
	assert.Len(t, page.MasterFiles, 2)
	assert.False(t, page.PDF.Downloading)

	rec = env.do(http.MethodGet, "/units/5", reqOpts{browser: id})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tsm:101")
}

func TestRouter_DetailNotFoundNavigates(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	rec := env.do(http.MethodGet, "/orders/404", reqOpts{browser: id})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/not_found", rec.Header().Get("Location"))

	rec = env.do(http.MethodGet, "/not_found", reqOpts{browser: id})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_UnitNotFoundLeavesNoBanner(t *testing.T) {
	backend := fakeBackend()
	backend.HandleFunc("GET /api/units/9", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unit not found", http.StatusNotFound)
	})
	backend.HandleFunc("GET /api/units/9/masterfiles", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		writeJSON(w, []map[string]any{})
	})
	env := newRouterEnv(t, backend)
	id := env.signIn(t)

	rec := env.do(http.MethodGet, "/units/9", reqOpts{browser: id})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/not_found", rec.Header().Get("Location"))

	// The master file fetch the 404 canceled is not an error.
	rec = env.do(http.MethodGet, "/notices", reqOpts{browser: id, json: true})
	require.Equal(t, http.StatusOK, rec.Code)
	notices := decodeBody[service.Notices](t, rec)
	assert.Empty(t, notices.Error)
	assert.False(t, notices.Working)
}

func TestRouter_UnitReloadRefetches(t *testing.T) {
	var status atomic.Value
	status.Store("approved")
	backend := fakeBackend()
	backend.HandleFunc("GET /api/units/8", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"id": 8, "orderID": 7, "status": status.Load()})
	})
	backend.HandleFunc("GET /api/units/8/masterfiles", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []map[string]any{})
	})
	env := newRouterEnv(t, backend)
	id := env.signIn(t)

	rec := env.do(http.MethodGet, "/units/8", reqOpts{browser: id, json: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", decodeBody[unitPage](t, rec).Unit.Status)

	status.Store("done")
	rec = env.do(http.MethodGet, "/units/8", reqOpts{browser: id, json: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", decodeBody[unitPage](t, rec).Unit.Status)
}

func TestRouter_ExpiredSessionSignsOut(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	rec := env.do(http.MethodGet, "/metadata/1", reqOpts{browser: id})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signedout?expired=1", rec.Header().Get("Location"))
	assert.Empty(t, env.stored(t, id, ports.KeyToken))

	rec = env.do(http.MethodGet, "/signedout?expired=1", reqOpts{browser: id})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "session has expired")
}

func TestRouter_BackendFailureShowsBanner(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	rec := env.do(http.MethodGet, "/jobs", reqOpts{browser: id})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="banner error"`)

	// The banner was drained by the render.
	rec = env.do(http.MethodGet, "/notices", reqOpts{browser: id, json: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[service.Notices](t, rec).Error)
}

func TestRouter_InvalidID(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	rec := env.do(http.MethodGet, "/orders/abc", reqOpts{browser: id, json: true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_UnknownPath(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())

	rec := env.do(http.MethodGet, "/no/such/page", reqOpts{browser: uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not be found")
}

func TestRouter_HealthAndStatic(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())

	rec := env.do(http.MethodGet, "/healthz", reqOpts{json: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]any](t, rec)["status"])
	assert.Empty(t, rec.Result().Cookies())

	rec = env.do(http.MethodGet, "/static/app.css", reqOpts{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}
