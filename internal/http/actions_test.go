package httpx

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/service"
)

func TestActions_RequireSession(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := uuid.NewString()

	rec := env.do(http.MethodPost, "/orders/7/check", reqOpts{browser: id, json: true})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/signedout?expired=1", decodeBody[map[string]string](t, rec)["redirect"])
	// Actions never remember where the browser was going.
	assert.Empty(t, env.stored(t, id, ports.KeyIntent))

	rec = env.do(http.MethodPost, "/orders/7/check", reqOpts{browser: id})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signedout?expired=1", rec.Header().Get("Location"))
}

func TestActions_DeleteJobs(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	rec := env.do(http.MethodPost, "/jobs/delete", reqOpts{browser: id, json: true, body: `{"jobs":[4,5]}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeBody[map[string]int](t, rec)["deleted"])

	rec = env.do(http.MethodPost, "/jobs/delete", reqOpts{browser: id, form: true, body: "jobs=4&jobs=5,6"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/jobs", rec.Header().Get("Location"))
}

func TestActions_DeleteJobsValidation(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	tests := []struct {
		name string
		opts reqOpts
	}{
		{"empty list", reqOpts{browser: id, json: true, body: `{"jobs":[]}`}},
		{"unknown field", reqOpts{browser: id, json: true, body: `{"ids":[1]}`}},
		{"bad form id", reqOpts{browser: id, json: true, form: true, body: "jobs=x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/jobs/delete", tt.opts)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestActions_CloneRequiresJSON(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	rec := env.do(http.MethodPost, "/units/5/clone", reqOpts{browser: id, json: true, form: true, body: "list=1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/units/5/clone", reqOpts{browser: id, json: true, body: `{"list":[]}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActions_DownloadBeforeReady(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	rec := env.do(http.MethodGet, "/units/5/pdf/download", reqOpts{browser: id, json: true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodGet, "/units/5/pdf/progress", reqOpts{browser: id, json: true})
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeBody[service.PDFProgress](t, rec)
	assert.False(t, p.Ready)
	assert.Empty(t, p.DownloadURL)
}

func TestActions_NoticesCarryPendingRedirect(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	ws := env.manager.Get(id)
	ws.System.Toast(service.ToastSuccess, "Order check started")
	ws.Navigator().Push("/not_found")

	rec := env.do(http.MethodGet, "/notices", reqOpts{browser: id, json: true})
	require.Equal(t, http.StatusOK, rec.Code)
	type notices struct {
		Toasts   []service.Toast `json:"toasts"`
		Redirect string          `json:"redirect"`
	}
	body := decodeBody[notices](t, rec)
	require.Len(t, body.Toasts, 1)
	assert.Equal(t, "Order check started", body.Toasts[0].Message)
	assert.Equal(t, "/not_found", body.Redirect)

	rec = env.do(http.MethodGet, "/notices", reqOpts{browser: id, json: true})
	assert.NotContains(t, rec.Body.String(), "redirect")
}

func TestActions_SignOut(t *testing.T) {
	env := newRouterEnv(t, fakeBackend())
	id := env.signIn(t)

	rec := env.do(http.MethodPost, "/signout", reqOpts{browser: id})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signedout", rec.Header().Get("Location"))
	assert.Empty(t, env.stored(t, id, ports.KeyToken))

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == defaultJWTCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)

	rec = env.do(http.MethodGet, "/orders", reqOpts{browser: id})
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestParseIDList(t *testing.T) {
	ids, err := parseIDList([]string{"1, 2", "", "3"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = parseIDList([]string{"0"})
	assert.Error(t, err)
}

func TestSafeRedirectPath(t *testing.T) {
	assert.Equal(t, "/units/5", safeRedirectPath("/units/5", "/"))
	assert.Equal(t, "/", safeRedirectPath("https://evil.example.com", "/"))
	assert.Equal(t, "/", safeRedirectPath("//evil.example.com", "/"))
	assert.Equal(t, "/jobs", safeRedirectPath("", "/jobs"))
}
