package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
	apperrors "github.com/uvalib/tracksys2/internal/errors"
	mockauth "github.com/uvalib/tracksys2/internal/mocks/auth"
	"github.com/uvalib/tracksys2/internal/ports"
	"github.com/uvalib/tracksys2/internal/session"
)

type fixture struct {
	client  *Client
	session *session.Context
	storage *mockauth.MemoryStorage
	nav     *mockauth.RecordingNavigator
	token   string
}

func newFixture(t *testing.T, srv *httptest.Server, unauth ...string) *fixture {
	t.Helper()
	codec := session.NewCodec("secret")
	tok, err := codec.Mint(domainauth.User{ID: 1, ComputeID: "mst3k", Role: domainauth.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	sc := session.NewContext(codec, nil)
	sc.SetJWT(tok)
	require.True(t, sc.SignedIn())

	storage := mockauth.NewMemoryStorage(map[string]string{ports.KeyToken: tok})
	nav := &mockauth.RecordingNavigator{}
	c := New(Options{
		BaseURL:                 srv.URL,
		Session:                 sc,
		Storage:                 storage,
		Navigator:               nav,
		UnauthenticatedPrefixes: unauth,
	})
	return &fixture{client: c, session: sc, storage: storage, nav: nav, token: tok}
}

func TestClient_GetJSONSendsBearer(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"version": "2.1.0"})
	}))
	defer srv.Close()
	f := newFixture(t, srv)

	var out struct {
		Version string `json:"version"`
	}
	require.NoError(t, f.client.GetJSON(context.Background(), "/api/config", &out))
	assert.Equal(t, "2.1.0", out.Version)
	assert.Equal(t, "Bearer "+f.token, auth)
}

func TestClient_UnauthenticatedPrefixSkipsBearer(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, "42\n")
	}))
	defer srv.Close()
	f := newFixture(t, srv, srv.URL+"/jobs")

	id, err := f.client.PostText(context.Background(), srv.URL+"/jobs/units/3/clone", map[string]any{"list": []int{1}})
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.Empty(t, auth)
}

func TestClient_401SignsOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	f := newFixture(t, srv)

	_, err := f.client.GetText(context.Background(), "/api/units/1")
	assert.ErrorIs(t, err, ErrRedirected)
	assert.True(t, IsRedirected(err))
	assert.False(t, f.session.SignedIn())
	assert.Empty(t, f.session.Token())
	_, stored := f.storage.Peek(ports.KeyToken)
	assert.False(t, stored)
	assert.Equal(t, []string{Expired}, f.nav.Paths)
}

func TestClient_AuthenticateFailureGoesForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	f := newFixture(t, srv)

	_, err := f.client.GetText(context.Background(), "/authenticate")
	assert.ErrorIs(t, err, ErrRedirected)
	assert.Equal(t, "/forbidden", f.nav.Last())
	assert.True(t, f.session.SignedIn(), "an authenticate failure does not clear the session")
}

func TestClient_StatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/units/404":
			http.Error(w, "unit 404 not found", http.StatusNotFound)
		case "/api/units/500":
			http.Error(w, "unable to load unit", http.StatusInternalServerError)
		case "/api/units/bare":
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()
	f := newFixture(t, srv)
	ctx := context.Background()

	err := f.client.GetJSON(ctx, "/api/units/404", &struct{}{})
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, "unit 404 not found", err.Error())

	err = f.client.GetJSON(ctx, "/api/units/500", &struct{}{})
	require.True(t, apperrors.IsUpstream(err))
	assert.Equal(t, "unable to load unit", err.Error())

	err = f.client.GetJSON(ctx, "/api/units/bare", &struct{}{})
	assert.Equal(t, "Bad Request", err.Error())
	assert.Empty(t, f.nav.Paths)
}

func TestClient_DeleteSendsBody(t *testing.T) {
	var got struct {
		Jobs []int64 `json:"jobs"`
	}
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(got)
	}))
	defer srv.Close()
	f := newFixture(t, srv)

	var answer struct {
		Jobs []int64 `json:"jobs"`
	}
	require.NoError(t, f.client.Delete(context.Background(), "/api/jobs", map[string]any{"jobs": []int64{4, 5}}, &answer))
	assert.Equal(t, []int64{4, 5}, answer.Jobs)
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, []int64{4, 5}, got.Jobs)
}

func TestClient_TransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	f := newFixture(t, srv)
	srv.Close()

	_, err := f.client.GetText(context.Background(), "/api/config")
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestBreaker_OpensAndFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	mw, cb := Breaker(BreakerOptions{Name: "backend", Failures: 2, Cooldown: time.Minute})
	f := newFixture(t, srv)
	f.client = New(Options{
		BaseURL:   srv.URL,
		Session:   f.session,
		Storage:   f.storage,
		Navigator: f.nav,
		Breaker:   mw,
	})
	ctx := context.Background()

	for range 2 {
		_, err := f.client.GetText(ctx, "/api/config")
		assert.True(t, apperrors.IsUpstream(err))
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := f.client.GetText(ctx, "/api/config")
	assert.True(t, apperrors.IsUnavailable(err))
	assert.True(t, errors.Is(err, ErrBreakerOpen))
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the backend")
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}
	base := RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	_, err := Chain(base, mark("a"), mark("b")).RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "base"}, order)
}

func TestClient_ExemptPrefixAfterConstruction(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, "7")
	}))
	defer srv.Close()
	f := newFixture(t, srv)
	jobs := srv.URL + "/discovered-jobs"

	_, err := f.client.PostText(context.Background(), jobs+"/orders/3/check", nil)
	require.NoError(t, err)

	f.client.ExemptPrefix(jobs + "/")
	_, err = f.client.PostText(context.Background(), jobs+"/orders/3/check", nil)
	require.NoError(t, err)
	_, err = f.client.GetText(context.Background(), "/api/units/3")
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer " + f.token, "", "Bearer " + f.token}, auth)
}

func TestPrefixes(t *testing.T) {
	p := NewPrefixes(" ", "https://jobs.example.edu/", "https://jobs.example.edu")
	assert.True(t, p.Match("https://jobs.example.edu/units/1/clone"))
	assert.False(t, p.Match("https://tracksys.example.edu/api/units/1"))

	var unset *Prefixes
	assert.False(t, unset.Match("https://jobs.example.edu"))
}
