package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/uvalib/tracksys2/internal/ports"
)

func discoveryServer(t *testing.T, tokenStatus int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                srv.URL,
			AuthorizationEndpoint: "https://idp.example.edu/auth",
			TokenEndpoint:         srv.URL + "/token",
			UserinfoEndpoint:      srv.URL + "/userinfo",
			JwksURI:               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, tokenStatus)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func createTestProvider(t *testing.T) *Provider {
	t.Helper()
	srv := discoveryServer(t, http.StatusBadRequest)
	provider, err := NewProvider(context.Background(), ProviderConfig{
		ClientID:     "tracksys",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/authenticate/callback",
		Scope:        "openid profile email groups",
		DiscoveryURL: srv.URL + "/.well-known/openid-configuration",
		LogoutURL:    "https://idp.example.edu/logout",
	})
	require.NoError(t, err)
	return provider
}

func TestNewProvider_DiscoversEndpoints(t *testing.T) {
	provider := createTestProvider(t)
	assert.Equal(t, "https://idp.example.edu/auth", provider.config.Endpoint.AuthURL)
	assert.Equal(t, "https://idp.example.edu/logout", provider.LogoutURL())
	assert.Equal(t, []string{"openid", "profile", "email", "groups"}, provider.config.Scopes)
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{
			name:   "missing client ID",
			config: ProviderConfig{ClientSecret: "s", RedirectURL: "http://l/cb", DiscoveryURL: "http://example.com"},
			errMsg: "client ID is required",
		},
		{
			name:   "missing client secret",
			config: ProviderConfig{ClientID: "c", RedirectURL: "http://l/cb", DiscoveryURL: "http://example.com"},
			errMsg: "client secret is required",
		},
		{
			name:   "missing redirect URL",
			config: ProviderConfig{ClientID: "c", ClientSecret: "s", DiscoveryURL: "http://example.com"},
			errMsg: "redirect URL is required",
		},
		{
			name:   "missing discovery URL",
			config: ProviderConfig{ClientID: "c", ClientSecret: "s", RedirectURL: "http://l/cb"},
			errMsg: "discovery URL is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Begin(t *testing.T) {
	provider := createTestProvider(t)

	authURL, state, nonce, err := provider.Begin(context.Background(), ports.BeginInput{RedirectURL: "/"})
	require.NoError(t, err)
	require.NotEqual(t, state, nonce)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.edu", u.Host)
	q := u.Query()
	assert.Equal(t, "tracksys", q.Get("client_id"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, nonce, q.Get("nonce"))
	assert.Equal(t, "http://localhost:8080/authenticate/callback", q.Get("redirect_uri"))

	_, _, _, err = provider.Begin(context.Background(), ports.BeginInput{})
	assert.ErrorContains(t, err, "redirect URL is required")
}

func TestProvider_Exchange_ValidationErrors(t *testing.T) {
	provider := createTestProvider(t)
	tests := []struct {
		name   string
		input  ports.ExchangeInput
		errMsg string
	}{
		{"missing code", ports.ExchangeInput{State: "s", Nonce: "n"}, "authorization code is required"},
		{"missing state", ports.ExchangeInput{Code: "c", Nonce: "n"}, "state is required"},
		{"missing nonce", ports.ExchangeInput{Code: "c", State: "s"}, "nonce is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.Exchange(context.Background(), tt.input)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestProvider_Exchange_TokenEndpointRejects(t *testing.T) {
	provider := createTestProvider(t)
	_, err := provider.Exchange(context.Background(), ports.ExchangeInput{Code: "c", State: "s", Nonce: "n"})
	assert.ErrorContains(t, err, "exchange code for token")
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	idTok, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", idTok)

	_, err = getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"}))
	assert.ErrorContains(t, err, "missing id_token")

	_, err = getIDTokenFromToken(nil)
	assert.ErrorContains(t, err, "nil token")
}

func TestClaims_Fields(t *testing.T) {
	tests := []struct {
		name      string
		c         claims
		computeID string
		groups    []string
	}{
		{"uid wins", claims{UID: "LF6F", PreferredUsername: "other@virginia.edu", Sub: "x"}, "lf6f", nil},
		{"preferred username domain stripped", claims{PreferredUsername: "mst3k@virginia.edu"}, "mst3k", nil},
		{"sub fallback", claims{Sub: "abc123"}, "abc123", nil},
		{"memberof when no groups", claims{UID: "a", MemberOf: []string{"tracksys-admins"}}, "a", []string{"tracksys-admins"}},
		{"groups preferred", claims{UID: "a", Groups: []string{"g"}, MemberOf: []string{"m"}}, "a", []string{"g"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.c.fields()
			assert.Equal(t, tt.computeID, f.computeID)
			assert.Equal(t, tt.groups, f.groups)
		})
	}
}

func TestIDFields_FillKeepsExisting(t *testing.T) {
	f := idFields{computeID: "keep", email: "keep@virginia.edu"}
	f.fill(idFields{computeID: "other", email: "o@x", givenName: "Ada", groups: []string{"g"}})
	assert.Equal(t, "keep", f.computeID)
	assert.Equal(t, "keep@virginia.edu", f.email)
	assert.Equal(t, "Ada", f.givenName)
	assert.Equal(t, []string{"g"}, f.groups)
}
