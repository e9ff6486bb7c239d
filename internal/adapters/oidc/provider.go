package oidc

// Package oidc signs staff in through an OIDC identity provider when the
// admin front end serves /authenticate itself.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	domainauth "github.com/uvalib/tracksys2/internal/domain/auth"
	"github.com/uvalib/tracksys2/internal/ports"
)

var _ ports.AuthProvider = (*Provider)(nil)

// Provider implements ports.AuthProvider using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	logoutURL  string
	httpClient *http.Client

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
	now          func() time.Time
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	LogoutURL    string
	HTTPClient   *http.Client // Optional, defaults to a 30s timeout client
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider fetches the discovery document and builds the provider.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx = gooidc.ClientContext(ctx, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       strings.Fields(config.Scope),
			Endpoint:     op.Endpoint(),
		},
		logoutURL:    config.LogoutURL,
		httpClient:   httpClient,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		now:          time.Now,
	}, nil
}

// LogoutURL is the provider's end-session page, if configured.
func (p *Provider) LogoutURL() string { return p.logoutURL }

// Begin builds the provider authorization URL with a fresh state and nonce.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	state := uuid.NewString()
	nonce := uuid.NewString()

	// redirect_uri stays the configured one; the provider matches it exactly.
	authURL := p.config.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
	)
	return authURL, state, nonce, nil
}

// Exchange trades the code for tokens and maps the claims to an Identity.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.Code == "" {
		return domainauth.Identity{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Identity{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	fields, err := p.extractFromIDToken(ctx, token, in.Nonce)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("extract id_token: %w", err)
	}
	if fields.computeID == "" || len(fields.groups) == 0 {
		ui, uiErr := p.getUserInfo(ctx, token)
		if uiErr != nil {
			return domainauth.Identity{}, fmt.Errorf("get user info: %w", uiErr)
		}
		fields.fill(ui)
	}
	if fields.computeID == "" {
		return domainauth.Identity{}, errors.New("identity has no compute id")
	}

	expiresAt := p.now().Add(time.Hour)
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry
	}
	return domainauth.Identity{
		ComputeID: fields.computeID,
		FirstName: fields.givenName,
		LastName:  fields.familyName,
		Email:     fields.email,
		Groups:    fields.groups,
		ExpiresAt: expiresAt,
	}, nil
}

// claims is the union of the standard OIDC claims and the directory
// attributes a university IdP releases.
type claims struct {
	Sub               string   `json:"sub"`
	UID               string   `json:"uid"`
	PreferredUsername string   `json:"preferred_username"`
	GivenName         string   `json:"given_name"`
	FamilyName        string   `json:"family_name"`
	Email             string   `json:"email"`
	Groups            []string `json:"groups"`
	MemberOf          []string `json:"memberof"`
	Nonce             string   `json:"nonce"`
}

type idFields struct {
	computeID  string
	email      string
	givenName  string
	familyName string
	groups     []string
}

func (c claims) fields() idFields {
	user, _, _ := strings.Cut(c.PreferredUsername, "@")
	groups := c.Groups
	if len(groups) == 0 {
		groups = c.MemberOf
	}
	return idFields{
		computeID:  strings.ToLower(firstNonEmpty(c.UID, user, c.Sub)),
		email:      c.Email,
		givenName:  c.GivenName,
		familyName: c.FamilyName,
		groups:     slices.Clone(groups),
	}
}

// fill copies fields from other that f lacks.
func (f *idFields) fill(other idFields) {
	f.computeID = firstNonEmpty(f.computeID, other.computeID)
	f.email = firstNonEmpty(f.email, other.email)
	f.givenName = firstNonEmpty(f.givenName, other.givenName)
	f.familyName = firstNonEmpty(f.familyName, other.familyName)
	if len(f.groups) == 0 {
		f.groups = other.groups
	}
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (idFields, error) {
	if !slices.Contains(p.config.Scopes, gooidc.ScopeOpenID) {
		return idFields{}, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return idFields{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return idFields{}, fmt.Errorf("verify id_token: %w", err)
	}
	var c claims
	if claimsErr := idTok.Claims(&c); claimsErr != nil {
		return idFields{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	if expectedNonce != "" && c.Nonce != expectedNonce {
		return idFields{}, errors.New("invalid nonce")
	}
	return c.fields(), nil
}

func (p *Provider) getUserInfo(ctx context.Context, tok *oauth2.Token) (idFields, error) {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return idFields{}, fmt.Errorf("fetch user info: %w", err)
	}
	var c claims
	if err := ui.Claims(&c); err != nil {
		return idFields{}, fmt.Errorf("decode user info: %w", err)
	}
	return c.fields(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
