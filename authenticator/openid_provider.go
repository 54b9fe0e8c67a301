package authenticator

import (
	"context"
	"errors"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/blogem/devkb/models"
)

// OpenIDProvider implements the Provider interface for OpenID Connect
type OpenIDProvider struct {
	provider *oidc.Provider
	config   oauth2.Config
	client   *http.Client
}

// OpenIDConfig holds OpenID Connect configuration
type OpenIDConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	HTTPClient   *http.Client
}

// NewOpenIDProvider creates a new OpenID Connect provider with the given configuration.
// It fetches the issuer's discovery document.
func NewOpenIDProvider(ctx context.Context, cfg OpenIDConfig) (Provider, error) {
	// Validate required configuration
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.CallbackURL == "" {
		return nil, errors.New("callback URL is required")
	}

	client := newHTTPClient(cfg.HTTPClient)
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), cfg.IssuerURL)
	if err != nil {
		return nil, err
	}

	conf := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	return &OpenIDProvider{
		provider: provider,
		config:   conf,
		client:   client,
	}, nil
}

// Name returns the provider tag
func (p *OpenIDProvider) Name() models.Provider {
	return models.ProviderOIDC
}

// GetAuthURL returns the authorization URL for OpenID Connect
func (p *OpenIDProvider) GetAuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens
func (p *OpenIDProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	oauth2Token, err := p.config.Exchange(withHTTPClient(ctx, p.client), code)
	if err != nil {
		return nil, err
	}

	// Convert oauth2.Token to our Token type
	token := &Token{
		AccessToken:  oauth2Token.AccessToken,
		RefreshToken: oauth2Token.RefreshToken,
		Expiry:       oauth2Token.Expiry.Unix(),
	}

	// Extract ID token if present
	if idToken, ok := oauth2Token.Extra("id_token").(string); ok {
		token.IDToken = idToken
	}

	return token, nil
}

// idClaims are the ID token claims mapped onto a profile
type idClaims struct {
	Subject       string `json:"sub"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
}

// GetProfile verifies the ID token and extracts the user's profile
func (p *OpenIDProvider) GetProfile(ctx context.Context, token *Token) (*Profile, error) {
	if token == nil || token.IDToken == "" {
		return nil, errors.New("no id_token in token")
	}

	oidcConfig := &oidc.Config{
		ClientID: p.config.ClientID,
	}

	idToken, err := p.provider.Verifier(oidcConfig).Verify(oidc.ClientContext(ctx, p.client), token.IDToken)
	if err != nil {
		return nil, err
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, err
	}

	return profileFromClaims(claims)
}

// profileFromClaims prefers name, then nickname, then email as display name
// and drops emails the issuer marks unverified.
func profileFromClaims(claims idClaims) (*Profile, error) {
	if claims.Subject == "" {
		return nil, errors.New("id_token has no subject")
	}

	email := claims.Email
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		email = ""
	}

	var displayName string
	switch {
	case claims.Name != "":
		displayName = claims.Name
	case claims.Nickname != "":
		displayName = claims.Nickname
	case email != "":
		displayName = email
	default:
		displayName = claims.Subject
	}

	return &Profile{
		ID:    claims.Subject,
		Name:  displayName,
		Email: models.NormalizeEmail(email),
	}, nil
}
