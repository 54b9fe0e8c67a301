package authenticator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2"

	"github.com/blogem/devkb/models"
)

// DefaultHTTPTimeout bounds every outbound call to an identity provider
const DefaultHTTPTimeout = 10 * time.Second

// maxResponseBytes caps how much of a provider response is read
const maxResponseBytes = 1 << 20

// Token represents an authentication token
type Token struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	// OpenID is the WeChat user id returned alongside the access token
	OpenID string
	Expiry int64
}

// Profile is the identity a provider reports for the logged-in user
type Profile struct {
	ID    string
	Name  string
	Email string
}

// Principal builds the session principal for a profile from provider.
// Provider logins always receive the user role.
func (p *Profile) Principal(provider models.Provider) models.Principal {
	name := p.Name
	if name == "" {
		name = p.ID
	}
	return models.Principal{
		ID:       string(provider) + "_" + p.ID,
		Name:     name,
		Email:    p.Email,
		Role:     models.RoleUser,
		Provider: provider,
	}
}

// Provider interface abstracts OAuth provider operations
type Provider interface {
	Name() models.Provider
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*Token, error)
	GetProfile(ctx context.Context, token *Token) (*Profile, error)
}

// Registry looks providers up by their URL name
type Registry struct {
	providers map[models.Provider]Provider
}

// NewRegistry creates a registry; nil providers are skipped
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.Provider]Provider)}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Get returns the provider registered under name
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[models.Provider(name)]
	return p, ok
}

// Names returns the registered provider names in sorted order
func (r *Registry) Names() []models.Provider {
	names := make([]models.Provider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// newHTTPClient returns client, or a client with DefaultHTTPTimeout when nil
func newHTTPClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// withHTTPClient makes the oauth2 package use client for token exchanges
func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

// getJSON performs a GET and decodes a 2xx JSON body into out
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
