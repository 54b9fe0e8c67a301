package authenticator

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/blogem/devkb/models"
)

// DefaultGitHubAPIURL is the GitHub REST API root
const DefaultGitHubAPIURL = "https://api.github.com"

// GitHubProvider implements the Provider interface for GitHub OAuth apps
type GitHubProvider struct {
	config oauth2.Config
	apiURL string
	client *http.Client
}

// GitHubConfig holds GitHub-specific configuration
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	// Endpoint and APIURL override the public GitHub URLs
	Endpoint   *oauth2.Endpoint
	APIURL     string
	HTTPClient *http.Client
}

// NewGitHubProvider creates a new GitHub provider with the given configuration
func NewGitHubProvider(cfg GitHubConfig) (Provider, error) {
	// Validate required configuration
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.CallbackURL == "" {
		return nil, errors.New("callback URL is required")
	}

	endpoint := github.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultGitHubAPIURL
	}

	return &GitHubProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiURL: strings.TrimRight(apiURL, "/"),
		client: newHTTPClient(cfg.HTTPClient),
	}, nil
}

// Name returns the provider tag
func (p *GitHubProvider) Name() models.Provider {
	return models.ProviderGitHub
}

// GetAuthURL returns the authorization URL for GitHub
func (p *GitHubProvider) GetAuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for an access token
func (p *GitHubProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	oauth2Token, err := p.config.Exchange(withHTTPClient(ctx, p.client), code)
	if err != nil {
		return nil, err
	}

	return &Token{
		AccessToken:  oauth2Token.AccessToken,
		RefreshToken: oauth2Token.RefreshToken,
		Expiry:       oauth2Token.Expiry.Unix(),
	}, nil
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// GetProfile loads the user and, when the profile hides it, the primary verified email
func (p *GitHubProvider) GetProfile(ctx context.Context, token *Token) (*Profile, error) {
	if token == nil || token.AccessToken == "" {
		return nil, errors.New("no access token")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token.AccessToken)
	header.Set("Accept", "application/vnd.github+json")

	var user githubUser
	if err := getJSON(ctx, p.client, p.apiURL+"/user", header, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("github user has no id")
	}

	email := user.Email
	if email == "" {
		var emails []githubEmail
		// A token without user:email scope gets 404 here; the login still succeeds without email
		if err := getJSON(ctx, p.client, p.apiURL+"/user/emails", header, &emails); err == nil {
			email = primaryEmail(emails)
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &Profile{
		ID:    strconv.FormatInt(user.ID, 10),
		Name:  name,
		Email: models.NormalizeEmail(email),
	}, nil
}

func primaryEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}
