// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings
type Config struct {
	Port         int
	DatabasePath string
	AppURL       string
	Env          string

	// SecretKey signs bearer tokens; empty disables them
	SecretKey string

	GitHub OAuthClient
	WeChat OAuthClient
	OIDC   OIDCClient

	RedisURL       string
	TrustedProxies []string

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	TokenTTL             time.Duration
	OAuthHTTPTimeout     time.Duration

	AdminEmail    string
	AdminPassword string
}

// OAuthClient holds the credentials of one OAuth app
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether both credentials are set
func (c OAuthClient) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// OIDCClient holds the settings of an OpenID Connect relying party
type OIDCClient struct {
	Issuer string
	OAuthClient
}

// Enabled reports whether the issuer and both credentials are set
func (c OIDCClient) Enabled() bool {
	return c.Issuer != "" && c.OAuthClient.Enabled()
}

// IsProduction reports whether cookies must be marked Secure
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// TokensEnabled reports whether a signing secret is configured
func (c *Config) TokensEnabled() bool {
	return c.SecretKey != ""
}

// CallbackURL returns the OAuth redirect URI for provider
func (c *Config) CallbackURL(provider string) string {
	return strings.TrimRight(c.AppURL, "/") + "/api/auth/oauth/" + provider + "/callback"
}

// minSecretLength matches the HS256 key size
const minSecretLength = 32

// Load reads an optional env file (".env" when none is given) and then the process environment
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		// godotenv.Load never overrides variables already set in the environment
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}

	cfg := &Config{
		Port:         p.getInt("PORT", 8080),
		DatabasePath: p.getString("DATABASE_PATH", "devkb.db"),
		AppURL:       p.getString("APP_URL", "http://localhost:8080"),
		Env:          p.getString("APP_ENV", "development"),
		SecretKey:    p.getString("SECRET_KEY", ""),
		GitHub: OAuthClient{
			ClientID:     p.getString("GITHUB_CLIENT_ID", ""),
			ClientSecret: p.getString("GITHUB_CLIENT_SECRET", ""),
		},
		WeChat: OAuthClient{
			ClientID:     p.getString("WECHAT_APP_ID", ""),
			ClientSecret: p.getString("WECHAT_APP_SECRET", ""),
		},
		OIDC: OIDCClient{
			Issuer: p.getString("OIDC_ISSUER", ""),
			OAuthClient: OAuthClient{
				ClientID:     p.getString("OIDC_CLIENT_ID", ""),
				ClientSecret: p.getString("OIDC_CLIENT_SECRET", ""),
			},
		},
		RedisURL:             p.getString("REDIS_URL", ""),
		TrustedProxies:       p.getList("TRUSTED_PROXIES"),
		SessionTTL:           p.getDuration("SESSION_TTL", 7*24*time.Hour),
		SessionSweepInterval: p.getDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		TokenTTL:             p.getDuration("TOKEN_TTL", 24*time.Hour),
		OAuthHTTPTimeout:     p.getDuration("OAUTH_HTTP_TIMEOUT", 10*time.Second),
		AdminEmail:           p.getString("ADMIN_EMAIL", ""),
		AdminPassword:        p.getString("ADMIN_PASSWORD", ""),
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		p.fail("PORT", "must be between 1 and 65535")
	}
	if u, err := url.Parse(cfg.AppURL); err != nil || u.Scheme == "" || u.Host == "" {
		p.fail("APP_URL", "must be an absolute URL")
	}
	if cfg.SecretKey != "" && len(cfg.SecretKey) < minSecretLength {
		p.fail("SECRET_KEY", fmt.Sprintf("must be at least %d bytes", minSecretLength))
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		p.fail("ADMIN_EMAIL", "ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(p.errs, "; "))
	}
	return cfg, nil
}

// parser collects every bad value instead of stopping at the first
type parser struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (p *parser) fail(key, msg string) {
	p.errs = append(p.errs, key+" "+msg)
}

func (p *parser) getString(key, def string) string {
	if v, ok := p.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) getInt(key string, def int) int {
	v := p.getString(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, "must be an integer")
		return def
	}
	return n
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	v := p.getString(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		p.fail(key, "must be a positive duration such as 30s or 1h")
		return def
	}
	return d
}

func (p *parser) getList(key string) []string {
	v := p.getString(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
