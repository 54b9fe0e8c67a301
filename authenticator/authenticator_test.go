package authenticator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/blogem/devkb/models"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestProfilePrincipal(t *testing.T) {
	p := &Profile{ID: "42", Name: "Octo", Email: "octo@example.com"}
	principal := p.Principal(models.ProviderGitHub)

	assert.Equal(t, "github_42", principal.ID)
	assert.Equal(t, "Octo", principal.Name)
	assert.Equal(t, models.RoleUser, principal.Role)
	assert.Equal(t, models.ProviderGitHub, principal.Provider)
	assert.Empty(t, principal.Validate())

	unnamed := (&Profile{ID: "o6_bmjrPTlm6"}).Principal(models.ProviderWeChat)
	assert.Equal(t, "wechat_o6_bmjrPTlm6", unnamed.ID)
	assert.Equal(t, "o6_bmjrPTlm6", unnamed.Name)
}

func TestRegistry(t *testing.T) {
	gh, err := NewGitHubProvider(GitHubConfig{ClientID: "id", ClientSecret: "secret", CallbackURL: "http://localhost/cb"})
	require.NoError(t, err)
	wc, err := NewWeChatProvider(WeChatConfig{AppID: "wx", AppSecret: "secret", CallbackURL: "http://localhost/cb"})
	require.NoError(t, err)

	reg := NewRegistry(wc, nil, gh)

	p, ok := reg.Get("github")
	assert.True(t, ok)
	assert.Equal(t, models.ProviderGitHub, p.Name())

	_, ok = reg.Get("oidc")
	assert.False(t, ok)

	assert.Equal(t, []models.Provider{models.ProviderGitHub, models.ProviderWeChat}, reg.Names())
}

func TestNewGitHubProvider_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  GitHubConfig
	}{
		{"missing client id", GitHubConfig{ClientSecret: "s", CallbackURL: "http://x"}},
		{"missing client secret", GitHubConfig{ClientID: "i", CallbackURL: "http://x"}},
		{"missing callback", GitHubConfig{ClientID: "i", ClientSecret: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGitHubProvider(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func newGitHubTestServer(t *testing.T, user githubUser, emails []githubEmail) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(t, w, map[string]string{"error": "bad_verification_code"})
			return
		}
		writeJSON(t, w, map[string]string{"access_token": "gho_test", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(t, w, user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newGitHubTestProvider(t *testing.T, srv *httptest.Server) Provider {
	t.Helper()
	p, err := NewGitHubProvider(GitHubConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		CallbackURL:  "http://localhost:8080/api/auth/oauth/github/callback",
		Endpoint: &oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		},
		APIURL:     srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return p
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	p, err := NewGitHubProvider(GitHubConfig{ClientID: "client", ClientSecret: "secret", CallbackURL: "http://localhost/cb"})
	require.NoError(t, err)

	u, err := url.Parse(p.GetAuthURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "xyz", u.Query().Get("state"))
	assert.Equal(t, "client", u.Query().Get("client_id"))
	assert.Equal(t, "read:user user:email", u.Query().Get("scope"))
}

func TestGitHubProvider_ExchangeAndProfile(t *testing.T) {
	srv := newGitHubTestServer(t, githubUser{ID: 583231, Login: "octocat"}, []githubEmail{
		{Email: "old@example.com", Primary: false, Verified: true},
		{Email: "Octo@Example.com", Primary: true, Verified: true},
	})
	p := newGitHubTestProvider(t, srv)
	ctx := context.Background()

	token, err := p.ExchangeCode(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "gho_test", token.AccessToken)

	profile, err := p.GetProfile(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "583231", profile.ID)
	assert.Equal(t, "octocat", profile.Name)
	assert.Equal(t, "octo@example.com", profile.Email)
}

func TestGitHubProvider_ProfileEmailOnUser(t *testing.T) {
	srv := newGitHubTestServer(t, githubUser{ID: 7, Login: "mona", Name: "Mona Lisa", Email: "mona@example.com"}, nil)
	p := newGitHubTestProvider(t, srv)

	profile, err := p.GetProfile(context.Background(), &Token{AccessToken: "gho_test"})
	require.NoError(t, err)
	assert.Equal(t, "Mona Lisa", profile.Name)
	assert.Equal(t, "mona@example.com", profile.Email)
}

func TestGitHubProvider_Failures(t *testing.T) {
	srv := newGitHubTestServer(t, githubUser{ID: 7, Login: "mona"}, nil)
	p := newGitHubTestProvider(t, srv)
	ctx := context.Background()

	_, err := p.ExchangeCode(ctx, "bad-code")
	assert.Error(t, err)

	_, err = p.GetProfile(ctx, &Token{AccessToken: "revoked"})
	assert.Error(t, err)

	_, err = p.GetProfile(ctx, nil)
	assert.Error(t, err)
}

func newWeChatTestProvider(t *testing.T, handler http.Handler) Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewWeChatProvider(WeChatConfig{
		AppID:       "wx123",
		AppSecret:   "secret",
		CallbackURL: "http://localhost:8080/api/auth/oauth/wechat/callback",
		APIURL:      srv.URL,
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	return p
}

func TestWeChatProvider_AuthURL(t *testing.T) {
	p, err := NewWeChatProvider(WeChatConfig{AppID: "wx123", AppSecret: "s", CallbackURL: "http://localhost/cb?a=1"})
	require.NoError(t, err)

	raw := p.GetAuthURL("st@te")
	assert.True(t, strings.HasPrefix(raw, DefaultWeChatAuthorizeURL+"?appid=wx123&redirect_uri="))
	assert.True(t, strings.HasSuffix(raw, "#wechat_redirect"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/cb?a=1", u.Query().Get("redirect_uri"))
	assert.Equal(t, "snsapi_login", u.Query().Get("scope"))
	assert.Equal(t, "st@te", u.Query().Get("state"))
	assert.Equal(t, "wechat_redirect", u.Fragment)
}

func TestWeChatProvider_ExchangeAndProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sns/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "wx123", q.Get("appid"))
		assert.Equal(t, "secret", q.Get("secret"))
		assert.Equal(t, "authorization_code", q.Get("grant_type"))
		if q.Get("code") != "good-code" {
			writeJSON(t, w, map[string]interface{}{"errcode": 40029, "errmsg": "invalid code"})
			return
		}
		writeJSON(t, w, map[string]interface{}{
			"access_token": "wx-access", "expires_in": 7200, "refresh_token": "wx-refresh", "openid": "OPENID",
		})
	})
	mux.HandleFunc("/sns/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wx-access", r.URL.Query().Get("access_token"))
		assert.Equal(t, "OPENID", r.URL.Query().Get("openid"))
		writeJSON(t, w, map[string]interface{}{"openid": "OPENID", "nickname": "小明", "unionid": "UNION"})
	})
	p := newWeChatTestProvider(t, mux)
	ctx := context.Background()

	_, err := p.ExchangeCode(ctx, "bad-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "40029")

	token, err := p.ExchangeCode(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "OPENID", token.OpenID)

	profile, err := p.GetProfile(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "UNION", profile.ID)
	assert.Equal(t, "小明", profile.Name)
	assert.Empty(t, profile.Email)
}

func TestWeChatProvider_ProfileError(t *testing.T) {
	p := newWeChatTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"errcode": 42001, "errmsg": "access_token expired"})
	}))

	_, err := p.GetProfile(context.Background(), &Token{AccessToken: "old", OpenID: "OPENID"})
	assert.Error(t, err)
}

func TestNewOpenIDProvider_Validation(t *testing.T) {
	_, err := NewOpenIDProvider(context.Background(), OpenIDConfig{ClientID: "c", ClientSecret: "s", CallbackURL: "http://x"})
	assert.Error(t, err)

	_, err = NewOpenIDProvider(context.Background(), OpenIDConfig{IssuerURL: "https://issuer", ClientSecret: "s", CallbackURL: "http://x"})
	assert.Error(t, err)
}

func TestProfileFromClaims(t *testing.T) {
	verified := true
	unverified := false

	tests := []struct {
		name      string
		claims    idClaims
		wantName  string
		wantEmail string
		wantErr   bool
	}{
		{"name wins", idClaims{Subject: "s1", Name: "Ada", Nickname: "ada", Email: "ada@example.com", EmailVerified: &verified}, "Ada", "ada@example.com", false},
		{"nickname fallback", idClaims{Subject: "s1", Nickname: "ada"}, "ada", "", false},
		{"email fallback", idClaims{Subject: "s1", Email: "ADA@example.com"}, "ADA@example.com", "ada@example.com", false},
		{"unverified email dropped", idClaims{Subject: "s1", Email: "ada@example.com", EmailVerified: &unverified}, "s1", "", false},
		{"missing subject", idClaims{Name: "Ada"}, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := profileFromClaims(tt.claims)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, profile.Name)
			assert.Equal(t, tt.wantEmail, profile.Email)
		})
	}
}
