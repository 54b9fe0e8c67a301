package authenticator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blogem/devkb/models"
)

const (
	// DefaultWeChatAuthorizeURL is the QR-code login page for website apps
	DefaultWeChatAuthorizeURL = "https://open.weixin.qq.com/connect/qrconnect"
	// DefaultWeChatAPIURL is the WeChat open platform API root
	DefaultWeChatAPIURL = "https://api.weixin.qq.com"
)

// WeChatProvider implements the Provider interface for WeChat website login.
// WeChat renames the OAuth2 parameters (appid/secret) and reports errors in
// a 200 body, so the exchange is done by hand.
type WeChatProvider struct {
	appID        string
	appSecret    string
	callbackURL  string
	authorizeURL string
	apiURL       string
	client       *http.Client
	now          func() time.Time
}

// WeChatConfig holds WeChat-specific configuration
type WeChatConfig struct {
	AppID        string
	AppSecret    string
	CallbackURL  string
	AuthorizeURL string
	APIURL       string
	HTTPClient   *http.Client
}

// NewWeChatProvider creates a new WeChat provider with the given configuration
func NewWeChatProvider(cfg WeChatConfig) (Provider, error) {
	if cfg.AppID == "" {
		return nil, errors.New("app ID is required")
	}
	if cfg.AppSecret == "" {
		return nil, errors.New("app secret is required")
	}
	if cfg.CallbackURL == "" {
		return nil, errors.New("callback URL is required")
	}

	authorizeURL := cfg.AuthorizeURL
	if authorizeURL == "" {
		authorizeURL = DefaultWeChatAuthorizeURL
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultWeChatAPIURL
	}

	return &WeChatProvider{
		appID:        cfg.AppID,
		appSecret:    cfg.AppSecret,
		callbackURL:  cfg.CallbackURL,
		authorizeURL: authorizeURL,
		apiURL:       strings.TrimRight(apiURL, "/"),
		client:       newHTTPClient(cfg.HTTPClient),
		now:          time.Now,
	}, nil
}

// Name returns the provider tag
func (p *WeChatProvider) Name() models.Provider {
	return models.ProviderWeChat
}

// GetAuthURL returns the QR-connect URL. WeChat expects the parameters in
// this order and the #wechat_redirect fragment.
func (p *WeChatProvider) GetAuthURL(state string) string {
	var b strings.Builder
	b.WriteString(p.authorizeURL)
	b.WriteString("?appid=")
	b.WriteString(url.QueryEscape(p.appID))
	b.WriteString("&redirect_uri=")
	b.WriteString(url.QueryEscape(p.callbackURL))
	b.WriteString("&response_type=code&scope=snsapi_login&state=")
	b.WriteString(url.QueryEscape(state))
	b.WriteString("#wechat_redirect")
	return b.String()
}

// wechatError is embedded in every WeChat API response
type wechatError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (e wechatError) err() error {
	if e.ErrCode == 0 {
		return nil
	}
	return fmt.Errorf("wechat error %d: %s", e.ErrCode, e.ErrMsg)
}

type wechatTokenResponse struct {
	wechatError
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	UnionID      string `json:"unionid"`
}

// ExchangeCode exchanges an authorization code for an access token and openid
func (p *WeChatProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	query := url.Values{}
	query.Set("appid", p.appID)
	query.Set("secret", p.appSecret)
	query.Set("code", code)
	query.Set("grant_type", "authorization_code")

	var resp wechatTokenResponse
	if err := getJSON(ctx, p.client, p.apiURL+"/sns/oauth2/access_token?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.OpenID == "" {
		return nil, errors.New("wechat token response missing access_token or openid")
	}

	return &Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		OpenID:       resp.OpenID,
		Expiry:       p.now().Add(time.Duration(resp.ExpiresIn) * time.Second).Unix(),
	}, nil
}

type wechatUserInfo struct {
	wechatError
	OpenID   string `json:"openid"`
	Nickname string `json:"nickname"`
	UnionID  string `json:"unionid"`
}

// GetProfile loads the user info. WeChat has no email scope, so Email stays empty.
// The unionid is preferred as the stable id when the app belongs to an open platform account.
func (p *WeChatProvider) GetProfile(ctx context.Context, token *Token) (*Profile, error) {
	if token == nil || token.AccessToken == "" || token.OpenID == "" {
		return nil, errors.New("no access token")
	}

	query := url.Values{}
	query.Set("access_token", token.AccessToken)
	query.Set("openid", token.OpenID)

	var info wechatUserInfo
	if err := getJSON(ctx, p.client, p.apiURL+"/sns/userinfo?"+query.Encode(), nil, &info); err != nil {
		return nil, err
	}
	if err := info.err(); err != nil {
		return nil, err
	}

	id := info.UnionID
	if id == "" {
		id = info.OpenID
	}
	if id == "" {
		return nil, errors.New("wechat user has no id")
	}

	return &Profile{
		ID:   id,
		Name: info.Nickname,
	}, nil
}
