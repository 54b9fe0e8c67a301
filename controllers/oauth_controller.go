package controllers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blogem/devkb/authenticator"
	"github.com/blogem/devkb/middleware"
	"github.com/blogem/devkb/models"
	"github.com/blogem/devkb/respond"
	"github.com/blogem/devkb/services"
)

const (
	// stateCookieName holds the CSRF state between Start and Callback
	stateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute
	stateBytes      = 32

	// loginErrorPath receives failed OAuth logins with an error tag
	loginErrorPath = "/login/error"
)

// Callback error tags
const (
	errNotConfigured       = "not_configured"
	errInvalidState        = "invalid_state"
	errAccessDenied        = "access_denied"
	errMissingCode         = "missing_code"
	errTokenExchangeFailed = "token_exchange_failed"
	errProfileFetchFailed  = "profile_fetch_failed"
	errSessionFailed       = "session_failed"
)

// OAuthController handles third-party login redirects
type OAuthController struct {
	services  *services.Services
	providers *authenticator.Registry
	cookies   cookies
	metrics   *middleware.Metrics
	logger    *slog.Logger
}

// NewOAuthController creates a new OAuth controller
func NewOAuthController(services *services.Services, providers *authenticator.Registry, ck cookies, metrics *middleware.Metrics, logger *slog.Logger) *OAuthController {
	return &OAuthController{
		services:  services,
		providers: providers,
		cookies:   ck,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start handles GET /api/auth/oauth/{provider}
func (c *OAuthController) Start(w http.ResponseWriter, r *http.Request, _ *models.Principal) error {
	name := chi.URLParam(r, "provider")
	if !models.Provider(name).Valid() || models.Provider(name) == models.ProviderLocal {
		return middleware.NewHTTPError(http.StatusNotFound, "未知的登录方式")
	}

	provider, ok := c.providers.Get(name)
	if !ok {
		respond.JSON(w, http.StatusServiceUnavailable, models.APIResponse{
			Success: false,
			Error:   errNotConfigured,
			Data:    map[string]string{"message": "OAuth provider not configured", "provider": name},
		})
		return nil
	}

	// Generate random state
	state, err := generateRandomState()
	if err != nil {
		return err
	}

	// Save the state in a short-lived cookie to validate in callback
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/auth/oauth",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.cookies.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.GetAuthURL(state), http.StatusFound)
	return nil
}

// Callback handles GET /api/auth/oauth/{provider}/callback
func (c *OAuthController) Callback(w http.ResponseWriter, r *http.Request, _ *models.Principal) error {
	name := chi.URLParam(r, "provider")
	query := r.URL.Query()

	provider, ok := c.providers.Get(name)
	if !ok {
		c.fail(w, r, name, errNotConfigured, nil)
		return nil
	}

	// Verify state, then clear it so it cannot be replayed
	storedState := ""
	if cookie, err := r.Cookie(stateCookieName); err == nil {
		storedState = cookie.Value
	}
	c.clearState(w)

	state := query.Get("state")
	if storedState == "" || state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(storedState)) != 1 {
		c.fail(w, r, name, errInvalidState, nil)
		return nil
	}

	if providerErr := query.Get("error"); providerErr != "" {
		c.fail(w, r, name, errAccessDenied, nil)
		return nil
	}

	code := query.Get("code")
	if code == "" {
		c.fail(w, r, name, errMissingCode, nil)
		return nil
	}

	// Exchange the code for a token
	token, err := provider.ExchangeCode(r.Context(), code)
	if err != nil {
		c.fail(w, r, name, errTokenExchangeFailed, err)
		return nil
	}

	profile, err := provider.GetProfile(r.Context(), token)
	if err != nil {
		c.fail(w, r, name, errProfileFetchFailed, err)
		return nil
	}

	sessionID, err := c.services.Auth.StartSession(r.Context(), profile.Principal(provider.Name()))
	if err != nil {
		c.fail(w, r, name, errSessionFailed, err)
		return nil
	}

	c.cookies.setSession(w, sessionID)
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// fail redirects to the login error page with tag
func (c *OAuthController) fail(w http.ResponseWriter, r *http.Request, provider, tag string, err error) {
	c.metrics.AuthFailure(middleware.ReasonOAuth)
	if err != nil {
		c.logger.Warn("oauth login failed", "provider", provider, "reason", tag, "error", err)
	} else {
		c.logger.Info("oauth login rejected", "provider", provider, "reason", tag)
	}
	http.Redirect(w, r, loginErrorPath+"?error="+url.QueryEscape(tag), http.StatusFound)
}

func (c *OAuthController) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/api/auth/oauth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cookies.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateRandomState generates a random state value for CSRF protection
func generateRandomState() (string, error) {
	b := make([]byte, stateBytes)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
