package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/blogem/devkb/middleware"
	"github.com/blogem/devkb/models"
	"github.com/blogem/devkb/respond"
	"github.com/blogem/devkb/services"
)

// maxBodyBytes caps request bodies read by API handlers
const maxBodyBytes = 1 << 20

// AuthController handles local login, logout and token requests
type AuthController struct {
	services *services.Services
	cookies  cookies
	metrics  *middleware.Metrics
}

// NewAuthController creates a new auth controller
func NewAuthController(services *services.Services, ck cookies, metrics *middleware.Metrics) *AuthController {
	return &AuthController{
		services: services,
		cookies:  ck,
		metrics:  metrics,
	}
}

// tokenResponse is returned by POST /api/auth/token
type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login handles POST /api/auth/login
func (c *AuthController) Login(w http.ResponseWriter, r *http.Request, _ *models.Principal) error {
	form, err := decodeLoginForm(r)
	if err != nil {
		return err
	}

	principal, sessionID, err := c.services.Auth.Login(r.Context(), form)
	if errors.Is(err, services.ErrInvalidCredentials) {
		c.metrics.AuthFailure(middleware.ReasonBadPassword)
		return &middleware.HTTPError{Status: http.StatusUnauthorized, Message: respond.MsgInvalidLogin, Err: err}
	}
	if err != nil {
		return err
	}

	c.cookies.setSession(w, sessionID)
	respond.Success(w, principal)
	return nil
}

// Logout handles POST /api/auth/logout. It succeeds without a session.
func (c *AuthController) Logout(w http.ResponseWriter, r *http.Request, _ *models.Principal) error {
	if err := c.services.Auth.Logout(r.Context(), middleware.SessionID(r)); err != nil {
		return err
	}

	c.cookies.clearSession(w)
	respond.Success(w, map[string]string{"message": "已退出登录"})
	return nil
}

// Me handles GET /api/auth/me
func (c *AuthController) Me(w http.ResponseWriter, r *http.Request, principal *models.Principal) error {
	respond.Success(w, principal)
	return nil
}

// Token handles POST /api/auth/token
func (c *AuthController) Token(w http.ResponseWriter, r *http.Request, principal *models.Principal) error {
	token, expiresAt, err := c.services.Auth.IssueToken(*principal)
	if errors.Is(err, services.ErrTokensDisabled) {
		return &middleware.HTTPError{Status: http.StatusServiceUnavailable, Message: "not_configured", Err: err}
	}
	if err != nil {
		return err
	}

	respond.Success(w, tokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt})
	return nil
}

// decodeLoginForm accepts a JSON body or a urlencoded form
func decodeLoginForm(r *http.Request) (models.LoginForm, error) {
	var form models.LoginForm
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return form, models.ValidationErrors{{Field: "body", Message: "Request body is not a valid form"}}
		}
		form.Email = r.PostFormValue("email")
		form.Password = r.PostFormValue("password")
		return form, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&form); err != nil && !errors.Is(err, io.EOF) {
		return form, models.ValidationErrors{{Field: "body", Message: "Request body must be valid JSON"}}
	}
	return form, nil
}
