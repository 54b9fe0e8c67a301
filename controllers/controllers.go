package controllers

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blogem/devkb/authenticator"
	"github.com/blogem/devkb/middleware"
	"github.com/blogem/devkb/respond"
	"github.com/blogem/devkb/services"
	"github.com/blogem/devkb/sessions"
)

//go:embed templates/*.html
var templateFS embed.FS

// adminRateLimit applies to every admin API route
var adminRateLimit = &middleware.RateLimit{Requests: 60, Window: time.Minute, Scope: "admin"}

// renderTemplate creates a template set and renders it with the provided data
func renderTemplate(w http.ResponseWriter, pageTemplate string, data interface{}) error {
	return renderTemplateWithStatus(w, http.StatusOK, pageTemplate, data)
}

// renderTemplateWithStatus creates a template set and renders it with the provided data and status code
func renderTemplateWithStatus(w http.ResponseWriter, statusCode int, pageTemplate string, data interface{}) error {
	// Parse layout and page template
	tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+pageTemplate)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	return tmpl.ExecuteTemplate(w, "layout.html", data)
}

// Config carries controller settings that do not come from services
type Config struct {
	SecureCookies bool
	SessionTTL    time.Duration
	Providers     *authenticator.Registry
	Metrics       *middleware.Metrics
	Logger        *slog.Logger
}

// cookies writes the session and OAuth state cookies
type cookies struct {
	secure     bool
	sessionTTL time.Duration
}

func (c cookies) setSession(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(c.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookies) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Controllers holds all controller instances
type Controllers struct {
	Auth  *AuthController
	OAuth *OAuthController
	Admin *AdminController
	Pages *PageController
}

// NewControllers creates and initializes all controller instances
func NewControllers(services *services.Services, cfg Config) *Controllers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = sessions.DefaultTTL
	}
	if cfg.Providers == nil {
		cfg.Providers = authenticator.NewRegistry()
	}
	ck := cookies{secure: cfg.SecureCookies, sessionTTL: cfg.SessionTTL}

	return &Controllers{
		Auth:  NewAuthController(services, ck, cfg.Metrics),
		OAuth: NewOAuthController(services, cfg.Providers, ck, cfg.Metrics, cfg.Logger),
		Admin: NewAdminController(services),
		Pages: NewPageController(),
	}
}

// Mount registers every route on r. API routes and pages go through
// pipeline; the caller installs the Route Guard in front of r.
func (c *Controllers) Mount(r chi.Router, pipeline *middleware.Pipeline) {
	r.Get("/health", Health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", pipeline.Wrap(middleware.Options{}, c.Auth.Login))
		r.Post("/logout", pipeline.Wrap(middleware.Options{}, c.Auth.Logout))
		r.Get("/me", pipeline.Wrap(middleware.Options{RequireAuth: true}, c.Auth.Me))
		r.Post("/token", pipeline.Wrap(middleware.Options{RequireAuth: true}, c.Auth.Token))
		r.Get("/oauth/{provider}", pipeline.Wrap(middleware.Options{}, c.OAuth.Start))
		r.Get("/oauth/{provider}/callback", pipeline.Wrap(middleware.Options{}, c.OAuth.Callback))
	})

	r.Route("/api/admin", func(r chi.Router) {
		opts := middleware.Options{RequireAdmin: true, RateLimit: adminRateLimit}
		r.Get("/logs", pipeline.Wrap(opts, c.Admin.Logs))
		r.Get("/stats", pipeline.Wrap(opts, c.Admin.Stats))
	})

	r.Get("/admin", pipeline.Wrap(middleware.Options{RequireAdmin: true, Reject: c.Pages.Reject}, c.Pages.Admin))
	r.Get("/profile", pipeline.Wrap(middleware.Options{RequireAuth: true, Reject: c.Pages.Reject}, c.Pages.Profile))
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "devkb"})
}
