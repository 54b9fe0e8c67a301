package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// PathClass is the Route Guard's view of a request path
type PathClass int

const (
	PathUnclassified PathClass = iota
	PathPublic
	PathProtected
)

// String returns the class name
func (c PathClass) String() string {
	switch c {
	case PathPublic:
		return "public"
	case PathProtected:
		return "protected"
	default:
		return "unclassified"
	}
}

// GuardConfig lists path prefixes for the Route Guard
type GuardConfig struct {
	PublicPrefixes    []string
	ProtectedPrefixes []string
	CookieName        string
	LoginPath         string
}

// DefaultGuardConfig returns the site's page classification
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		PublicPrefixes:    []string{"/", "/login", "/articles", "/snippets", "/tools", "/api-guides", "/api/auth", "/health"},
		ProtectedPrefixes: []string{"/admin", "/profile"},
		CookieName:        SessionCookieName,
		LoginPath:         "/login",
	}
}

// Classify reports whether path is public, protected or neither.
// Protected wins when a path matches both lists.
func (c GuardConfig) Classify(path string) PathClass {
	for _, prefix := range c.ProtectedPrefixes {
		if matchPrefix(path, prefix) {
			return PathProtected
		}
	}
	for _, prefix := range c.PublicPrefixes {
		if matchPrefix(path, prefix) {
			return PathPublic
		}
	}
	return PathUnclassified
}

// matchPrefix matches whole path segments; "/" only matches the root
func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return path == "/"
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// RouteGuard redirects anonymous visitors of protected pages to the login
// page. It only checks that a session cookie is present; the pipeline
// wrapper does the real authorization.
func RouteGuard(cfg GuardConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = SessionCookieName
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Classify(r.URL.Path) != PathProtected {
				next.ServeHTTP(w, r)
				return
			}

			if cookie, err := r.Cookie(cfg.CookieName); err == nil && cookie.Value != "" {
				next.ServeHTTP(w, r)
				return
			}

			target := cfg.LoginPath + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
		})
	}
}
