package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/blogem/devkb/models"
	"github.com/blogem/devkb/sessions"
	"github.com/blogem/devkb/tokens"
)

// SessionCookieName is the cookie carrying the session id
const SessionCookieName = "session"

// ErrInvalidCredential marks a credential that was presented but did not verify
var ErrInvalidCredential = errors.New("invalid credential")

// Resolver extracts and verifies one kind of credential. found reports
// whether the request carried that credential at all; a credential that is
// present but rejected returns found with ErrInvalidCredential. Any other
// error is a backend failure.
type Resolver interface {
	Resolve(r *http.Request) (principal models.Principal, found bool, err error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(r *http.Request) (models.Principal, bool, error)

// Resolve calls f(r)
func (f ResolverFunc) Resolve(r *http.Request) (models.Principal, bool, error) {
	return f(r)
}

// BearerResolver verifies an "Authorization: Bearer" token
func BearerResolver(verifier tokens.Verifier) Resolver {
	return ResolverFunc(func(r *http.Request) (models.Principal, bool, error) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			return models.Principal{}, false, nil
		}

		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			return models.Principal{}, true, ErrInvalidCredential
		}

		principal, err := verifier.Verify(r.Context(), strings.TrimSpace(raw))
		if err != nil {
			return models.Principal{}, true, ErrInvalidCredential
		}
		return principal, true, nil
	})
}

// SessionResolver looks the session cookie up in store
func SessionResolver(store sessions.Store, cookieName string) Resolver {
	if cookieName == "" {
		cookieName = SessionCookieName
	}
	return ResolverFunc(func(r *http.Request) (models.Principal, bool, error) {
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			return models.Principal{}, false, nil
		}

		principal, ok, err := store.Get(r.Context(), cookie.Value)
		if err != nil {
			return models.Principal{}, true, fmt.Errorf("failed to load session: %w", err)
		}
		if !ok {
			return models.Principal{}, true, ErrInvalidCredential
		}
		return principal, true, nil
	})
}

// resolve asks each resolver in order; the first one that finds a credential decides
func resolve(resolvers []Resolver, r *http.Request) (models.Principal, bool, error) {
	for _, res := range resolvers {
		principal, found, err := res.Resolve(r)
		if found || err != nil {
			return principal, found, err
		}
	}
	return models.Principal{}, false, nil
}

// SessionID returns the session cookie value, or "" when absent
func SessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
