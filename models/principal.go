package models

import "strings"

// Role is the authorization level carried by a principal
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Provider tags the identity source that authenticated a principal
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGitHub Provider = "github"
	ProviderWeChat Provider = "wechat"
	ProviderOIDC   Provider = "oidc"
)

// Valid reports whether p is a known identity source
func (p Provider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderGitHub, ProviderWeChat, ProviderOIDC:
		return true
	}
	return false
}

// Principal is the authenticated actor. It is validated once when a session
// or token is created and then passed by value.
type Principal struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Role     Role     `json:"role"`
	Provider Provider `json:"provider"`
}

// Validate checks the required principal fields
func (p Principal) Validate() ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, ValidationError{Field: "id", Message: "Principal ID is required"})
	}
	if !p.Role.Valid() {
		errs = append(errs, ValidationError{Field: "role", Message: "Role must be admin or user"})
	}
	if !p.Provider.Valid() {
		errs = append(errs, ValidationError{Field: "provider", Message: "Provider is not recognized"})
	}
	if p.Email != "" && !IsValidEmail(p.Email) {
		errs = append(errs, ValidationError{Field: "email", Message: "Email format is invalid"})
	}

	return errs
}

// IsAdmin returns true for principals holding the admin role
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
