package models

import (
	"strings"
	"time"
)

// User is a local account that can log in with email and password
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Principal returns the session principal for a local user
func (u *User) Principal() Principal {
	return Principal{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		Provider: ProviderLocal,
	}
}

// LoginForm represents the credentials posted to the login endpoint
type LoginForm struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims the email and lower-cases it
func (f *LoginForm) Normalize() {
	f.Email = NormalizeEmail(f.Email)
}

// Validate validates the login form data
func (f *LoginForm) Validate() ValidationErrors {
	var errs ValidationErrors

	if f.Email == "" {
		errs = append(errs, ValidationError{Field: "email", Message: "Email is required"})
	} else if len(f.Email) > 255 {
		errs = append(errs, ValidationError{Field: "email", Message: "Email must be less than 255 characters"})
	} else if !IsValidEmail(f.Email) {
		errs = append(errs, ValidationError{Field: "email", Message: "Email format is invalid"})
	}

	if f.Password == "" {
		errs = append(errs, ValidationError{Field: "password", Message: "Password is required"})
	} else if len(f.Password) > 72 {
		// bcrypt ignores everything past 72 bytes
		errs = append(errs, ValidationError{Field: "password", Message: "Password must be at most 72 characters"})
	}

	return errs
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail performs basic email validation
func IsValidEmail(email string) bool {
	// Simple validation: must contain @ and at least one dot after @
	atIndex := -1
	for i, char := range email {
		if char == '@' {
			if atIndex != -1 {
				return false // Multiple @ symbols
			}
			atIndex = i
		}
	}

	if atIndex == -1 || atIndex == 0 || atIndex == len(email)-1 {
		return false // No @, or @ at start/end
	}

	// Check for dot after @
	for i := atIndex + 1; i < len(email); i++ {
		if email[i] == '.' && i < len(email)-1 {
			return true
		}
	}

	return false
}
