package models

import (
	"errors"
	"testing"
	"time"
)

// Test Principal validation
func TestPrincipalValidation(t *testing.T) {
	valid := Principal{ID: "1", Name: "Admin", Email: "admin@example.com", Role: RoleAdmin, Provider: ProviderLocal}
	if errs := valid.Validate(); errs.HasErrors() {
		t.Errorf("Expected no errors for valid principal, got: %v", errs)
	}

	// Email is optional for providers without an email scope
	wechat := Principal{ID: "wechat_abc", Name: "微信用户", Role: RoleUser, Provider: ProviderWeChat}
	if errs := wechat.Validate(); errs.HasErrors() {
		t.Errorf("Expected no errors for principal without email, got: %v", errs)
	}

	invalid := Principal{ID: " ", Email: "not-an-email", Role: "root", Provider: "ldap"}
	errs := invalid.Validate()
	if len(errs) != 4 {
		t.Errorf("Expected 4 errors for invalid principal, got: %v", errs)
	}

	if !valid.IsAdmin() {
		t.Error("Expected admin principal to report IsAdmin")
	}
	if wechat.IsAdmin() {
		t.Error("Expected user principal not to report IsAdmin")
	}
}

// Test LoginForm validation
func TestLoginFormValidation(t *testing.T) {
	form := LoginForm{Email: "  Admin@Example.COM ", Password: "admin123"}
	form.Normalize()
	if form.Email != "admin@example.com" {
		t.Errorf("Expected normalized email, got %q", form.Email)
	}
	if errs := form.Validate(); errs.HasErrors() {
		t.Errorf("Expected no errors for valid form, got: %v", errs)
	}

	empty := LoginForm{}
	errs := empty.Validate()
	if len(errs) != 2 {
		t.Errorf("Expected 2 errors for empty form, got: %v", errs)
	}

	bad := LoginForm{Email: "invalid-email", Password: "x"}
	errs = bad.Validate()
	if len(errs) != 1 || errs[0].Field != "email" {
		t.Errorf("Expected a single email error, got: %v", errs)
	}
}

// Test email validation
func TestIsValidEmail(t *testing.T) {
	validEmails := []string{"a@b.co", "admin@example.com", "first.last@sub.example.org"}
	for _, email := range validEmails {
		if !IsValidEmail(email) {
			t.Errorf("Expected %s to be valid", email)
		}
	}

	invalidEmails := []string{"", "@example.com", "admin@", "admin@example", "a@@b.com", "admin@example."}
	for _, email := range invalidEmails {
		if IsValidEmail(email) {
			t.Errorf("Expected %s to be invalid", email)
		}
	}
}

// Test session expiry
func TestSessionExpired(t *testing.T) {
	now := time.Date(2025, 10, 6, 12, 0, 0, 0, time.UTC)
	s := Session{ID: "abc", ExpiresAt: now.Add(time.Minute)}

	if s.Expired(now) {
		t.Error("Session should not be expired before ExpiresAt")
	}
	if !s.Expired(now.Add(time.Minute)) {
		t.Error("Session should be expired at ExpiresAt")
	}
}

// Test pagination math
func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 41)
	if p.TotalPages != 3 {
		t.Errorf("Expected 3 pages, got %d", p.TotalPages)
	}
	if p.Offset() != 20 {
		t.Errorf("Expected offset 20, got %d", p.Offset())
	}

	empty := NewPagination(1, 20, 0)
	if empty.TotalPages != 0 {
		t.Errorf("Expected 0 pages for empty result, got %d", empty.TotalPages)
	}
}

// Test audit filter validation
func TestAuditLogFilterValidation(t *testing.T) {
	from := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, -1)

	f := AuditLogFilter{Method: "get", StatusCode: 42, From: &from, To: &to}
	errs := f.Validate()
	if len(errs) != 3 {
		t.Errorf("Expected 3 errors, got: %v", errs)
	}

	ok := AuditLogFilter{Method: "GET", StatusCode: 200}
	if errs := ok.Validate(); errs.HasErrors() {
		t.Errorf("Expected no errors, got: %v", errs)
	}
}

// Test that ValidationErrors can travel as an error
func TestValidationErrorsAsError(t *testing.T) {
	var err error = ValidationErrors{{Field: "email", Message: "Email is required"}}

	var ve ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatal("Expected errors.As to find ValidationErrors")
	}
	if ve.Error() != "validation failed: Email is required" {
		t.Errorf("Unexpected message: %s", ve.Error())
	}
}
