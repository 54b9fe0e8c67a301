package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/blogem/devkb/models"
	"github.com/blogem/devkb/repositories"
	"github.com/blogem/devkb/sessions"
)

// TokenIssuer mints bearer tokens for a principal
type TokenIssuer interface {
	Issue(principal models.Principal) (string, time.Time, error)
}

// SeedUser describes a local account created at startup when missing
type SeedUser struct {
	Email    string
	Name     string
	Password string
	Role     models.Role
}

// DefaultSeedUsers are the built-in local accounts
func DefaultSeedUsers() []SeedUser {
	return []SeedUser{
		{Email: "admin@example.com", Name: "管理员", Password: "admin123", Role: models.RoleAdmin},
		{Email: "user@example.com", Name: "普通用户", Password: "user123", Role: models.RoleUser},
	}
}

// AuthService interface defines login, logout and session business logic
type AuthService interface {
	Login(ctx context.Context, form models.LoginForm) (models.Principal, string, error)
	Logout(ctx context.Context, sessionID string) error
	StartSession(ctx context.Context, principal models.Principal) (string, error)
	IssueToken(principal models.Principal) (string, time.Time, error)
	LookupPrincipal(ctx context.Context, email string) (models.Principal, error)
	SeedUsers(ctx context.Context, users []SeedUser) error
}

// authService implements AuthService interface
type authService struct {
	users      repositories.UserRepository
	sessions   sessions.Store
	tokens     TokenIssuer
	bcryptCost int
	dummyHash  []byte
	logger     *slog.Logger
}

// NewAuthService creates a new auth service. tokens may be nil when bearer
// tokens are disabled; bcryptCost of 0 uses bcrypt.DefaultCost.
func NewAuthService(users repositories.UserRepository, store sessions.Store, tokens TokenIssuer, bcryptCost int, logger *slog.Logger) AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Compared against on unknown emails so both failure paths cost a bcrypt round
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("devkb-unknown-user"), bcryptCost)
	if err != nil {
		logger.Error("failed to prepare dummy password hash", "error", err)
	}

	return &authService{
		users:      users,
		sessions:   store,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		dummyHash:  dummyHash,
		logger:     logger,
	}
}

// Login verifies email and password and opens a new session
func (s *authService) Login(ctx context.Context, form models.LoginForm) (models.Principal, string, error) {
	form.Normalize()
	if errs := form.Validate(); errs.HasErrors() {
		return models.Principal{}, "", errs
	}

	user, err := s.users.GetByEmail(ctx, form.Email)
	if errors.Is(err, repositories.ErrNotFound) {
		bcrypt.CompareHashAndPassword(s.dummyHash, []byte(form.Password))
		return models.Principal{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return models.Principal{}, "", fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(form.Password)); err != nil {
		return models.Principal{}, "", ErrInvalidCredentials
	}

	principal := user.Principal()
	sessionID, err := s.StartSession(ctx, principal)
	if err != nil {
		return models.Principal{}, "", err
	}

	return principal, sessionID, nil
}

// Logout deletes the session. An empty or unknown id is not an error.
func (s *authService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// StartSession opens a fresh session for an already authenticated principal
func (s *authService) StartSession(ctx context.Context, principal models.Principal) (string, error) {
	sessionID, err := s.sessions.Create(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session started", "actor", principal.ID, "provider", principal.Provider)
	return sessionID, nil
}

// IssueToken mints a bearer token for principal
func (s *authService) IssueToken(principal models.Principal) (string, time.Time, error) {
	if s.tokens == nil {
		return "", time.Time{}, ErrTokensDisabled
	}
	return s.tokens.Issue(principal)
}

// LookupPrincipal returns the principal of the local account registered under email
func (s *authService) LookupPrincipal(ctx context.Context, email string) (models.Principal, error) {
	user, err := s.users.GetByEmail(ctx, models.NormalizeEmail(email))
	if errors.Is(err, repositories.ErrNotFound) {
		return models.Principal{}, ErrNotFound
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("failed to look up user: %w", err)
	}
	return user.Principal(), nil
}

// SeedUsers creates the given local accounts unless their email is already taken
func (s *authService) SeedUsers(ctx context.Context, users []SeedUser) error {
	for _, seed := range users {
		email := models.NormalizeEmail(seed.Email)

		_, err := s.users.GetByEmail(ctx, email)
		if err == nil {
			continue
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("failed to look up seed user %s: %w", email, err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), s.bcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash password for %s: %w", email, err)
		}

		user := &models.User{
			ID:           uuid.NewString(),
			Email:        email,
			Name:         strings.TrimSpace(seed.Name),
			PasswordHash: string(hash),
			Role:         seed.Role,
		}
		if err := s.users.Create(ctx, user); err != nil && !errors.Is(err, repositories.ErrDuplicate) {
			return fmt.Errorf("failed to create seed user %s: %w", email, err)
		}

		s.logger.Info("seed user created", "email", email, "role", seed.Role)
	}

	return nil
}
