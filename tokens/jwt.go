package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/blogem/devkb/models"
)

const (
	// DefaultIssuer is the iss claim written and required by JWTManager
	DefaultIssuer = "devkb"
	// DefaultTokenTTL is the lifetime of an issued bearer token
	DefaultTokenTTL = 24 * time.Hour
	// MinSecretLength is the shortest HS256 secret accepted
	MinSecretLength = 32
)

// Config holds the signing configuration for JWTManager
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Leeway time.Duration
	Now    func() time.Time
}

// Claims are the registered claims plus the principal fields
type Claims struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HS256 signed tokens
type JWTManager struct {
	config Config
}

var _ Verifier = (*JWTManager)(nil)

// NewJWTManager validates cfg and fills defaults
func NewJWTManager(cfg Config) (*JWTManager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("secret must be at least %d bytes, got %d", MinSecretLength, len(cfg.Secret))
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)
	cfg.Secret = secret

	return &JWTManager{config: cfg}, nil
}

// Issue mints a token for principal and returns it with its expiry
func (m *JWTManager) Issue(principal models.Principal) (string, time.Time, error) {
	if errs := principal.Validate(); errs.HasErrors() {
		return "", time.Time{}, errs
	}

	now := m.config.Now()
	expiresAt := now.Add(m.config.TTL)
	claims := Claims{
		Name:     principal.Name,
		Email:    principal.Email,
		Role:     string(principal.Role),
		Provider: string(principal.Provider),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, algorithm, issuer and expiry, then maps the claims
// to a principal. Every failure collapses to ErrInvalidToken.
func (m *JWTManager) Verify(ctx context.Context, raw string) (models.Principal, error) {
	if raw == "" {
		return models.Principal{}, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.config.Leeway),
		jwt.WithTimeFunc(m.config.Now),
	)

	var claims Claims
	token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil || !token.Valid {
		return models.Principal{}, ErrInvalidToken
	}

	principal := models.Principal{
		ID:       claims.Subject,
		Name:     claims.Name,
		Email:    claims.Email,
		Role:     models.Role(claims.Role),
		Provider: models.Provider(claims.Provider),
	}
	if errs := principal.Validate(); errs.HasErrors() {
		return models.Principal{}, ErrInvalidToken
	}
	return principal, nil
}
