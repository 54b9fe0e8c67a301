package services

import (
	"log/slog"

	"github.com/blogem/devkb/repositories"
	"github.com/blogem/devkb/sessions"
)

// Services holds all service instances
type Services struct {
	Auth  AuthService
	Audit AuditService
}

// Config carries the collaborators services need beyond repositories
type Config struct {
	Sessions   sessions.Store
	Tokens     TokenIssuer
	BcryptCost int
	Logger     *slog.Logger
}

// NewServices creates and initializes all service instances
func NewServices(repos *repositories.Repositories, cfg Config) *Services {
	return &Services{
		Auth:  NewAuthService(repos.Users, cfg.Sessions, cfg.Tokens, cfg.BcryptCost, cfg.Logger),
		Audit: NewAuditService(repos.Audit, cfg.Logger),
	}
}
