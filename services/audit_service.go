package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blogem/devkb/models"
	"github.com/blogem/devkb/repositories"
)

const (
	// DefaultPageLimit is used when a list request does not name a limit
	DefaultPageLimit = 20
	// MaxPageLimit caps the page size of list requests
	MaxPageLimit = 100
)

// AuditService interface defines audit log recording and reads
type AuditService interface {
	Record(ctx context.Context, entry *models.AuditLogEntry)
	List(ctx context.Context, filter models.AuditLogFilter, page, limit int) ([]models.AuditLogEntry, models.Pagination, error)
	Stats(ctx context.Context, filter models.AuditLogFilter) (*models.AuditStats, error)
}

// auditService implements AuditService interface
type auditService struct {
	auditRepo repositories.AuditRepository
	logger    *slog.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(auditRepo repositories.AuditRepository, logger *slog.Logger) AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &auditService{
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// Record persists entry. Failures are logged, never returned, so a broken
// audit sink cannot fail the request being audited.
func (s *auditService) Record(ctx context.Context, entry *models.AuditLogEntry) {
	if err := s.auditRepo.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to create audit log",
			"error", err,
			"method", entry.Method,
			"path", entry.Path,
			"status", entry.StatusCode,
		)
	}
}

// List returns one page of entries. page is clamped to >= 1 and limit to [1, MaxPageLimit].
func (s *auditService) List(ctx context.Context, filter models.AuditLogFilter, page, limit int) ([]models.AuditLogEntry, models.Pagination, error) {
	if errs := filter.Validate(); errs.HasErrors() {
		return nil, models.Pagination{}, errs
	}

	page, limit = clampPage(page, limit)
	pagination := models.NewPagination(page, limit, 0)

	entries, total, err := s.auditRepo.List(ctx, filter, limit, pagination.Offset())
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("failed to list audit log: %w", err)
	}

	return entries, models.NewPagination(page, limit, total), nil
}

// Stats aggregates the entries matching filter
func (s *auditService) Stats(ctx context.Context, filter models.AuditLogFilter) (*models.AuditStats, error) {
	if errs := filter.Validate(); errs.HasErrors() {
		return nil, errs
	}

	stats, err := s.auditRepo.Stats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit log: %w", err)
	}
	return stats, nil
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}
