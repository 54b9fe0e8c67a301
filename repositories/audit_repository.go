package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/blogem/devkb/models"
)

// AuditRepository handles audit log persistence. Entries are append-only.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, filter models.AuditLogFilter, limit, offset int) ([]models.AuditLogEntry, int, error)
	Stats(ctx context.Context, filter models.AuditLogFilter) (*models.AuditStats, error)
}

type sqliteAuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &sqliteAuditRepository{db: db}
}

// Create inserts a new audit log entry and sets its ID
func (r *sqliteAuditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	query := `
		INSERT INTO audit_log (timestamp, method, path, status_code, response_time_ms,
		                       actor_id, client_ip, user_agent, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx,
		query,
		entry.Timestamp,
		entry.Method,
		entry.Path,
		entry.StatusCode,
		entry.ResponseTimeMs,
		entry.ActorID,
		entry.ClientIP,
		entry.UserAgent,
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit log entry ID: %w", err)
	}
	entry.ID = id

	return nil
}

// List returns one page of entries matching filter, newest first, plus the total match count
func (r *sqliteAuditRepository) List(ctx context.Context, filter models.AuditLogFilter, limit, offset int) ([]models.AuditLogEntry, int, error) {
	where, args := buildAuditWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM audit_log" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit log entries: %w", err)
	}

	query := `
		SELECT id, timestamp, method, path, status_code, response_time_ms,
		       actor_id, client_ip, user_agent, error
		FROM audit_log` + where + `
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]models.AuditLogEntry, 0, limit)
	for rows.Next() {
		var entry models.AuditLogEntry
		err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&entry.Method,
			&entry.Path,
			&entry.StatusCode,
			&entry.ResponseTimeMs,
			&entry.ActorID,
			&entry.ClientIP,
			&entry.UserAgent,
			&entry.Error,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit log entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audit log: %w", err)
	}

	return entries, total, nil
}

// Stats aggregates entries matching filter
func (r *sqliteAuditRepository) Stats(ctx context.Context, filter models.AuditLogFilter) (*models.AuditStats, error) {
	where, args := buildAuditWhere(filter)

	stats := &models.AuditStats{
		ByStatusClass: make(map[string]int),
		ByMethod:      make(map[string]int),
	}

	var avg sql.NullFloat64
	totalsQuery := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status_code >= 500 THEN 1 ELSE 0 END), 0),
		       AVG(response_time_ms)
		FROM audit_log` + where
	if err := r.db.QueryRowContext(ctx, totalsQuery, args...).Scan(&stats.Total, &stats.ErrorCount, &avg); err != nil {
		return nil, fmt.Errorf("failed to aggregate audit log: %w", err)
	}
	if avg.Valid {
		stats.AverageResponseTimeMs = avg.Float64
	}

	classQuery := `
		SELECT (status_code / 100) || 'xx', COUNT(*)
		FROM audit_log` + where + `
		GROUP BY status_code / 100
	`
	if err := r.scanCounts(ctx, classQuery, args, stats.ByStatusClass); err != nil {
		return nil, err
	}

	methodQuery := `
		SELECT method, COUNT(*)
		FROM audit_log` + where + `
		GROUP BY method
	`
	if err := r.scanCounts(ctx, methodQuery, args, stats.ByMethod); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *sqliteAuditRepository) scanCounts(ctx context.Context, query string, args []interface{}, into map[string]int) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to group audit log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan audit log group: %w", err)
		}
		into[key] = count
	}

	return rows.Err()
}

// buildAuditWhere translates filter into a WHERE clause and its arguments
func buildAuditWhere(filter models.AuditLogFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.Method != "" {
		clauses = append(clauses, "method = ?")
		args = append(args, filter.Method)
	}
	if filter.StatusCode != 0 {
		clauses = append(clauses, "status_code = ?")
		args = append(args, filter.StatusCode)
	}
	if filter.From != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.To.UTC())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
