package models

import (
	"strings"
	"time"
)

// AuditLogEntry represents a single handled HTTP request
type AuditLogEntry struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	StatusCode     int       `json:"status_code"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	ActorID        string    `json:"actor_id,omitempty"`
	ClientIP       string    `json:"client_ip"`
	UserAgent      string    `json:"user_agent"`
	Error          string    `json:"error,omitempty"`
}

// AuditLogFilter narrows audit log reads. Zero values match everything.
type AuditLogFilter struct {
	Method     string
	StatusCode int
	From       *time.Time
	To         *time.Time
}

// Validate checks the filter for inconsistent values
func (f AuditLogFilter) Validate() ValidationErrors {
	var errs ValidationErrors

	if f.Method != "" && strings.ToUpper(f.Method) != f.Method {
		errs = append(errs, ValidationError{Field: "method", Message: "Method must be upper case"})
	}
	if f.StatusCode != 0 && (f.StatusCode < 100 || f.StatusCode > 599) {
		errs = append(errs, ValidationError{Field: "status", Message: "Status must be between 100 and 599"})
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		errs = append(errs, ValidationError{Field: "from", Message: "From must not be after to"})
	}

	return errs
}

// AuditStats summarises audit log entries for the admin statistics view
type AuditStats struct {
	Total                 int            `json:"total"`
	ErrorCount            int            `json:"error_count"`
	AverageResponseTimeMs float64        `json:"average_response_time_ms"`
	ByStatusClass         map[string]int `json:"by_status_class"`
	ByMethod              map[string]int `json:"by_method"`
}
