package middleware

import (
	"context"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/blogem/devkb/models"
)

// Upper bounds, in bytes, of the stored request line and user agent
const (
	maxPathLength      = 2048
	maxUserAgentLength = 512
)

// AuditRecorder receives one entry per wrapped request
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLogEntry)
}

// newAuditEntry describes a finished request
func newAuditEntry(r *http.Request, start time.Time, status int, elapsed time.Duration, principal *models.Principal, clientIP string, failure error) *models.AuditLogEntry {
	entry := &models.AuditLogEntry{
		Timestamp:      start.UTC(),
		Method:         r.Method,
		Path:           truncate(r.URL.RequestURI(), maxPathLength),
		StatusCode:     status,
		ResponseTimeMs: elapsed.Milliseconds(),
		ClientIP:       clientIP,
		UserAgent:      truncate(r.UserAgent(), maxUserAgentLength),
	}
	if principal != nil {
		entry.ActorID = principal.ID
	}
	if failure != nil {
		entry.Error = failure.Error()
	}
	return entry
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
