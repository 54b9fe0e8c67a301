package controllers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blogem/devkb/models"
	"github.com/blogem/devkb/respond"
	"github.com/blogem/devkb/services"
)

// AdminController serves the audit log to administrators
type AdminController struct {
	services *services.Services
}

// NewAdminController creates a new admin controller
func NewAdminController(services *services.Services) *AdminController {
	return &AdminController{
		services: services,
	}
}

// Logs handles GET /api/admin/logs
func (c *AdminController) Logs(w http.ResponseWriter, r *http.Request, _ *models.Principal) error {
	query := r.URL.Query()
	filter, errs := parseAuditFilter(query)
	page := parseIntParam(query, "page", &errs)
	limit := parseIntParam(query, "limit", &errs)
	if errs.HasErrors() {
		return errs
	}

	entries, pagination, err := c.services.Audit.List(r.Context(), filter, page, limit)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []models.AuditLogEntry{}
	}

	respond.Paginated(w, entries, pagination)
	return nil
}

// Stats handles GET /api/admin/stats
func (c *AdminController) Stats(w http.ResponseWriter, r *http.Request, _ *models.Principal) error {
	filter, errs := parseAuditFilter(r.URL.Query())
	if errs.HasErrors() {
		return errs
	}

	stats, err := c.services.Audit.Stats(r.Context(), filter)
	if err != nil {
		return err
	}

	respond.Success(w, stats)
	return nil
}

// parseAuditFilter reads method, status, from and to. A bare date in "to"
// covers that whole day.
func parseAuditFilter(query url.Values) (models.AuditLogFilter, models.ValidationErrors) {
	var filter models.AuditLogFilter
	var errs models.ValidationErrors

	filter.Method = strings.ToUpper(strings.TrimSpace(query.Get("method")))
	filter.StatusCode = parseIntParam(query, "status", &errs)

	if from, ok := parseTimeParam(query, "from", false, &errs); ok {
		filter.From = &from
	}
	if to, ok := parseTimeParam(query, "to", true, &errs); ok {
		filter.To = &to
	}

	return filter, errs
}

func parseIntParam(query url.Values, key string, errs *models.ValidationErrors) int {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, models.ValidationError{Field: key, Message: key + " must be an integer"})
		return 0
	}
	return n
}

func parseTimeParam(query url.Values, key string, endOfDay bool, errs *models.ValidationErrors) (time.Time, bool) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := models.ParseDate(raw); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, true
	}
	*errs = append(*errs, models.ValidationError{Field: key, Message: key + " must be RFC3339 or YYYY-MM-DD"})
	return time.Time{}, false
}
