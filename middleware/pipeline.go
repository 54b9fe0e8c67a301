// Package middleware holds the request pipeline that wraps API handlers
// with authentication, authorization, rate limiting and auditing, plus the
// edge Route Guard for pages.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blogem/devkb/models"
	"github.com/blogem/devkb/respond"
	"github.com/blogem/devkb/userctx"
)

// TracerName names the tracer used for request spans
const TracerName = "github.com/blogem/devkb/middleware"

// Recorded in the audit entry of early exits
var (
	errMissingCredential = errors.New("missing credential")
	errForbidden         = errors.New("forbidden")
	errRateLimited       = errors.New("rate limited")
)

// HandlerFunc is a business handler. principal is nil for anonymous callers.
// A returned error is turned into a response unless the handler already wrote one.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, principal *models.Principal) error

// HTTPError is an error with a status and a message safe to show the client
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

// NewHTTPError creates an HTTPError
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// RejectFunc writes the response for a request refused with status 401,
// 403 or 429. The default writes the JSON error envelope.
type RejectFunc func(w http.ResponseWriter, r *http.Request, status int, message string)

func rejectJSON(w http.ResponseWriter, _ *http.Request, status int, message string) {
	respond.Error(w, status, message)
}

// Options selects the policy applied to one route
type Options struct {
	RequireAuth  bool
	RequireAdmin bool
	RateLimit    *RateLimit
	// Reject replaces the JSON error body of refused requests, e.g. with an HTML page
	Reject RejectFunc
}

// PipelineConfig holds the collaborators of a Pipeline
type PipelineConfig struct {
	Resolvers      []Resolver
	Audit          AuditRecorder
	Limiter        *FixedWindowLimiter
	TrustedProxies []netip.Prefix
	Logger         *slog.Logger
	Metrics        *Metrics
	Now            func() time.Time
}

// Pipeline wraps handlers with the configured policy
type Pipeline struct {
	resolvers      []Resolver
	audit          AuditRecorder
	limiter        *FixedWindowLimiter
	trustedProxies []netip.Prefix
	logger         *slog.Logger
	metrics        *Metrics
	now            func() time.Time
	tracer         trace.Tracer
}

// NewPipeline creates a Pipeline
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewFixedWindowLimiter(cfg.Now)
	}

	return &Pipeline{
		resolvers:      cfg.Resolvers,
		audit:          cfg.Audit,
		limiter:        cfg.Limiter,
		trustedProxies: cfg.TrustedProxies,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		now:            cfg.Now,
		tracer:         otel.Tracer(TracerName),
	}
}

// Limiter returns the rate limiter so its sweep can be scheduled
func (p *Pipeline) Limiter() *FixedWindowLimiter {
	return p.limiter
}

// Wrap decorates handler with opts. Every invocation produces exactly one
// audit entry, rejected requests included.
func (p *Pipeline) Wrap(opts Options, handler HandlerFunc) http.HandlerFunc {
	if opts.RequireAdmin {
		opts.RequireAuth = true
	}
	if opts.Reject == nil {
		opts.Reject = rejectJSON
	}

	return func(w http.ResponseWriter, r *http.Request) {
		start := p.now()

		ctx, span := p.tracer.Start(r.Context(), "devkb "+r.Method+" "+routePattern(r),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()
		r = r.WithContext(ctx)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		clientIP := ClientIP(r, p.trustedProxies)

		principal, failure := p.serve(ww, r, opts, clientIP, handler)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := p.now().Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}

		span.SetAttributes(attribute.Int("http.status_code", status))
		if principal != nil {
			span.SetAttributes(attribute.String("devkb.actor_id", principal.ID))
		}
		if failure != nil {
			span.RecordError(failure)
			span.SetStatus(codes.Error, failure.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		p.metrics.ObserveRequest(routePattern(r), r.Method, status, elapsed)

		if p.audit != nil {
			p.audit.Record(r.Context(), newAuditEntry(r, start, status, elapsed, principal, clientIP, failure))
		}
	}
}

// serve runs the policy checks and the handler, returning the resolved
// principal and the failure to record, if any
func (p *Pipeline) serve(w chimw.WrapResponseWriter, r *http.Request, opts Options, clientIP string, handler HandlerFunc) (principal *models.Principal, failure error) {
	defer func() {
		if rec := recover(); rec != nil {
			failure = fmt.Errorf("panic: %v", rec)
			p.logger.Error("handler panic",
				"error", failure,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)
			if w.Status() == 0 {
				respond.Error(w, http.StatusInternalServerError, respond.MsgInternal)
			}
		}
	}()

	resolved, found, err := resolve(p.resolvers, r)
	switch {
	case err != nil && !errors.Is(err, ErrInvalidCredential):
		if opts.RequireAuth {
			p.logger.Error("failed to resolve credential", "error", err, "path", r.URL.Path)
			respond.Error(w, http.StatusInternalServerError, respond.MsgInternal)
			return nil, err
		}
		p.logger.Warn("failed to resolve credential, continuing anonymously", "error", err, "path", r.URL.Path)
	case found && err == nil:
		principal = &resolved
	}

	if opts.RequireAuth && principal == nil {
		if !found {
			p.metrics.AuthFailure(ReasonMissingCredential)
			opts.Reject(w, r, http.StatusUnauthorized, respond.MsgMissingCredential)
			return nil, errMissingCredential
		}
		p.metrics.AuthFailure(ReasonInvalidCredential)
		opts.Reject(w, r, http.StatusUnauthorized, respond.MsgInvalidCredential)
		return nil, ErrInvalidCredential
	}

	if opts.RequireAdmin && !principal.IsAdmin() {
		p.metrics.AuthFailure(ReasonForbidden)
		opts.Reject(w, r, http.StatusForbidden, respond.MsgForbidden)
		return principal, errForbidden
	}

	if opts.RateLimit != nil {
		key := rateLimitKey(opts.RateLimit.scope(routePattern(r)), principal, clientIP)
		if ok, retryAfter := p.limiter.Allow(key, *opts.RateLimit); !ok {
			p.metrics.AuthFailure(ReasonRateLimited)
			w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
			opts.Reject(w, r, http.StatusTooManyRequests, respond.MsgRateLimited)
			return principal, errRateLimited
		}
	}

	if principal != nil {
		r = r.WithContext(userctx.SetPrincipal(r.Context(), *principal))
	}

	if err := handler(w, r, principal); err != nil {
		p.writeError(w, r, err)
		return principal, err
	}
	return principal, nil
}

// writeError maps a handler error to a response unless one was already written.
// HTTPErrors are shown as-is for 4xx and 503; other server errors stay generic.
func (p *Pipeline) writeError(w chimw.WrapResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	var validationErrs models.ValidationErrors

	switch {
	case errors.As(err, &httpErr) && publicStatus(httpErr.Status):
		if w.Status() == 0 {
			respond.Error(w, httpErr.Status, httpErr.Message)
		}
	case errors.As(err, &validationErrs):
		if w.Status() == 0 {
			respond.ValidationFailed(w, validationErrs)
		}
	default:
		p.logger.Error("handler failed", "error", err, "method", r.Method, "path", r.URL.Path)
		if w.Status() == 0 {
			respond.Error(w, http.StatusInternalServerError, respond.MsgInternal)
		}
	}
}

func publicStatus(status int) bool {
	return status < http.StatusInternalServerError || status == http.StatusServiceUnavailable
}

// routePattern labels metrics with the chi route pattern to keep cardinality bounded
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
