package userctx

import (
	"context"

	"github.com/blogem/devkb/models"
)

// Context key type
type contextKey string

const principalKey contextKey = "principal"

// SetPrincipal adds the authenticated principal to the request context
func SetPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the principal from the request context
func GetPrincipal(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}
