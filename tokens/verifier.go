// Package tokens issues and verifies signed bearer credentials.
package tokens

import (
	"context"
	"errors"

	"github.com/blogem/devkb/models"
)

// ErrInvalidToken is the single rejection outcome for any malformed, expired,
// forged or foreign token.
var ErrInvalidToken = errors.New("invalid token")

// Verifier turns a raw bearer credential into a principal
type Verifier interface {
	Verify(ctx context.Context, raw string) (models.Principal, error)
}
