package credentials

import (
	"context"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

// Repository persists the token pair in the local credentials table. Both
// tokens are opaque strings; the store is the client-side equivalent of the
// platform keychain.
type Repository interface {
	// SaveTokens stores (or replaces) the token pair. Call inside a
	// transaction so access and refresh tokens never diverge.
	SaveTokens(ctx context.Context, pair models.TokenPair) error

	// Tokens returns the stored pair, or common.ErrUnauthenticated when
	// none is stored.
	Tokens(ctx context.Context) (*models.TokenPair, error)

	// Clear purges the stored pair.
	Clear(ctx context.Context) error
}
