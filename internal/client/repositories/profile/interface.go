package profile

import (
	"context"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

// Repository stores the single user profile row.
type Repository interface {
	Upsert(ctx context.Context, p *models.Profile) error

	// Get returns the stored profile, or common.ErrNotFound before the
	// first login pull.
	Get(ctx context.Context) (*models.Profile, error)

	MarkSynced(ctx context.Context, id string, at time.Time) error

	// Clear removes the profile row (logout, account deletion).
	Clear(ctx context.Context) error
}
