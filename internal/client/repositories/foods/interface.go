package foods

import (
	"context"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

// Repository describes CRUD and query operations for Food records backed by
// the local SQLite store. Soft-deleted rows are excluded from all domain
// queries but stay in the table until the remote delete is confirmed.
type Repository interface {
	// Upsert inserts a new food or updates an existing one by id.
	Upsert(ctx context.Context, f *models.Food) error

	// GetByID returns a live food by its identifier.
	GetByID(ctx context.Context, id string) (*models.Food, error)

	// List returns all live foods ordered by name.
	List(ctx context.Context) ([]models.Food, error)

	// FindByBarcode returns the live food carrying the given barcode.
	FindByBarcode(ctx context.Context, code string) (*models.Food, error)

	// SoftDelete marks a food pending deletion.
	SoftDelete(ctx context.Context, id string, at time.Time) error

	// HardDelete physically removes a row once the remote delete is
	// confirmed (or was never needed).
	HardDelete(ctx context.Context, id string) error

	// MarkSynced records the time of the last confirmed remote sync.
	MarkSynced(ctx context.Context, id string, at time.Time) error
}
