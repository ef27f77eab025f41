package savedmeals

import (
	"context"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

// Repository describes CRUD operations for SavedMeal records. Items are
// persisted as a JSON column.
type Repository interface {
	Upsert(ctx context.Context, m *models.SavedMeal) error
	GetByID(ctx context.Context, id string) (*models.SavedMeal, error)
	List(ctx context.Context) ([]models.SavedMeal, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
	HardDelete(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
}
