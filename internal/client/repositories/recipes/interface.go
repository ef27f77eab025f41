package recipes

import (
	"context"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

// Repository describes CRUD operations for Recipe records. Ingredients are
// persisted as a JSON column; there is no foreign key to foods.
type Repository interface {
	Upsert(ctx context.Context, rec *models.Recipe) error
	GetByID(ctx context.Context, id string) (*models.Recipe, error)
	List(ctx context.Context) ([]models.Recipe, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
	HardDelete(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
}
