package exercises

import (
	"context"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

// Repository describes CRUD and range queries for ExerciseEntry records.
type Repository interface {
	Upsert(ctx context.Context, e *models.ExerciseEntry) error
	GetByID(ctx context.Context, id string) (*models.ExerciseEntry, error)

	// Range returns live entries with from <= date <= to, newest first.
	Range(ctx context.Context, from, to string) ([]models.ExerciseEntry, error)

	SoftDelete(ctx context.Context, id string, at time.Time) error
	HardDelete(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
}
