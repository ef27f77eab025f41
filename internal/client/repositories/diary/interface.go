package diary

import (
	"context"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

// Repository stores diary entries and per-day completion state. Dates are
// YYYY-MM-DD strings, which makes range queries plain lexicographic scans.
type Repository interface {
	UpsertEntry(ctx context.Context, e *models.DiaryEntry) error
	GetEntry(ctx context.Context, id string) (*models.DiaryEntry, error)

	// EntriesForDate returns the live entries of one day in meal order.
	EntriesForDate(ctx context.Context, date string) ([]models.DiaryEntry, error)

	// EntriesForRange returns live entries with from <= date <= to.
	EntriesForRange(ctx context.Context, from, to string) ([]models.DiaryEntry, error)

	SoftDeleteEntry(ctx context.Context, id string, at time.Time) error
	HardDeleteEntry(ctx context.Context, id string) error
	MarkEntrySynced(ctx context.Context, id string, at time.Time) error

	// UpsertDay stores the completion toggle for a date.
	UpsertDay(ctx context.Context, d *models.DiaryDay) error
	GetDay(ctx context.Context, date string) (*models.DiaryDay, error)
	MarkDaySynced(ctx context.Context, date string, at time.Time) error
}
