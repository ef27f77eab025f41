package weights

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/common"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, store.RunMigrations(context.Background(), db))
	return db
}

func weighIn(id, date string, kg float64) *models.WeightEntry {
	w := &models.WeightEntry{ID: id, Date: date, Kilograms: kg}
	w.CreatedAt = time.Unix(1700000000, 0).UTC()
	w.UpdatedAt = w.CreatedAt
	w.State = models.SyncStateLive
	return w
}

func TestRange_NewestFirstWithinBounds(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, weighIn("w1", "2026-08-01", 82.4)))
	require.NoError(t, r.Upsert(ctx, weighIn("w2", "2026-08-15", 81.9)))
	require.NoError(t, r.Upsert(ctx, weighIn("w3", "2026-09-01", 81.2)))

	got, err := r.Range(ctx, "2026-08-01", "2026-08-31")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "w2", got[0].ID)
	assert.Equal(t, "w1", got[1].ID)
}

func TestSoftDelete_ExcludedFromRange(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, weighIn("w1", "2026-08-01", 82.4)))
	require.NoError(t, r.SoftDelete(ctx, "w1", time.Now()))

	got, err := r.Range(ctx, "2026-08-01", "2026-08-31")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = r.GetByID(ctx, "w1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpsert_UpdatesExistingRow(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	w := weighIn("w1", "2026-08-01", 82.4)
	require.NoError(t, r.Upsert(ctx, w))

	w.Kilograms = 82.0
	w.Note = "after run"
	require.NoError(t, r.Upsert(ctx, w))

	got, err := r.GetByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 82.0, got.Kilograms)
	assert.Equal(t, "after run", got.Note)
}
