package foods

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

func sampleFood(id string) *models.Food {
	f := &models.Food{
		ID:          id,
		Name:        "rolled oats",
		Brand:       "Acme",
		Barcode:     "0123456789012",
		ServingSize: 40,
		ServingUnit: "g",
		Calories:    150,
		Protein:     5,
		Carbs:       27,
		Fat:         2.5,
	}
	f.CreatedAt = time.Unix(1700000000, 0).UTC()
	f.UpdatedAt = f.CreatedAt
	f.State = models.SyncStateLive
	return f
}

func TestUpsert_InsertAndUpdate(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	f := sampleFood("f1")
	require.NoError(t, r.Upsert(ctx, f))

	got, err := r.GetByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "rolled oats", got.Name)
	assert.Equal(t, 150.0, got.Calories)
	assert.Nil(t, got.SyncedAt)

	f.Name = "steel-cut oats"
	f.Calories = 160
	require.NoError(t, r.Upsert(ctx, f))

	got, err = r.GetByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "steel-cut oats", got.Name)
	assert.Equal(t, 160.0, got.Calories)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM foods`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestGetByID_NotFound(t *testing.T) {
	r := New(setupDB(t))

	_, err := r.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSoftDelete_HidesFromQueries(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, sampleFood("f1")))
	require.NoError(t, r.SoftDelete(ctx, "f1", time.Now()))

	_, err := r.GetByID(ctx, "f1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	// The row itself survives until the remote delete is confirmed.
	var state string
	require.NoError(t, db.QueryRow(`SELECT state FROM foods WHERE id='f1'`).Scan(&state))
	assert.Equal(t, string(models.SyncStatePendingDelete), state)
}

func TestSoftDelete_MissingRowErrors(t *testing.T) {
	r := New(setupDB(t))
	assert.Error(t, r.SoftDelete(context.Background(), "missing", time.Now()))
}

func TestFindByBarcode(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, sampleFood("f1")))

	got, err := r.FindByBarcode(ctx, "0123456789012")
	require.NoError(t, err)
	assert.Equal(t, "f1", got.ID)

	_, err = r.FindByBarcode(ctx, "9999999999999")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMarkSynced(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, sampleFood("f1")))

	at := time.Unix(1700001234, 0).UTC()
	require.NoError(t, r.MarkSynced(ctx, "f1", at))

	got, err := r.GetByID(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, got.SyncedAt)
	assert.Equal(t, at, got.SyncedAt.UTC())
}

func TestHardDelete(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, sampleFood("f1")))
	require.NoError(t, r.HardDelete(ctx, "f1"))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM foods`).Scan(&n))
	assert.Zero(t, n)
}
