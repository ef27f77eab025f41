package recipes

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

func sampleRecipe(id string) *models.Recipe {
	r := &models.Recipe{
		ID:       id,
		Name:     "overnight oats",
		Servings: 2,
		Ingredients: []models.RecipeIngredient{
			{FoodID: "oats", Quantity: 80, Unit: "g"},
			{FoodID: "milk", Quantity: 200, Unit: "ml"},
		},
	}
	r.CreatedAt = time.Unix(1700000000, 0).UTC()
	r.UpdatedAt = r.CreatedAt
	r.State = models.SyncStateLive
	return r
}

func TestUpsert_RoundTripsIngredients(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, sampleRecipe("r1")))

	got, err := r.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "overnight oats", got.Name)
	require.Len(t, got.Ingredients, 2)
	assert.Equal(t, "milk", got.Ingredients[1].FoodID)
	assert.Equal(t, 200.0, got.Ingredients[1].Quantity)

	rec := sampleRecipe("r1")
	rec.Ingredients = rec.Ingredients[:1]
	require.NoError(t, r.Upsert(ctx, rec))

	got, err = r.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, got.Ingredients, 1)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM recipes`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestGetByID_NotFound(t *testing.T) {
	_, err := New(setupDB(t)).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSoftDelete_HidesFromList(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, sampleRecipe("r1")))
	require.NoError(t, r.Upsert(ctx, sampleRecipe("r2")))
	require.NoError(t, r.SoftDelete(ctx, "r1", time.Now()))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "r2", list[0].ID)

	// The row itself survives until the remote delete is confirmed.
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM recipes`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestMarkSyncedAndHardDelete(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, sampleRecipe("r1")))

	at := time.Unix(1700001234, 0).UTC()
	require.NoError(t, r.MarkSynced(ctx, "r1", at))
	got, err := r.GetByID(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got.SyncedAt)
	assert.Equal(t, at, got.SyncedAt.UTC())

	require.NoError(t, r.HardDelete(ctx, "r1"))
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM recipes`).Scan(&n))
	assert.Zero(t, n)
}
