package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avasiliev/kaltrack/internal/client/gateway"
	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/diary"
	"github.com/avasiliev/kaltrack/internal/client/repositories/outbox"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/client/syncer"
	"github.com/avasiliev/kaltrack/internal/common"
	"github.com/avasiliev/kaltrack/internal/logging"

	_ "modernc.org/sqlite"
)

func testLogger() logging.Logger {
	return logging.Nop()
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// fakeGateway covers the endpoints these scenarios touch; everything else
// stays on the embedded nil interface.
type fakeGateway struct {
	gateway.Gateway

	day        *gateway.DiaryDayPayload
	exportData []byte
}

func (f *fakeGateway) CreateFood(ctx context.Context, food models.Food) error       { return nil }
func (f *fakeGateway) CreateDiaryEntry(ctx context.Context, e models.DiaryEntry) error { return nil }

func (f *fakeGateway) CreateRecipe(ctx context.Context, r models.Recipe) error         { return nil }
func (f *fakeGateway) CreateWeightEntry(ctx context.Context, w models.WeightEntry) error { return nil }

func (f *fakeGateway) DiaryDay(ctx context.Context, date string) (*gateway.DiaryDayPayload, error) {
	return f.day, nil
}

func (f *fakeGateway) ExportData(ctx context.Context) ([]byte, error) {
	return f.exportData, nil
}

func TestSaveFood_ThenDrain_EndsSynced(t *testing.T) {
	st := newStore(t)
	gw := &fakeGateway{}
	svc := NewFoodsService(st, gw, testLogger(), nil)
	ctx := context.Background()

	f, err := svc.Save(ctx, models.Food{Name: "rolled oats", Calories: 150})
	require.NoError(t, err)
	require.NotEmpty(t, f.ID)

	// The mutation and its outbox entry committed together.
	e, err := outbox.New(st.DB()).ActiveForEntity(ctx, models.EntityFood, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, e.Operation)

	rep, err := syncer.NewDrainer(st, gw, testLogger(), 3).DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Completed)

	got, err := svc.Get(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SyncedAt)
	assert.Equal(t, models.SyncStateLive, got.State)
}

func TestSaveDiaryEntry_OfflineEditsCoalesce(t *testing.T) {
	st := newStore(t)
	svc := NewDiaryService(st, &fakeGateway{}, testLogger(), nil)
	ctx := context.Background()

	e, err := svc.SaveEntry(ctx, models.DiaryEntry{
		Date: "2026-08-28", Meal: models.MealLunch, Quantity: 1, Unit: "serving", Calories: 500,
	})
	require.NoError(t, err)

	e.Quantity = 2
	e.Calories = 1000
	_, err = svc.SaveEntry(ctx, e)
	require.NoError(t, err)

	// One active entry, still a create, carrying the second snapshot.
	ob, err := outbox.New(st.DB()).ActiveForEntity(ctx, models.EntityDiary, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, ob.Operation)

	var snap models.DiaryEntry
	require.NoError(t, json.Unmarshal(ob.Payload, &snap))
	assert.Equal(t, 2.0, snap.Quantity)
	assert.Equal(t, 1000.0, snap.Calories)

	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestDeleteFood_CancelsUnsyncedCreate(t *testing.T) {
	st := newStore(t)
	svc := NewFoodsService(st, &fakeGateway{}, testLogger(), nil)
	ctx := context.Background()

	f, err := svc.Save(ctx, models.Food{Name: "typo food"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, f.ID))

	// Create and delete annihilated: no queue entry, no local row.
	_, err = outbox.New(st.DB()).ActiveForEntity(ctx, models.EntityFood, f.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM foods`).Scan(&n))
	assert.Zero(t, n)
}

func TestDeleteFood_SyncedRowStaysUntilConfirmed(t *testing.T) {
	st := newStore(t)
	gw := &fakeGateway{}
	svc := NewFoodsService(st, gw, testLogger(), nil)
	ctx := context.Background()

	f, err := svc.Save(ctx, models.Food{Name: "banana"})
	require.NoError(t, err)

	// Drain so the create is confirmed before the delete arrives.
	_, err = syncer.NewDrainer(st, gw, testLogger(), 3).DrainOnce(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, f.ID))

	e, err := outbox.New(st.DB()).ActiveForEntity(ctx, models.EntityFood, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpDelete, e.Operation)

	// Hidden from reads, still physically present.
	_, err = svc.Get(ctx, f.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM foods`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestDiaryRefresh_ServerWinsExceptPendingMutations(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	date := "2026-08-28"

	// "a" is synced locally; the server has a newer version of it.
	// "d" is synced locally but gone on the server.
	repo := diary.New(st.DB())
	for _, id := range []string{"a", "d"} {
		e := &models.DiaryEntry{ID: id, Date: date, Meal: models.MealLunch, Calories: 100}
		e.State = models.SyncStateLive
		require.NoError(t, repo.UpsertEntry(ctx, e))
	}

	gw := &fakeGateway{day: &gateway.DiaryDayPayload{
		Date:      date,
		Completed: true,
		Entries: []models.DiaryEntry{
			{ID: "a", Date: date, Meal: models.MealLunch, Calories: 250},
			{ID: "c", Date: date, Meal: models.MealDinner, Calories: 600},
		},
	}}
	svc := NewDiaryService(st, gw, testLogger(), nil)

	// "b" has a queued local mutation and must survive the reconcile.
	b, err := svc.SaveEntry(ctx, models.DiaryEntry{Date: date, Meal: models.MealSnack, Calories: 50})
	require.NoError(t, err)

	require.NoError(t, svc.Refresh(ctx, date))

	sum, err := svc.Day(ctx, date)
	require.NoError(t, err)
	assert.True(t, sum.Completed)

	byID := map[string]models.DiaryEntry{}
	for _, e := range sum.Entries {
		byID[e.ID] = e
	}
	require.Len(t, byID, 3)
	assert.Equal(t, 250.0, byID["a"].Calories) // server version won
	assert.Equal(t, 600.0, byID["c"].Calories) // new from server
	assert.Equal(t, 50.0, byID[b.ID].Calories) // pending local mutation kept
	_, dPresent := byID["d"]
	assert.False(t, dPresent, "entry deleted on the server must be removed")

	require.NotNil(t, byID["a"].SyncedAt)
}

func TestDaySummary_Totals(t *testing.T) {
	st := newStore(t)
	svc := NewDiaryService(st, &fakeGateway{}, testLogger(), nil)
	ctx := context.Background()

	for _, cal := range []float64{300, 500, 200} {
		_, err := svc.SaveEntry(ctx, models.DiaryEntry{
			Date: "2026-08-28", Meal: models.MealSnack,
			Calories: cal, Protein: 10, Carbs: 20, Fat: 5,
		})
		require.NoError(t, err)
	}

	sum, err := svc.Day(ctx, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, sum.Calories)
	assert.Equal(t, 30.0, sum.Protein)
	assert.Equal(t, 60.0, sum.Carbs)
	assert.Equal(t, 15.0, sum.Fat)
}

func TestExportData_WritesFile(t *testing.T) {
	st := newStore(t)
	gw := &fakeGateway{exportData: []byte(`{"foods":[]}`)}
	svc := NewProfileService(st, gw, nil, testLogger(), nil)

	dir := t.TempDir()
	path, err := svc.ExportData(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"foods":[]}`, string(data))
}

func TestSaveRecipe_ThenDrain_EndsSynced(t *testing.T) {
	st := newStore(t)
	gw := &fakeGateway{}
	svc := NewRecipesService(st, testLogger(), nil)
	ctx := context.Background()

	r, err := svc.Save(ctx, models.Recipe{
		Name:     "overnight oats",
		Servings: 2,
		Ingredients: []models.RecipeIngredient{
			{FoodID: "oats", Quantity: 80, Unit: "g"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)

	e, err := outbox.New(st.DB()).ActiveForEntity(ctx, models.EntityRecipe, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, e.Operation)

	rep, err := syncer.NewDrainer(st, gw, testLogger(), 3).DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Completed)

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SyncedAt)
	assert.Len(t, got.Ingredients, 1)
}

func TestDeleteSavedMeal_CancelsUnsyncedCreate(t *testing.T) {
	st := newStore(t)
	svc := NewSavedMealsService(st, testLogger(), nil)
	ctx := context.Background()

	m, err := svc.Save(ctx, models.SavedMeal{
		Name:  "usual breakfast",
		Items: []models.SavedMealItem{{FoodID: "oats", Quantity: 40, Unit: "g"}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, m.ID))

	_, err = outbox.New(st.DB()).ActiveForEntity(ctx, models.EntitySavedMeal, m.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	var n int
	require.NoError(t, st.DB().QueryRow(`SELECT COUNT(*) FROM saved_meals`).Scan(&n))
	assert.Zero(t, n)
}

func TestSaveWeight_ThenDrain_EndsSynced(t *testing.T) {
	st := newStore(t)
	gw := &fakeGateway{}
	svc := NewJournalService(st, gw, testLogger(), nil)
	ctx := context.Background()

	w, err := svc.SaveWeight(ctx, models.WeightEntry{Date: "2026-08-28", Kilograms: 81.4})
	require.NoError(t, err)
	require.NotEmpty(t, w.ID)

	rep, err := syncer.NewDrainer(st, gw, testLogger(), 3).DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Completed)

	entries, err := svc.WeightRange(ctx, "2026-08-01", "2026-08-31")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].SyncedAt)
	assert.Equal(t, 81.4, entries[0].Kilograms)
}

func TestSaveExercise_OfflineEditsCoalesce(t *testing.T) {
	st := newStore(t)
	svc := NewJournalService(st, &fakeGateway{}, testLogger(), nil)
	ctx := context.Background()

	e, err := svc.SaveExercise(ctx, models.ExerciseEntry{
		Date: "2026-08-28", Name: "running", DurationMin: 20, CaloriesBurned: 200,
	})
	require.NoError(t, err)

	e.DurationMin = 45
	e.CaloriesBurned = 450
	_, err = svc.SaveExercise(ctx, e)
	require.NoError(t, err)

	// One active entry, still a create, carrying the second snapshot.
	ob, err := outbox.New(st.DB()).ActiveForEntity(ctx, models.EntityExercise, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, ob.Operation)

	var snap models.ExerciseEntry
	require.NoError(t, json.Unmarshal(ob.Payload, &snap))
	assert.Equal(t, 45, snap.DurationMin)
	assert.Equal(t, 450.0, snap.CaloriesBurned)
}
