package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
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

func TestEnqueue_InsertsPending(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	e, err := r.Enqueue(ctx, models.EntityFood, "f1", models.OpCreate, json.RawMessage(`{"id":"f1"}`))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, models.OutboxPending, e.Status)
	assert.False(t, e.Dispatched)

	got, err := r.ActiveForEntity(ctx, models.EntityFood, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, got.Operation)
	assert.JSONEq(t, `{"id":"f1"}`, string(got.Payload))
}

func TestEnqueue_CoalescesUpdateIntoPendingCreate(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	_, err := r.Enqueue(ctx, models.EntityFood, "f1", models.OpCreate, json.RawMessage(`{"v":1}`))
	require.NoError(t, err)

	e, err := r.Enqueue(ctx, models.EntityFood, "f1", models.OpUpdate, json.RawMessage(`{"v":2}`))
	require.NoError(t, err)
	require.NotNil(t, e)

	// The server never saw the create, so the folded entry must still be a
	// create carrying the latest snapshot.
	assert.Equal(t, models.OpCreate, e.Operation)
	assert.JSONEq(t, `{"v":2}`, string(e.Payload))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestEnqueue_DeleteCancelsUndispatchedCreate(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	_, err := r.Enqueue(ctx, models.EntityRecipe, "r1", models.OpCreate, json.RawMessage(`{}`))
	require.NoError(t, err)

	e, err := r.Enqueue(ctx, models.EntityRecipe, "r1", models.OpDelete, nil)
	require.NoError(t, err)
	assert.Nil(t, e)

	_, err = r.ActiveForEntity(ctx, models.EntityRecipe, "r1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestEnqueue_DeleteSupersedesDispatchedCreate(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	e, err := r.Enqueue(ctx, models.EntityFood, "f1", models.OpCreate, json.RawMessage(`{}`))
	require.NoError(t, err)

	ok, err := r.MarkInProgress(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Entry went out once; the delete must replace it, not cancel it.
	got, err := r.Enqueue(ctx, models.EntityFood, "f1", models.OpDelete, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.OpDelete, got.Operation)
	assert.Nil(t, got.Payload)
	assert.Equal(t, models.OutboxPending, got.Status)
}

func TestEnqueue_CoalesceResetsRetryBookkeeping(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	e, err := r.Enqueue(ctx, models.EntityWeight, "w1", models.OpCreate, json.RawMessage(`{"v":1}`))
	require.NoError(t, err)

	ok, err := r.MarkInProgress(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.Retry(ctx, e.ID, "boom", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	got, err := r.Enqueue(ctx, models.EntityWeight, "w1", models.OpUpdate, json.RawMessage(`{"v":2}`))
	require.NoError(t, err)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.LastError)

	// Reset next_attempt_at makes the entry immediately due again.
	due, err := r.Due(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, e.ID, due[0].ID)
}

func TestActiveUniqueIndex_SecondInsertRejected(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := New(db).Enqueue(ctx, models.EntityFood, "f1", models.OpCreate, json.RawMessage(`{}`))
	require.NoError(t, err)

	// Bypassing Enqueue's coalescing must hit the partial unique index.
	_, err = db.ExecContext(ctx, `
		INSERT INTO outbox (entity_type, entity_id, operation, payload, status, created_at)
		VALUES ('food', 'f1', 'update', '{}', 'pending', 0)`)
	assert.Error(t, err)
}

func TestDue_OrderedOldestFirstAndGatedByNextAttempt(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	a, err := r.Enqueue(ctx, models.EntityFood, "a", models.OpCreate, json.RawMessage(`{}`))
	require.NoError(t, err)
	b, err := r.Enqueue(ctx, models.EntityFood, "b", models.OpCreate, json.RawMessage(`{}`))
	require.NoError(t, err)

	// Push b into the future.
	ok, err := r.MarkInProgress(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.Retry(ctx, b.ID, "later", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	due, err := r.Due(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, a.ID, due[0].ID)

	due, err = r.Due(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, a.ID, due[0].ID)
	assert.Equal(t, b.ID, due[1].ID)
}

func TestTransitions_GuardedByDepartingStatus(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	e, err := r.Enqueue(ctx, models.EntityFood, "f1", models.OpCreate, json.RawMessage(`{"v":1}`))
	require.NoError(t, err)

	// Completing a pending entry must be a no-op.
	ok, err := r.Complete(ctx, e.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.MarkInProgress(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// Coalescing while the dispatch is in flight moves the entry back to
	// pending; the stale dispatch's Complete must then lose.
	_, err = r.Enqueue(ctx, models.EntityFood, "f1", models.OpUpdate, json.RawMessage(`{"v":2}`))
	require.NoError(t, err)

	ok, err = r.Complete(ctx, e.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.ActiveForEntity(ctx, models.EntityFood, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.OutboxPending, got.Status)
	assert.JSONEq(t, `{"v":2}`, string(got.Payload))
}

func TestReclaimInProgress(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	e, err := r.Enqueue(ctx, models.EntityFood, "f1", models.OpCreate, json.RawMessage(`{}`))
	require.NoError(t, err)
	ok, err := r.MarkInProgress(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := r.ReclaimInProgress(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := r.ActiveForEntity(ctx, models.EntityFood, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.OutboxPending, got.Status)
	// The dispatched flag survives the reclaim: the entry may have reached
	// the server before the crash.
	assert.True(t, got.Dispatched)
}

func TestFail_RecordsCauseAndCounts(t *testing.T) {
	db := setupDB(t)
	r := New(db)
	ctx := context.Background()

	e, err := r.Enqueue(ctx, models.EntityFood, "f1", models.OpCreate, json.RawMessage(`{}`))
	require.NoError(t, err)
	ok, err := r.MarkInProgress(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = r.Fail(ctx, e.ID, "validation rejected", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	failed, err := r.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "validation rejected", failed[0].LastError)

	counts, err := r.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.OutboxFailed])
}

func TestGet_ReturnsCurrentRow(t *testing.T) {
	r := New(setupDB(t))
	ctx := context.Background()

	e, err := r.Enqueue(ctx, models.EntityFood, "f1", models.OpCreate, json.RawMessage(`{"v":1}`))
	require.NoError(t, err)

	// A coalesce after the insert must be visible through Get.
	_, err = r.Enqueue(ctx, models.EntityFood, "f1", models.OpUpdate, json.RawMessage(`{"v":2}`))
	require.NoError(t, err)

	got, err := r.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OpCreate, got.Operation)
	assert.JSONEq(t, `{"v":2}`, string(got.Payload))

	_, err = r.Get(ctx, e.ID+99)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
