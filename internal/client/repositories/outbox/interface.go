package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

// Repository manages the outbox table: the durable record of local mutations
// not yet confirmed by the backend.
//
// Status transitions on individual entries are guarded by the status they
// depart from, so a coalescing Enqueue that races with an in-flight dispatch
// wins: the stale dispatch's terminal transition simply affects zero rows.
type Repository interface {
	// Enqueue records intent to replicate a mutation, coalescing with any
	// active (pending/in_progress) entry for the same entity. A delete
	// supersedes a queued create/update; a delete against a create that was
	// never dispatched cancels both, in which case Enqueue returns a nil
	// entry and the caller should hard-delete the local record.
	Enqueue(ctx context.Context, entityType models.EntityType, entityID string, op models.Operation, payload json.RawMessage) (*models.OutboxEntry, error)

	// Get returns the entry with the given id, or common.ErrNotFound.
	Get(ctx context.Context, id int64) (*models.OutboxEntry, error)

	// Due returns pending entries eligible at now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]models.OutboxEntry, error)

	// ActiveForEntity returns the pending/in_progress entry for the entity,
	// or common.ErrNotFound.
	ActiveForEntity(ctx context.Context, entityType models.EntityType, entityID string) (*models.OutboxEntry, error)

	// MarkInProgress claims a pending entry for dispatch and sets its
	// dispatched flag. Returns false if the entry is no longer pending.
	MarkInProgress(ctx context.Context, id int64) (bool, error)

	// Complete retires an in_progress entry. Returns false if the entry was
	// coalesced back to pending while the dispatch was in flight.
	Complete(ctx context.Context, id int64, at time.Time) (bool, error)

	// Retry returns an in_progress entry to pending after a transient
	// failure, recording the error and the next attempt time.
	Retry(ctx context.Context, id int64, cause string, nextAttempt time.Time) (bool, error)

	// Fail marks an in_progress entry permanently failed.
	Fail(ctx context.Context, id int64, cause string, at time.Time) (bool, error)

	// ReclaimInProgress returns entries stranded in_progress by a crashed or
	// cancelled drain to pending. Returns the number of reclaimed entries.
	ReclaimInProgress(ctx context.Context) (int64, error)

	// Failed lists permanently failed entries for user-visible diagnostics.
	Failed(ctx context.Context) ([]models.OutboxEntry, error)

	// CountByStatus reports how many entries sit in each status.
	CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error)
}
