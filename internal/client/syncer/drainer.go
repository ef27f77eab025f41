// Package syncer replicates local mutations to the backend. The Drainer
// works through the outbox one entry at a time; the Orchestrator decides
// when a drain runs and guarantees at most one is in flight.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/avasiliev/kaltrack/internal/client/gateway"
	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/diary"
	"github.com/avasiliev/kaltrack/internal/client/repositories/exercises"
	"github.com/avasiliev/kaltrack/internal/client/repositories/foods"
	"github.com/avasiliev/kaltrack/internal/client/repositories/outbox"
	"github.com/avasiliev/kaltrack/internal/client/repositories/profile"
	"github.com/avasiliev/kaltrack/internal/client/repositories/recipes"
	"github.com/avasiliev/kaltrack/internal/client/repositories/savedmeals"
	"github.com/avasiliev/kaltrack/internal/client/repositories/weights"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/common"
	"github.com/avasiliev/kaltrack/internal/dbx"
	"github.com/avasiliev/kaltrack/internal/logging"
)

const defaultBatchSize = 50

// Report summarizes one drain pass.
type Report struct {
	Reclaimed int64
	Completed int
	Retried   int
	Failed    int
}

// Drainer dispatches due outbox entries to the gateway and records the
// outcome. Entries are processed oldest first so dependent mutations for
// different entities replay in the order they were made.
type Drainer struct {
	st         *store.Store
	gw         gateway.Gateway
	log        logging.Logger
	maxRetries int
	batchSize  int
	now        func() time.Time
}

// NewDrainer returns a drainer. maxRetries bounds transient retries per
// entry before it is marked failed.
func NewDrainer(st *store.Store, gw gateway.Gateway, log logging.Logger, maxRetries int) *Drainer {
	return &Drainer{
		st:         st,
		gw:         gw,
		log:        log,
		maxRetries: maxRetries,
		batchSize:  defaultBatchSize,
		now:        time.Now,
	}
}

// DrainOnce reclaims entries stranded in_progress by an earlier crash, then
// dispatches every due entry. A failure on one entry never blocks the rest;
// only an authentication failure aborts the pass, since every subsequent
// dispatch would fail the same way.
func (d *Drainer) DrainOnce(ctx context.Context) (Report, error) {
	var rep Report

	err := d.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := outbox.New(tx).ReclaimInProgress(ctx)
		rep.Reclaimed = n
		return err
	}, outbox.Table)
	if err != nil {
		return rep, fmt.Errorf("reclaim outbox: %w", err)
	}
	if rep.Reclaimed > 0 {
		d.log.Info(ctx, "reclaimed stranded outbox entries", "count", rep.Reclaimed)
	}

	for {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		due, err := outbox.New(d.st.DB()).Due(ctx, d.now(), d.batchSize)
		if err != nil {
			return rep, fmt.Errorf("select due entries: %w", err)
		}
		if len(due) == 0 {
			return rep, nil
		}

		for _, entry := range due {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			if err := d.process(ctx, entry, &rep); err != nil {
				return rep, err
			}
		}
	}
}

// QueueCounts reports how many outbox entries sit in each status.
func (d *Drainer) QueueCounts(ctx context.Context) (map[models.OutboxStatus]int, error) {
	return outbox.New(d.st.DB()).CountByStatus(ctx)
}

// FailedEntries lists permanently failed mutations for display.
func (d *Drainer) FailedEntries(ctx context.Context) ([]models.OutboxEntry, error) {
	return outbox.New(d.st.DB()).Failed(ctx)
}

func (d *Drainer) process(ctx context.Context, entry models.OutboxEntry, rep *Report) error {
	// A coalescing Enqueue can land between the Due scan and the claim, so
	// the scanned snapshot may be stale. Re-read the row inside the claim
	// transaction and dispatch the state it holds at claim time.
	var claimed *models.OutboxEntry
	err := d.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		ob := outbox.New(tx)
		ok, err := ob.MarkInProgress(ctx, entry.ID)
		if err != nil || !ok {
			return err
		}
		claimed, err = ob.Get(ctx, entry.ID)
		return err
	}, outbox.Table)
	if err != nil {
		return fmt.Errorf("claim outbox entry %d: %w", entry.ID, err)
	}
	if claimed == nil {
		return nil
	}
	entry = *claimed

	dispatchErr := d.dispatch(ctx, entry)

	// A delete rejected with 404 means the resource is already gone
	// remotely, which is the state the delete wanted.
	if dispatchErr != nil && entry.Operation == models.OpDelete && gateway.IsStatus(dispatchErr, http.StatusNotFound) {
		dispatchErr = nil
	}

	if dispatchErr == nil {
		if err := d.complete(ctx, entry); err != nil {
			return err
		}
		rep.Completed++
		return nil
	}

	switch gateway.Classify(dispatchErr) {
	case gateway.Unauthenticated:
		// Return the entry to pending untouched so it re-dispatches once
		// credentials are restored, then stop draining.
		err := d.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			_, err := outbox.New(tx).ReclaimInProgress(ctx)
			return err
		}, outbox.Table)
		if err != nil {
			return err
		}
		return fmt.Errorf("dispatch %s %s: %w", entry.Operation, entry.EntityType, common.ErrUnauthenticated)

	case gateway.Permanent:
		d.log.Warn(ctx, "outbox entry rejected",
			"id", entry.ID, "entity", entry.EntityType, "operation", entry.Operation, "error", dispatchErr)
		err := d.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			_, err := outbox.New(tx).Fail(ctx, entry.ID, dispatchErr.Error(), d.now())
			return err
		}, outbox.Table)
		if err != nil {
			return err
		}
		rep.Failed++
		return nil

	default: // transient
		if entry.RetryCount+1 >= d.maxRetries {
			d.log.Warn(ctx, "outbox entry exhausted retries",
				"id", entry.ID, "entity", entry.EntityType, "error", dispatchErr)
			err := d.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
				_, err := outbox.New(tx).Fail(ctx, entry.ID, dispatchErr.Error(), d.now())
				return err
			}, outbox.Table)
			if err != nil {
				return err
			}
			rep.Failed++
			return nil
		}

		next := d.now().Add(retryDelay(entry.RetryCount))
		d.log.Debug(ctx, "outbox entry will retry",
			"id", entry.ID, "entity", entry.EntityType, "attempt", entry.RetryCount+1,
			"next", next, "error", dispatchErr)
		err := d.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			_, err := outbox.New(tx).Retry(ctx, entry.ID, dispatchErr.Error(), next)
			return err
		}, outbox.Table)
		if err != nil {
			return err
		}
		rep.Retried++
		return nil
	}
}

// complete retires the entry and updates the local record's sync bookkeeping
// in the same transaction. When Complete reports zero rows the entry was
// coalesced back to pending mid-flight; the new snapshot will dispatch on a
// later pass and the bookkeeping is skipped here.
func (d *Drainer) complete(ctx context.Context, entry models.OutboxEntry) error {
	now := d.now()
	return d.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := outbox.New(tx).Complete(ctx, entry.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			d.log.Debug(ctx, "outbox entry coalesced mid-flight", "id", entry.ID)
			return nil
		}

		if entry.Operation == models.OpDelete {
			return hardDeleteLocal(ctx, tx, entry.EntityType, entry.EntityID)
		}
		return markSyncedLocal(ctx, tx, entry.EntityType, entry.EntityID, now)
	}, outbox.Table, tableFor(entry.EntityType))
}

func (d *Drainer) dispatch(ctx context.Context, entry models.OutboxEntry) error {
	switch entry.EntityType {
	case models.EntityFood:
		return dispatchRecord(ctx, entry,
			d.gw.CreateFood, d.gw.UpdateFood, d.gw.DeleteFood)
	case models.EntityDiary:
		return dispatchRecord(ctx, entry,
			d.gw.CreateDiaryEntry, d.gw.UpdateDiaryEntry, d.gw.DeleteDiaryEntry)
	case models.EntityRecipe:
		return dispatchRecord(ctx, entry,
			d.gw.CreateRecipe, d.gw.UpdateRecipe, d.gw.DeleteRecipe)
	case models.EntitySavedMeal:
		return dispatchRecord(ctx, entry,
			d.gw.CreateSavedMeal, d.gw.UpdateSavedMeal, d.gw.DeleteSavedMeal)
	case models.EntityWeight:
		return dispatchRecord(ctx, entry,
			d.gw.CreateWeightEntry, d.gw.UpdateWeightEntry, d.gw.DeleteWeightEntry)
	case models.EntityExercise:
		return dispatchRecord(ctx, entry,
			d.gw.CreateExerciseEntry, d.gw.UpdateExerciseEntry, d.gw.DeleteExerciseEntry)
	case models.EntityDiaryDay:
		return d.dispatchDiaryDay(ctx, entry)
	case models.EntityProfile:
		return d.dispatchProfile(ctx, entry)
	default:
		return fmt.Errorf("unknown outbox entity type %q", entry.EntityType)
	}
}

// dispatchRecord routes the standard create/update/delete triple for an
// entity whose payload unmarshals straight into its model.
func dispatchRecord[T any](ctx context.Context, entry models.OutboxEntry,
	create, update func(context.Context, T) error,
	del func(context.Context, string) error,
) error {
	if entry.Operation == models.OpDelete {
		return del(ctx, entry.EntityID)
	}

	var rec T
	if err := json.Unmarshal(entry.Payload, &rec); err != nil {
		return fmt.Errorf("decode %s payload: %w", entry.EntityType, err)
	}
	if entry.Operation == models.OpCreate {
		return create(ctx, rec)
	}
	return update(ctx, rec)
}

func (d *Drainer) dispatchDiaryDay(ctx context.Context, entry models.OutboxEntry) error {
	// The entity id is the date; a delete is expressed as clearing the
	// completion toggle.
	if entry.Operation == models.OpDelete {
		return d.gw.UncompleteDiaryDay(ctx, entry.EntityID)
	}

	var day models.DiaryDay
	if err := json.Unmarshal(entry.Payload, &day); err != nil {
		return fmt.Errorf("decode diary day payload: %w", err)
	}
	if day.Completed {
		return d.gw.CompleteDiaryDay(ctx, day.Date)
	}
	return d.gw.UncompleteDiaryDay(ctx, day.Date)
}

func (d *Drainer) dispatchProfile(ctx context.Context, entry models.OutboxEntry) error {
	if entry.Operation == models.OpDelete {
		return fmt.Errorf("profile deletion is not replicated through the outbox")
	}

	var p models.Profile
	if err := json.Unmarshal(entry.Payload, &p); err != nil {
		return fmt.Errorf("decode profile payload: %w", err)
	}
	return d.gw.UpdateProfile(ctx, p)
}

func hardDeleteLocal(ctx context.Context, tx dbx.DBTX, et models.EntityType, id string) error {
	switch et {
	case models.EntityFood:
		return foods.New(tx).HardDelete(ctx, id)
	case models.EntityDiary:
		return diary.New(tx).HardDeleteEntry(ctx, id)
	case models.EntityRecipe:
		return recipes.New(tx).HardDelete(ctx, id)
	case models.EntitySavedMeal:
		return savedmeals.New(tx).HardDelete(ctx, id)
	case models.EntityWeight:
		return weights.New(tx).HardDelete(ctx, id)
	case models.EntityExercise:
		return exercises.New(tx).HardDelete(ctx, id)
	default:
		return nil
	}
}

func markSyncedLocal(ctx context.Context, tx dbx.DBTX, et models.EntityType, id string, at time.Time) error {
	switch et {
	case models.EntityFood:
		return foods.New(tx).MarkSynced(ctx, id, at)
	case models.EntityDiary:
		return diary.New(tx).MarkEntrySynced(ctx, id, at)
	case models.EntityDiaryDay:
		return diary.New(tx).MarkDaySynced(ctx, id, at)
	case models.EntityRecipe:
		return recipes.New(tx).MarkSynced(ctx, id, at)
	case models.EntitySavedMeal:
		return savedmeals.New(tx).MarkSynced(ctx, id, at)
	case models.EntityWeight:
		return weights.New(tx).MarkSynced(ctx, id, at)
	case models.EntityExercise:
		return exercises.New(tx).MarkSynced(ctx, id, at)
	case models.EntityProfile:
		return profile.New(tx).MarkSynced(ctx, id, at)
	default:
		return nil
	}
}

func tableFor(et models.EntityType) string {
	switch et {
	case models.EntityFood:
		return foods.Table
	case models.EntityDiary:
		return diary.Table
	case models.EntityDiaryDay:
		return diary.DaysTable
	case models.EntityRecipe:
		return recipes.Table
	case models.EntitySavedMeal:
		return savedmeals.Table
	case models.EntityWeight:
		return weights.Table
	case models.EntityExercise:
		return exercises.Table
	case models.EntityProfile:
		return profile.Table
	default:
		return ""
	}
}

// retryDelay derives the backoff delay for the attempt following retryCount
// earlier failures.
func retryDelay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.MaxInterval = 10 * time.Minute
	b.MaxElapsedTime = 0

	delay := b.NextBackOff()
	for i := 0; i < retryCount; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
