package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/avasiliev/kaltrack/internal/client/gateway"
	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/diary"
	"github.com/avasiliev/kaltrack/internal/client/repositories/outbox"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/common"
	"github.com/avasiliev/kaltrack/internal/dbx"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// DaySummary is a complete diary day for display: entries grouped under one
// date plus the running nutrient totals.
type DaySummary struct {
	Date      string
	Completed bool
	Entries   []models.DiaryEntry
	Calories  float64
	Protein   float64
	Carbs     float64
	Fat       float64
}

// DiaryService manages diary entries and per-day completion state.
type DiaryService struct {
	base
	gw gateway.Gateway
}

// NewDiaryService returns a diary service.
func NewDiaryService(st *store.Store, gw gateway.Gateway, log logging.Logger, kicker Kicker) *DiaryService {
	return &DiaryService{base: newBase(st, log, kicker), gw: gw}
}

// SaveEntry creates or updates a diary entry atomically with its outbox
// record.
func (s *DiaryService) SaveEntry(ctx context.Context, e models.DiaryEntry) (models.DiaryEntry, error) {
	now := s.now()
	op := models.OpUpdate
	if e.ID == "" {
		e.ID = uuid.NewString()
		e.CreatedAt = now
		op = models.OpCreate
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.State = models.SyncStateLive
	e.DeletedAt = nil

	payload, err := json.Marshal(e)
	if err != nil {
		return models.DiaryEntry{}, fmt.Errorf("encode diary entry: %w", err)
	}

	err = s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := diary.New(tx).UpsertEntry(ctx, &e); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, models.EntityDiary, e.ID, op, payload)
		return err
	}, diary.Table, outbox.Table)
	if err != nil {
		return models.DiaryEntry{}, err
	}

	s.kick()
	return e, nil
}

// DeleteEntry soft-deletes an entry and queues the remote delete.
func (s *DiaryService) DeleteEntry(ctx context.Context, id string) error {
	now := s.now()
	err := s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := diary.New(tx)
		if err := repo.SoftDeleteEntry(ctx, id, now); err != nil {
			return err
		}
		entry, err := outbox.New(tx).Enqueue(ctx, models.EntityDiary, id, models.OpDelete, nil)
		if err != nil {
			return err
		}
		if entry == nil {
			return repo.HardDeleteEntry(ctx, id)
		}
		return nil
	}, diary.Table, outbox.Table)
	if err != nil {
		return err
	}

	s.kick()
	return nil
}

// Day assembles the summary for one date.
func (s *DiaryService) Day(ctx context.Context, date string) (DaySummary, error) {
	return s.loadDay(ctx, date)
}

// WatchDay emits the day summary now and after every change to its entries
// or completion state.
func (s *DiaryService) WatchDay(ctx context.Context, date string) <-chan DaySummary {
	return watch(ctx, s.base, []string{diary.Table, diary.DaysTable},
		func(ctx context.Context) (DaySummary, error) {
			return s.loadDay(ctx, date)
		})
}

// EntriesForRange returns live entries between two dates inclusive.
func (s *DiaryService) EntriesForRange(ctx context.Context, from, to string) ([]models.DiaryEntry, error) {
	return diary.New(s.st.DB()).EntriesForRange(ctx, from, to)
}

// SetDayCompleted records the completion toggle for a date and queues it.
func (s *DiaryService) SetDayCompleted(ctx context.Context, date string, completed bool) error {
	now := s.now()
	day := models.DiaryDay{Date: date, Completed: completed}
	day.CreatedAt = now
	day.UpdatedAt = now
	day.State = models.SyncStateLive

	payload, err := json.Marshal(day)
	if err != nil {
		return fmt.Errorf("encode diary day: %w", err)
	}

	err = s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := diary.New(tx).UpsertDay(ctx, &day); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, models.EntityDiaryDay, date, models.OpUpdate, payload)
		return err
	}, diary.DaysTable, outbox.Table)
	if err != nil {
		return err
	}

	s.kick()
	return nil
}

// Refresh pulls a day's authoritative state from the backend and reconciles
// the local copy. Records with a queued local mutation keep the local
// version; everything else takes the server's, and entries the server no
// longer has are removed.
func (s *DiaryService) Refresh(ctx context.Context, date string) error {
	remote, err := s.gw.DiaryDay(ctx, date)
	if err != nil {
		return err
	}

	now := s.now()
	return s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := diary.New(tx)
		ob := outbox.New(tx)

		local, err := repo.EntriesForDate(ctx, date)
		if err != nil {
			return err
		}

		remoteIDs := make(map[string]bool, len(remote.Entries))
		for _, e := range remote.Entries {
			remoteIDs[e.ID] = true

			if hasActive(ctx, ob, models.EntityDiary, e.ID) {
				continue
			}
			e.SyncedAt = &now
			e.State = models.SyncStateLive
			if err := repo.UpsertEntry(ctx, &e); err != nil {
				return err
			}
		}

		for _, e := range local {
			if remoteIDs[e.ID] || hasActive(ctx, ob, models.EntityDiary, e.ID) {
				continue
			}
			if err := repo.HardDeleteEntry(ctx, e.ID); err != nil {
				return err
			}
		}

		if !hasActive(ctx, ob, models.EntityDiaryDay, date) {
			day := models.DiaryDay{Date: date, Completed: remote.Completed}
			day.CreatedAt = now
			day.UpdatedAt = now
			day.SyncedAt = &now
			day.State = models.SyncStateLive
			if err := repo.UpsertDay(ctx, &day); err != nil {
				return err
			}
		}
		return nil
	}, diary.Table, diary.DaysTable)
}

func (s *DiaryService) loadDay(ctx context.Context, date string) (DaySummary, error) {
	repo := diary.New(s.st.DB())

	entries, err := repo.EntriesForDate(ctx, date)
	if err != nil {
		return DaySummary{}, err
	}

	sum := DaySummary{Date: date, Entries: entries}
	for _, e := range entries {
		sum.Calories += e.Calories
		sum.Protein += e.Protein
		sum.Carbs += e.Carbs
		sum.Fat += e.Fat
	}

	day, err := repo.GetDay(ctx, date)
	switch {
	case err == nil:
		sum.Completed = day.Completed
	case errors.Is(err, common.ErrNotFound):
	default:
		return DaySummary{}, err
	}
	return sum, nil
}

// hasActive reports whether a pending or in_progress outbox entry exists for
// the entity. Lookup errors are treated as active so a reconcile never
// clobbers a mutation it could not rule out.
func hasActive(ctx context.Context, ob outbox.Repository, et models.EntityType, id string) bool {
	_, err := ob.ActiveForEntity(ctx, et, id)
	return !errors.Is(err, common.ErrNotFound)
}
