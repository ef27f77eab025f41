package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/avasiliev/kaltrack/internal/client/gateway"
	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/exercises"
	"github.com/avasiliev/kaltrack/internal/client/repositories/outbox"
	"github.com/avasiliev/kaltrack/internal/client/repositories/weights"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/dbx"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// JournalService manages weigh-ins and exercise entries.
type JournalService struct {
	base
	gw gateway.Gateway
}

// NewJournalService returns a journal service.
func NewJournalService(st *store.Store, gw gateway.Gateway, log logging.Logger, kicker Kicker) *JournalService {
	return &JournalService{base: newBase(st, log, kicker), gw: gw}
}

// SaveWeight creates or updates a weigh-in atomically with its outbox
// record.
func (s *JournalService) SaveWeight(ctx context.Context, w models.WeightEntry) (models.WeightEntry, error) {
	now := s.now()
	op := models.OpUpdate
	if w.ID == "" {
		w.ID = uuid.NewString()
		w.CreatedAt = now
		op = models.OpCreate
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	w.State = models.SyncStateLive
	w.DeletedAt = nil

	payload, err := json.Marshal(w)
	if err != nil {
		return models.WeightEntry{}, fmt.Errorf("encode weight entry: %w", err)
	}

	err = s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := weights.New(tx).Upsert(ctx, &w); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, models.EntityWeight, w.ID, op, payload)
		return err
	}, weights.Table, outbox.Table)
	if err != nil {
		return models.WeightEntry{}, err
	}

	s.kick()
	return w, nil
}

// DeleteWeight soft-deletes a weigh-in and queues the remote delete.
func (s *JournalService) DeleteWeight(ctx context.Context, id string) error {
	now := s.now()
	err := s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := weights.New(tx)
		if err := repo.SoftDelete(ctx, id, now); err != nil {
			return err
		}
		entry, err := outbox.New(tx).Enqueue(ctx, models.EntityWeight, id, models.OpDelete, nil)
		if err != nil {
			return err
		}
		if entry == nil {
			return repo.HardDelete(ctx, id)
		}
		return nil
	}, weights.Table, outbox.Table)
	if err != nil {
		return err
	}

	s.kick()
	return nil
}

// WeightRange returns live weigh-ins between two dates inclusive.
func (s *JournalService) WeightRange(ctx context.Context, from, to string) ([]models.WeightEntry, error) {
	return weights.New(s.st.DB()).Range(ctx, from, to)
}

// WatchWeightRange emits the weigh-ins for the range now and after every
// change to them.
func (s *JournalService) WatchWeightRange(ctx context.Context, from, to string) <-chan []models.WeightEntry {
	return watch(ctx, s.base, []string{weights.Table},
		func(ctx context.Context) ([]models.WeightEntry, error) {
			return s.WeightRange(ctx, from, to)
		})
}

// SaveExercise creates or updates an exercise entry atomically with its
// outbox record.
func (s *JournalService) SaveExercise(ctx context.Context, e models.ExerciseEntry) (models.ExerciseEntry, error) {
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
		return models.ExerciseEntry{}, fmt.Errorf("encode exercise entry: %w", err)
	}

	err = s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := exercises.New(tx).Upsert(ctx, &e); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, models.EntityExercise, e.ID, op, payload)
		return err
	}, exercises.Table, outbox.Table)
	if err != nil {
		return models.ExerciseEntry{}, err
	}

	s.kick()
	return e, nil
}

// DeleteExercise soft-deletes an exercise entry and queues the remote
// delete.
func (s *JournalService) DeleteExercise(ctx context.Context, id string) error {
	now := s.now()
	err := s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := exercises.New(tx)
		if err := repo.SoftDelete(ctx, id, now); err != nil {
			return err
		}
		entry, err := outbox.New(tx).Enqueue(ctx, models.EntityExercise, id, models.OpDelete, nil)
		if err != nil {
			return err
		}
		if entry == nil {
			return repo.HardDelete(ctx, id)
		}
		return nil
	}, exercises.Table, outbox.Table)
	if err != nil {
		return err
	}

	s.kick()
	return nil
}

// ExerciseRange returns live exercise entries between two dates inclusive.
func (s *JournalService) ExerciseRange(ctx context.Context, from, to string) ([]models.ExerciseEntry, error) {
	return exercises.New(s.st.DB()).Range(ctx, from, to)
}

// WatchExerciseRange emits the exercise entries for the range now and after
// every change to them.
func (s *JournalService) WatchExerciseRange(ctx context.Context, from, to string) <-chan []models.ExerciseEntry {
	return watch(ctx, s.base, []string{exercises.Table},
		func(ctx context.Context) ([]models.ExerciseEntry, error) {
			return s.ExerciseRange(ctx, from, to)
		})
}

// Milestones fetches the backend-computed weight milestones. Requires
// connectivity.
func (s *JournalService) Milestones(ctx context.Context) ([]models.Milestone, error) {
	return s.gw.Milestones(ctx)
}

// AckMilestones marks the current milestones as viewed.
func (s *JournalService) AckMilestones(ctx context.Context) error {
	return s.gw.MarkMilestonesViewed(ctx)
}
