package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/outbox"
	"github.com/avasiliev/kaltrack/internal/client/repositories/savedmeals"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/dbx"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// SavedMealsService manages reusable meal groups.
type SavedMealsService struct {
	base
}

// NewSavedMealsService returns a saved meals service.
func NewSavedMealsService(st *store.Store, log logging.Logger, kicker Kicker) *SavedMealsService {
	return &SavedMealsService{base: newBase(st, log, kicker)}
}

// Save creates or updates a saved meal atomically with its outbox record.
func (s *SavedMealsService) Save(ctx context.Context, m models.SavedMeal) (models.SavedMeal, error) {
	now := s.now()
	op := models.OpUpdate
	if m.ID == "" {
		m.ID = uuid.NewString()
		m.CreatedAt = now
		op = models.OpCreate
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	m.State = models.SyncStateLive
	m.DeletedAt = nil

	payload, err := json.Marshal(m)
	if err != nil {
		return models.SavedMeal{}, fmt.Errorf("encode saved meal: %w", err)
	}

	err = s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := savedmeals.New(tx).Upsert(ctx, &m); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, models.EntitySavedMeal, m.ID, op, payload)
		return err
	}, savedmeals.Table, outbox.Table)
	if err != nil {
		return models.SavedMeal{}, err
	}

	s.kick()
	return m, nil
}

// Delete soft-deletes a saved meal and queues the remote delete.
func (s *SavedMealsService) Delete(ctx context.Context, id string) error {
	now := s.now()
	err := s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := savedmeals.New(tx)
		if err := repo.SoftDelete(ctx, id, now); err != nil {
			return err
		}
		entry, err := outbox.New(tx).Enqueue(ctx, models.EntitySavedMeal, id, models.OpDelete, nil)
		if err != nil {
			return err
		}
		if entry == nil {
			return repo.HardDelete(ctx, id)
		}
		return nil
	}, savedmeals.Table, outbox.Table)
	if err != nil {
		return err
	}

	s.kick()
	return nil
}

// Get returns one saved meal by id.
func (s *SavedMealsService) Get(ctx context.Context, id string) (*models.SavedMeal, error) {
	return savedmeals.New(s.st.DB()).GetByID(ctx, id)
}

// List returns all live saved meals.
func (s *SavedMealsService) List(ctx context.Context) ([]models.SavedMeal, error) {
	return savedmeals.New(s.st.DB()).List(ctx)
}

// WatchList emits the saved meal list now and after every change to it.
func (s *SavedMealsService) WatchList(ctx context.Context) <-chan []models.SavedMeal {
	return watch(ctx, s.base, []string{savedmeals.Table}, s.List)
}
