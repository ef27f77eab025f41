package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/outbox"
	"github.com/avasiliev/kaltrack/internal/client/repositories/recipes"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/dbx"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// RecipesService manages user-composed recipes.
type RecipesService struct {
	base
}

// NewRecipesService returns a recipes service.
func NewRecipesService(st *store.Store, log logging.Logger, kicker Kicker) *RecipesService {
	return &RecipesService{base: newBase(st, log, kicker)}
}

// Save creates or updates a recipe atomically with its outbox record.
func (s *RecipesService) Save(ctx context.Context, r models.Recipe) (models.Recipe, error) {
	now := s.now()
	op := models.OpUpdate
	if r.ID == "" {
		r.ID = uuid.NewString()
		r.CreatedAt = now
		op = models.OpCreate
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.State = models.SyncStateLive
	r.DeletedAt = nil

	payload, err := json.Marshal(r)
	if err != nil {
		return models.Recipe{}, fmt.Errorf("encode recipe: %w", err)
	}

	err = s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := recipes.New(tx).Upsert(ctx, &r); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, models.EntityRecipe, r.ID, op, payload)
		return err
	}, recipes.Table, outbox.Table)
	if err != nil {
		return models.Recipe{}, err
	}

	s.kick()
	return r, nil
}

// Delete soft-deletes a recipe and queues the remote delete.
func (s *RecipesService) Delete(ctx context.Context, id string) error {
	now := s.now()
	err := s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := recipes.New(tx)
		if err := repo.SoftDelete(ctx, id, now); err != nil {
			return err
		}
		entry, err := outbox.New(tx).Enqueue(ctx, models.EntityRecipe, id, models.OpDelete, nil)
		if err != nil {
			return err
		}
		if entry == nil {
			return repo.HardDelete(ctx, id)
		}
		return nil
	}, recipes.Table, outbox.Table)
	if err != nil {
		return err
	}

	s.kick()
	return nil
}

// Get returns one recipe by id.
func (s *RecipesService) Get(ctx context.Context, id string) (*models.Recipe, error) {
	return recipes.New(s.st.DB()).GetByID(ctx, id)
}

// List returns all live recipes.
func (s *RecipesService) List(ctx context.Context) ([]models.Recipe, error) {
	return recipes.New(s.st.DB()).List(ctx)
}

// WatchList emits the recipe list now and after every change to it.
func (s *RecipesService) WatchList(ctx context.Context) <-chan []models.Recipe {
	return watch(ctx, s.base, []string{recipes.Table}, s.List)
}
