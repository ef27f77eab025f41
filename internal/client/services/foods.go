package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/avasiliev/kaltrack/internal/client/gateway"
	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/foods"
	"github.com/avasiliev/kaltrack/internal/client/repositories/outbox"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/common"
	"github.com/avasiliev/kaltrack/internal/dbx"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// FoodsService manages the local food catalog.
type FoodsService struct {
	base
	gw gateway.Gateway
}

// NewFoodsService returns a foods service.
func NewFoodsService(st *store.Store, gw gateway.Gateway, log logging.Logger, kicker Kicker) *FoodsService {
	return &FoodsService{base: newBase(st, log, kicker), gw: gw}
}

// Save creates or updates a food. A food without an id is a create and gets
// one assigned. The write and its outbox entry commit atomically.
func (s *FoodsService) Save(ctx context.Context, f models.Food) (models.Food, error) {
	now := s.now()
	op := models.OpUpdate
	if f.ID == "" {
		f.ID = uuid.NewString()
		f.CreatedAt = now
		op = models.OpCreate
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	f.State = models.SyncStateLive
	f.DeletedAt = nil

	payload, err := json.Marshal(f)
	if err != nil {
		return models.Food{}, fmt.Errorf("encode food: %w", err)
	}

	err = s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := foods.New(tx).Upsert(ctx, &f); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, models.EntityFood, f.ID, op, payload)
		return err
	}, foods.Table, outbox.Table)
	if err != nil {
		return models.Food{}, err
	}

	s.kick()
	return f, nil
}

// Delete soft-deletes a food and queues the remote delete. If the food's
// create was still queued undispatched the two cancel out and the row is
// removed outright.
func (s *FoodsService) Delete(ctx context.Context, id string) error {
	now := s.now()
	err := s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := foods.New(tx)
		if err := repo.SoftDelete(ctx, id, now); err != nil {
			return err
		}
		entry, err := outbox.New(tx).Enqueue(ctx, models.EntityFood, id, models.OpDelete, nil)
		if err != nil {
			return err
		}
		if entry == nil {
			return repo.HardDelete(ctx, id)
		}
		return nil
	}, foods.Table, outbox.Table)
	if err != nil {
		return err
	}

	s.kick()
	return nil
}

// Get returns one food by id.
func (s *FoodsService) Get(ctx context.Context, id string) (*models.Food, error) {
	return foods.New(s.st.DB()).GetByID(ctx, id)
}

// List returns all live foods.
func (s *FoodsService) List(ctx context.Context) ([]models.Food, error) {
	return foods.New(s.st.DB()).List(ctx)
}

// WatchList emits the food list now and after every change to it.
func (s *FoodsService) WatchList(ctx context.Context) <-chan []models.Food {
	return watch(ctx, s.base, []string{foods.Table}, s.List)
}

// LookupBarcode resolves a barcode locally first and falls back to the
// backend's shared catalog. A remote hit is cached in the local store as an
// already-synced record.
func (s *FoodsService) LookupBarcode(ctx context.Context, code string) (*models.Food, error) {
	f, err := foods.New(s.st.DB()).FindByBarcode(ctx, code)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	remote, err := s.gw.FoodByBarcode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.now()
	remote.SyncedAt = &now
	remote.State = models.SyncStateLive
	err = s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return foods.New(tx).Upsert(ctx, remote)
	}, foods.Table)
	if err != nil {
		return nil, err
	}
	return remote, nil
}

// Promote asks the backend to lift a user-created food into the shared
// catalog and mirrors the new status locally. Requires connectivity.
func (s *FoodsService) Promote(ctx context.Context, id string) error {
	if err := s.gw.PromoteFood(ctx, id); err != nil {
		return err
	}

	f, err := foods.New(s.st.DB()).GetByID(ctx, id)
	if err != nil {
		return err
	}
	f.Shared = true
	f.UpdatedAt = s.now()
	return s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return foods.New(tx).Upsert(ctx, f)
	}, foods.Table)
}

// ScanNutritionLabel submits a label photo for server-side parsing. The
// caller reviews the result and saves it as a food explicitly.
func (s *FoodsService) ScanNutritionLabel(ctx context.Context, image []byte) (*models.NutritionLabel, error) {
	return s.gw.SubmitNutritionLabel(ctx, image)
}
