package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avasiliev/kaltrack/internal/client/gateway"
	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/outbox"
	"github.com/avasiliev/kaltrack/internal/client/repositories/profile"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/dbx"
	"github.com/avasiliev/kaltrack/internal/filex"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// CredentialsClearer removes stored credentials. Implemented by the token
// coordinator.
type CredentialsClearer interface {
	Clear(ctx context.Context) error
}

// ProfileService manages the account profile and account-level operations.
type ProfileService struct {
	base
	gw    gateway.Gateway
	creds CredentialsClearer
}

// NewProfileService returns a profile service.
func NewProfileService(st *store.Store, gw gateway.Gateway, creds CredentialsClearer, log logging.Logger, kicker Kicker) *ProfileService {
	return &ProfileService{base: newBase(st, log, kicker), gw: gw, creds: creds}
}

// Get returns the stored profile.
func (s *ProfileService) Get(ctx context.Context) (*models.Profile, error) {
	return profile.New(s.st.DB()).Get(ctx)
}

// Watch emits the profile now and after every change to it.
func (s *ProfileService) Watch(ctx context.Context) <-chan *models.Profile {
	return watch(ctx, s.base, []string{profile.Table}, s.Get)
}

// Update saves the profile locally and queues the remote update.
func (s *ProfileService) Update(ctx context.Context, p models.Profile) (models.Profile, error) {
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.State = models.SyncStateLive

	payload, err := json.Marshal(p)
	if err != nil {
		return models.Profile{}, fmt.Errorf("encode profile: %w", err)
	}

	err = s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := profile.New(tx).Upsert(ctx, &p); err != nil {
			return err
		}
		_, err := outbox.New(tx).Enqueue(ctx, models.EntityProfile, p.ID, models.OpUpdate, payload)
		return err
	}, profile.Table, outbox.Table)
	if err != nil {
		return models.Profile{}, err
	}

	s.kick()
	return p, nil
}

// ExportData downloads the account's full data export and writes it into
// dir. Returns the path of the written file. Requires connectivity.
func (s *ProfileService) ExportData(ctx context.Context, dir string) (string, error) {
	data, err := s.gw.ExportData(ctx)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("kaltrack-export-%s.json", s.now().Format("2006-01-02"))
	path, err := filex.WriteFile(dir, name, data)
	if err != nil {
		return "", err
	}

	s.log.Info(ctx, "data export written", "path", path)
	return path, nil
}

// DeleteAccount deletes the account server-side, then clears local
// credentials and profile state. Local diary data is left on disk; the
// database file belongs to the user.
func (s *ProfileService) DeleteAccount(ctx context.Context) error {
	if err := s.gw.DeleteAccount(ctx); err != nil {
		return err
	}

	if err := s.creds.Clear(ctx); err != nil {
		return err
	}
	return s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return profile.New(tx).Clear(ctx)
	}, profile.Table)
}
