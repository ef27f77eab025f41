package services

import (
	"context"

	"github.com/avasiliev/kaltrack/internal/client/auth"
	"github.com/avasiliev/kaltrack/internal/client/gateway"
	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/profile"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/dbx"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// AuthService handles login and logout.
type AuthService struct {
	base
	gw    gateway.Gateway
	coord *auth.Coordinator
}

// NewAuthService returns an auth service.
func NewAuthService(st *store.Store, gw gateway.Gateway, coord *auth.Coordinator, log logging.Logger, kicker Kicker) *AuthService {
	return &AuthService{base: newBase(st, log, kicker), gw: gw, coord: coord}
}

// Login exchanges credentials for a token pair, stores it, and pulls the
// account profile so the app is usable offline immediately after.
func (s *AuthService) Login(ctx context.Context, email, password string) error {
	pair, err := s.gw.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := s.coord.SetTokens(ctx, pair); err != nil {
		return err
	}

	p, err := s.gw.Profile(ctx)
	if err != nil {
		// Tokens are stored; the profile will arrive with the next pull.
		s.log.Warn(ctx, "profile pull after login failed", "error", err)
		return nil
	}

	now := s.now()
	p.SyncedAt = &now
	p.State = models.SyncStateLive
	err = s.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return profile.New(tx).Upsert(ctx, p)
	}, profile.Table)
	if err != nil {
		return err
	}

	s.kick()
	return nil
}

// Logout clears stored credentials. Local data stays so the user can log
// back in without losing unsynced work.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.coord.Clear(ctx)
}
