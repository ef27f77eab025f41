// Package auth owns the access/refresh token pair and serializes refresh so
// that any number of concurrently failing requests produce exactly one
// refresh call.
package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/repositories/credentials"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/common"
	"github.com/avasiliev/kaltrack/internal/dbx"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// RefreshClient exchanges a refresh token for a new pair. Implemented by the
// HTTP gateway's unauthenticated refresh endpoint.
type RefreshClient interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

// Coordinator implements gateway.TokenSource on top of the credentials
// table. Tokens are opaque: staleness is only ever discovered through a
// rejected request, which lands in Resolve.
type Coordinator struct {
	st        *store.Store
	refresher RefreshClient
	log       logging.Logger

	group singleflight.Group

	mu     sync.Mutex
	cached *models.TokenPair

	// onUnauthenticated, if set, fires once per transition into the
	// unauthenticated state so the UI can route to the login prompt.
	onUnauthenticated func()
}

// NewCoordinator returns a coordinator reading and writing tokens through st.
func NewCoordinator(st *store.Store, refresher RefreshClient, log logging.Logger) *Coordinator {
	return &Coordinator{st: st, refresher: refresher, log: log}
}

// OnUnauthenticated registers the callback invoked after credentials are
// purged. Must be called before the coordinator is shared.
func (c *Coordinator) OnUnauthenticated(fn func()) { c.onUnauthenticated = fn }

// AccessToken returns the current access token, or common.ErrUnauthenticated
// when no credentials are stored.
func (c *Coordinator) AccessToken(ctx context.Context) (string, error) {
	pair, err := c.tokens(ctx)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// Resolve handles an authorization failure observed with failedToken.
//
// All concurrent callers share a single in-flight refresh. Inside the shared
// call the stored token is compared against the one that failed: if they
// differ another caller already refreshed, and the current token is returned
// without touching the network. On refresh failure the pair is purged and
// common.ErrUnauthenticated is returned to every waiter; the failure is not
// retried automatically.
func (c *Coordinator) Resolve(ctx context.Context, failedToken string) (string, error) {
	token, err, _ := c.group.Do("refresh", func() (any, error) {
		current, err := c.tokens(ctx)
		if err != nil {
			return "", err
		}

		if current.AccessToken != failedToken {
			// Another waiter refreshed while we queued up.
			return current.AccessToken, nil
		}

		pair, err := c.refresher.Refresh(ctx, current.RefreshToken)
		if err != nil {
			c.log.Warn(ctx, "token refresh failed, purging credentials", "error", err)
			if purgeErr := c.Clear(ctx); purgeErr != nil {
				c.log.Error(ctx, "failed to purge credentials", "error", purgeErr)
			}
			return "", fmt.Errorf("token refresh: %w", common.ErrUnauthenticated)
		}

		if err := c.SetTokens(ctx, pair); err != nil {
			return "", err
		}
		c.log.Debug(ctx, "token pair refreshed")
		return pair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// SetTokens stores a new pair (login, successful refresh).
func (c *Coordinator) SetTokens(ctx context.Context, pair models.TokenPair) error {
	err := c.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return credentials.New(tx).SaveTokens(ctx, pair)
	}, credentials.Table)
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}

	c.mu.Lock()
	c.cached = &pair
	c.mu.Unlock()
	return nil
}

// Clear purges the stored pair and notifies the unauthenticated callback.
func (c *Coordinator) Clear(ctx context.Context) error {
	err := c.st.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return credentials.New(tx).Clear(ctx)
	}, credentials.Table)
	if err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}

	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()

	if c.onUnauthenticated != nil {
		c.onUnauthenticated()
	}
	return nil
}

func (c *Coordinator) tokens(ctx context.Context) (*models.TokenPair, error) {
	c.mu.Lock()
	cached := c.cached
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	pair, err := credentials.New(c.st.DB()).Tokens(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached = pair
	c.mu.Unlock()
	return pair, nil
}
