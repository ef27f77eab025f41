package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avasiliev/kaltrack/internal/client/models"
	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/common"
	"github.com/avasiliev/kaltrack/internal/logging"

	_ "modernc.org/sqlite"
)

func testLogger() logging.Logger {
	return logging.Nop()
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type fakeRefresher struct {
	calls atomic.Int32
	delay time.Duration
	pair  models.TokenPair
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.pair, f.err
}

func TestAccessToken_NoCredentials(t *testing.T) {
	c := NewCoordinator(newStore(t), &fakeRefresher{}, testLogger())

	_, err := c.AccessToken(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestResolve_ConcurrentCallersShareOneRefresh(t *testing.T) {
	st := newStore(t)
	ref := &fakeRefresher{
		delay: 50 * time.Millisecond,
		pair:  models.TokenPair{AccessToken: "new", RefreshToken: "r2"},
	}
	c := NewCoordinator(st, ref, testLogger())
	ctx := context.Background()

	require.NoError(t, c.SetTokens(ctx, models.TokenPair{AccessToken: "old", RefreshToken: "r1"}))

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Resolve(ctx, "old")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "new", results[i])
	}
	assert.EqualValues(t, 1, ref.calls.Load())

	token, err := c.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", token)
}

func TestResolve_StaleFailureReturnsCurrentToken(t *testing.T) {
	st := newStore(t)
	ref := &fakeRefresher{}
	c := NewCoordinator(st, ref, testLogger())
	ctx := context.Background()

	require.NoError(t, c.SetTokens(ctx, models.TokenPair{AccessToken: "current", RefreshToken: "r"}))

	// A caller reporting an already-replaced token must get the current one
	// without a network round trip.
	token, err := c.Resolve(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, "current", token)
	assert.Zero(t, ref.calls.Load())
}

func TestResolve_RefreshFailurePurgesCredentials(t *testing.T) {
	st := newStore(t)
	ref := &fakeRefresher{err: errors.New("refresh token revoked")}
	c := NewCoordinator(st, ref, testLogger())
	ctx := context.Background()

	var notified atomic.Bool
	c.OnUnauthenticated(func() { notified.Store(true) })

	require.NoError(t, c.SetTokens(ctx, models.TokenPair{AccessToken: "old", RefreshToken: "r"}))

	_, err := c.Resolve(ctx, "old")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
	assert.True(t, notified.Load())

	_, err = c.AccessToken(ctx)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestResolve_WithoutCredentials(t *testing.T) {
	c := NewCoordinator(newStore(t), &fakeRefresher{}, testLogger())

	_, err := c.Resolve(context.Background(), "whatever")
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}
