// Package services implements the application use cases. Each service
// composes repository writes with an outbox enqueue in a single store
// transaction, so a recorded mutation and its replication intent are never
// separated by a crash.
package services

import (
	"context"
	"time"

	"github.com/avasiliev/kaltrack/internal/client/store"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// Kicker requests a sync drain soon. Implemented by the sync orchestrator;
// nil when running without background sync (one-shot commands).
type Kicker interface {
	Kick()
}

type base struct {
	st     *store.Store
	log    logging.Logger
	kicker Kicker
	now    func() time.Time
}

func newBase(st *store.Store, log logging.Logger, kicker Kicker) base {
	return base{st: st, log: log, kicker: kicker, now: func() time.Time { return time.Now().UTC() }}
}

func (b base) kick() {
	if b.kicker != nil {
		b.kicker.Kick()
	}
}

// watch adapts store.Watch to this service's store and logger.
func watch[T any](ctx context.Context, b base, tables []string, load func(context.Context) (T, error)) <-chan T {
	return store.Watch(ctx, b.st.Notifier(), b.log, tables, load)
}
