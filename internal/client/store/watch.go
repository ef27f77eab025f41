package store

import (
	"context"

	"github.com/avasiliev/kaltrack/internal/logging"
)

// Watch turns a load function into a reactive result sequence: the current
// result is emitted immediately, then re-emitted after every commit touching
// one of the given tables, until ctx is cancelled. Load errors are logged
// and skipped so a transient read failure does not end the sequence.
func Watch[T any](ctx context.Context, n *Notifier, log logging.Logger, tables []string, load func(context.Context) (T, error)) <-chan T {
	out := make(chan T, 1)
	sub := n.Subscribe(tables...)

	go func() {
		defer close(out)
		defer sub.Close()

		emit := func() {
			v, err := load(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Error(ctx, "watch query failed", "tables", tables, "error", err)
				}
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
			}
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
				emit()
			}
		}
	}()

	return out
}
