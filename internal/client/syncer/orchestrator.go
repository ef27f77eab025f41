package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avasiliev/kaltrack/internal/common"
	"github.com/avasiliev/kaltrack/internal/logging"
)

// drainRunner is the part of Drainer the orchestrator drives.
type drainRunner interface {
	DrainOnce(ctx context.Context) (Report, error)
}

// Orchestrator decides when a drain runs. Drains are triggered by the
// periodic timer, by Kick (called after every local mutation), and by the
// offline-to-online transition. All triggers funnel into a single loop
// goroutine, so at most one drain is ever in flight; triggers arriving
// during a drain collapse into one follow-up pass.
type Orchestrator struct {
	drainer drainRunner
	prober  Prober
	log     logging.Logger

	syncInterval  time.Duration
	probeInterval time.Duration

	kick       chan struct{}
	cameOnline chan struct{}
	online     atomic.Bool

	mu          sync.Mutex
	cancelDrain context.CancelFunc
}

// NewOrchestrator wires a drainer to its triggers.
func NewOrchestrator(drainer drainRunner, prober Prober, log logging.Logger, syncInterval, probeInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		drainer:       drainer,
		prober:        prober,
		log:           log,
		syncInterval:  syncInterval,
		probeInterval: probeInterval,
		kick:          make(chan struct{}, 1),
		cameOnline:    make(chan struct{}, 1),
	}
}

// Kick requests a drain soon. Safe to call from any goroutine; a kick during
// an active drain schedules exactly one more pass.
func (o *Orchestrator) Kick() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

// Online reports the last observed connectivity state.
func (o *Orchestrator) Online() bool { return o.online.Load() }

// Run blocks until ctx is cancelled, probing connectivity and draining the
// outbox as triggers arrive.
func (o *Orchestrator) Run(ctx context.Context) {
	go o.watchConnectivity(ctx)

	ticker := time.NewTicker(o.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.drain(ctx)
		case <-o.kick:
			o.drain(ctx)
		case <-o.cameOnline:
			o.drain(ctx)
		}
	}
}

func (o *Orchestrator) drain(ctx context.Context) {
	if !o.online.Load() {
		o.log.Debug(ctx, "skipping drain while offline")
		return
	}

	dctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancelDrain = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancelDrain = nil
		o.mu.Unlock()
		cancel()
	}()

	rep, err := o.drainer.DrainOnce(dctx)
	switch {
	case err == nil:
		if rep.Completed > 0 || rep.Failed > 0 || rep.Retried > 0 {
			o.log.Info(ctx, "drain finished",
				"completed", rep.Completed, "retried", rep.Retried, "failed", rep.Failed)
		}
	case errors.Is(err, common.ErrUnauthenticated):
		o.log.Warn(ctx, "drain stopped, not authenticated")
	case errors.Is(err, context.Canceled):
		o.log.Debug(ctx, "drain cancelled")
	default:
		o.log.Error(ctx, "drain failed", "error", err)
	}
}

// watchConnectivity probes the backend on a fixed interval. Going offline
// cancels any drain in flight; its remaining entries are reclaimed at the
// start of the next drain. Coming back online triggers one.
func (o *Orchestrator) watchConnectivity(ctx context.Context) {
	o.probe(ctx)

	ticker := time.NewTicker(o.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.probe(ctx)
		}
	}
}

func (o *Orchestrator) probe(ctx context.Context) {
	reachable := o.prober.Check(ctx)
	was := o.online.Swap(reachable)
	if was == reachable {
		return
	}

	if reachable {
		o.log.Info(ctx, "backend reachable, scheduling drain")
		select {
		case o.cameOnline <- struct{}{}:
		default:
		}
		return
	}

	o.log.Info(ctx, "backend unreachable, pausing sync")
	o.mu.Lock()
	if o.cancelDrain != nil {
		o.cancelDrain()
	}
	o.mu.Unlock()
}
