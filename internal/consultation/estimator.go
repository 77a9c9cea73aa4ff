package consultation

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/astroveda/consult/internal/billing"
)

// Estimator advances a call clock once per second while the call is active
// and publishes the advisory balance estimate.
type Estimator struct {
	mu          sync.Mutex
	isFreeTrial bool
	rate        float64
	balance     float64
	elapsed     int64
	settledAt   int64
	active      bool
	cancel      context.CancelFunc
	subs        map[int]func(billing.Snapshot)
	nextSubID   int
	interval    time.Duration
}

// NewEstimator starts the clock at elapsed seconds, which is non-zero when
// rejoining a call already in progress.
func NewEstimator(isFreeTrial bool, ratePerMinute, lastKnownBalance float64, elapsed int64) *Estimator {
	if elapsed < 0 {
		elapsed = 0
	}
	return &Estimator{
		isFreeTrial: isFreeTrial,
		rate:        ratePerMinute,
		balance:     lastKnownBalance,
		elapsed:     elapsed,
		subs:        make(map[int]func(billing.Snapshot)),
		interval:    time.Second,
	}
}

// Start runs the ticker until Stop or ctx is done. Calling Start on a running
// estimator does nothing.
func (e *Estimator) Start(ctx context.Context) {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	e.active = true
	e.cancel = cancel
	interval := e.interval
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Tick()
			}
		}
	}()
}

// Stop freezes the clock.
func (e *Estimator) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.active = false
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (e *Estimator) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Tick advances the clock by one second if active and publishes the result.
func (e *Estimator) Tick() billing.Snapshot {
	e.mu.Lock()
	if e.active {
		e.elapsed++
	}
	snap := e.snapshotLocked()
	subs := make([]func(billing.Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return snap
}

// Rebase replaces the last known balance with a fresh backend value that
// already accounts for the time elapsed so far. Only seconds ticked after
// the rebase are charged against it.
func (e *Estimator) Rebase(balance float64) {
	e.mu.Lock()
	e.balance = balance
	e.settledAt = e.elapsed
	e.mu.Unlock()
}

func (e *Estimator) Snapshot() billing.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Estimator) IsFreeTrial() bool {
	return e.isFreeTrial
}

func (e *Estimator) snapshotLocked() billing.Snapshot {
	snap := billing.Estimate(e.elapsed, e.isFreeTrial, e.rate, e.balance)
	if e.settledAt > 0 {
		settled := billing.Cost(e.settledAt, e.isFreeTrial, e.rate)
		snap.EstimatedBalance = math.Max(0, e.balance-(billing.Cost(e.elapsed, e.isFreeTrial, e.rate)-settled))
	}
	return snap
}

// OnSnapshot subscribes fn to every tick and returns its unsubscribe func.
func (e *Estimator) OnSnapshot(fn func(billing.Snapshot)) func() {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}
