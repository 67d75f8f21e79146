package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sedorikku1949/MioEngine/internal/metrics"
	"github.com/Sedorikku1949/MioEngine/internal/shard"
	"github.com/Sedorikku1949/MioEngine/internal/state"
)

// DefaultRotationInterval is used when no status_time is configured.
const DefaultRotationInterval = 30 * time.Second

// RotatorOptions configures a StatusRotator. Zero values select defaults.
type RotatorOptions struct {
	Interval time.Duration
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// StatusRotator applies one presence activity to every shard per tick.
//
// The rotation index is private to the rotator and advanced by one, modulo
// the length of the status list, on every tick. Override flags take
// priority over the rotation, highest first: maintenance, debug, dev.
// The rotator only sets the activity; the online status belongs to the
// latency monitor.
type StatusRotator struct {
	state    *state.State
	registry *ShardRegistry
	metrics  *metrics.Metrics
	log      zerolog.Logger
	interval time.Duration

	mu    sync.Mutex // serializes Tick
	index int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runMu   sync.Mutex // orders Start's wg.Add against Stop's wg.Wait
	stopped bool
}

// NewStatusRotator creates a rotator over the shards of registry.
//
// Example:
//
//	rotator := NewStatusRotator(st, registry, RotatorOptions{Interval: 30 * time.Second})
//	go rotator.Start(ctx)
func NewStatusRotator(st *state.State, registry *ShardRegistry, opts RotatorOptions) *StatusRotator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultRotationInterval
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &StatusRotator{
		state:    st,
		registry: registry,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		interval: opts.Interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the rotation loop until ctx is cancelled or Stop is called.
// The first status is applied after one full interval.
func (r *StatusRotator) Start(ctx context.Context) {
	if !r.begin() {
		return
	}
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Msg("status rotation started")

	for {
		select {
		case <-ticker.C:
			r.Tick(ctx)
		case <-ctx.Done():
			r.log.Debug().Msg("status rotation stopping due to context cancellation")
			return
		case <-r.ctx.Done():
			r.log.Debug().Msg("status rotation stopping due to internal cancellation")
			return
		}
	}
}

// Stop cancels the loop and waits for it to return.
func (r *StatusRotator) Stop() {
	r.runMu.Lock()
	r.stopped = true
	r.runMu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// begin registers a running loop. It reports false once Stop was called,
// so a Start that loses the race against Stop never runs.
func (r *StatusRotator) begin() bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.stopped {
		return false
	}
	r.wg.Add(1)
	return true
}

// Tick advances the rotation index, selects the winning status and applies
// it to every registered shard. It returns the selected status.
//
// A status of unknown kind is logged and not applied. A shard that fails
// to update is logged and the remaining shards are still updated.
func (r *StatusRotator) Tick(ctx context.Context) state.Status {
	snap := r.state.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(snap.Statuses); n > 0 {
		r.index = (r.index + 1) % n
	}
	selected := SelectStatus(snap, r.index)
	r.metrics.StatusRotated(selected.Kind.String())

	if selected.Kind == state.ActivityUnknown {
		r.log.Warn().Str("message", selected.Message).Msg("status type was unknown")
		return selected
	}

	activity := shard.Activity{Kind: selected.Kind, Name: selected.Message}
	if selected.Kind == state.ActivityStreaming {
		activity.URL = snap.StreamingURL
	}

	for _, s := range r.registry.All() {
		if err := s.SetActivity(ctx, activity); err != nil {
			r.log.Error().Err(err).Int("shard", s.ID()).Msg("failed to apply status")
		}
	}
	return selected
}

// Index returns the current rotation index.
func (r *StatusRotator) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// SelectStatus picks the status to display for a snapshot and rotation
// index. Exactly one status wins: maintenance, then debug, then dev, then
// the rotation entry at index.
func SelectStatus(snap state.Snapshot, index int) state.Status {
	switch {
	case snap.Flags.Maintenance:
		return snap.MaintenanceStatus
	case snap.Flags.Debug:
		return snap.DebugStatus
	case snap.Flags.Dev:
		return snap.DevStatus
	}
	if len(snap.Statuses) == 0 {
		return state.Status{}
	}
	if index < 0 || index >= len(snap.Statuses) {
		index = 0
	}
	return snap.Statuses[index]
}
