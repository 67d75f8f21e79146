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

const (
	// DefaultMonitorInterval is how often shard latency is sampled.
	DefaultMonitorInterval = 10 * time.Second
	// DefaultWarnThreshold is the latency above which a shard is flagged.
	DefaultWarnThreshold = 200 * time.Millisecond
)

// MonitorOptions configures a LatencyMonitor. Zero values select defaults.
type MonitorOptions struct {
	Interval      time.Duration
	WarnThreshold time.Duration
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

// LatencyMonitor samples the heartbeat latency of every registered shard,
// flags shards whose latency crosses the warning threshold, and publishes
// the per-shard records into the shared state.
//
// Each shard moves between two states with hysteresis:
//
//	Normal ──ping > threshold──> Warned   (status set to busy, one warning)
//	Warned ──ping < threshold──> Normal   (status set to online, one info)
//
// A ping equal to the threshold changes nothing in either state.
//
// The monitor is the only writer of the latency map in state.State. It
// keeps its own working map and publishes a copy once per tick with a
// single ReplaceLatency call, so readers see either the previous or the new
// map in full. Presence updates are sent before publishing and never while
// any state lock is held.
type LatencyMonitor struct {
	state     *state.State
	registry  *ShardRegistry
	metrics   *metrics.Metrics
	log       zerolog.Logger
	interval  time.Duration
	threshold time.Duration

	mu      sync.Mutex                  // serializes Check
	records map[int]state.LatencyRecord // working copy, owned by Check

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runMu   sync.Mutex // orders Start's wg.Add against Stop's wg.Wait
	stopped bool
}

// NewLatencyMonitor creates a monitor over the shards of registry.
//
// Parameters:
//   - st: Shared state receiving the latency records
//   - registry: Source of the shards to sample
//   - opts: Interval, threshold, logger and metrics
//
// Returns:
//   - *LatencyMonitor: Configured monitor ready to start
//
// Example:
//
//	monitor := NewLatencyMonitor(st, registry, MonitorOptions{Logger: log})
//	go monitor.Start(ctx)
func NewLatencyMonitor(st *state.State, registry *ShardRegistry, opts MonitorOptions) *LatencyMonitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultMonitorInterval
	}
	if opts.WarnThreshold <= 0 {
		opts.WarnThreshold = DefaultWarnThreshold
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &LatencyMonitor{
		state:     st,
		registry:  registry,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		interval:  opts.Interval,
		threshold: opts.WarnThreshold,
		records:   make(map[int]state.LatencyRecord),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the monitor loop in the current goroutine until ctx is
// cancelled or Stop is called. A first sample is taken immediately.
func (m *LatencyMonitor) Start(ctx context.Context) {
	if !m.begin() {
		return
	}
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info().
		Dur("interval", m.interval).
		Dur("threshold", m.threshold).
		Msg("latency monitor started")

	m.Check(ctx)

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			m.log.Debug().Msg("latency monitor stopping due to context cancellation")
			return
		case <-m.ctx.Done():
			m.log.Debug().Msg("latency monitor stopping due to internal cancellation")
			return
		}
	}
}

// Stop cancels the loop and waits for it to return.
func (m *LatencyMonitor) Stop() {
	m.runMu.Lock()
	m.stopped = true
	m.runMu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// begin registers a running loop. It reports false once Stop was called,
// so a Start that loses the race against Stop never runs.
func (m *LatencyMonitor) begin() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.stopped {
		return false
	}
	m.wg.Add(1)
	return true
}

// Check performs one sampling pass over every registered shard.
//
// Implementation:
//  1. Sample each shard's latency (negative values read as 0)
//  2. Insert or update the shard's record in the working map
//  3. Apply the hysteresis transition and update presence if it changed
//  4. Forget shards that left the registry
//  5. Publish a copy of the working map into the shared state
func (m *LatencyMonitor) Check(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	shards := m.registry.All()
	current := make(map[int]bool, len(shards))

	for _, s := range shards {
		id := s.ID()
		current[id] = true
		m.records[id] = m.checkShard(ctx, s, m.records[id])
	}

	for id := range m.records {
		if !current[id] {
			delete(m.records, id)
			m.metrics.ForgetShard(id)
			m.log.Info().Int("shard", id).Msg("removed shard from latency monitoring")
		}
	}

	m.state.ReplaceLatency(m.records)
}

// checkShard samples one shard and returns its updated record. Unseen
// shards start from the zero record, which is not warned.
func (m *LatencyMonitor) checkShard(ctx context.Context, s shard.Shard, rec state.LatencyRecord) state.LatencyRecord {
	ping := s.Latency()
	if ping < 0 {
		ping = 0
	}
	rec.Ping = ping

	switch {
	case !rec.Warned && ping > m.threshold:
		rec.Warned = true
		m.log.Warn().
			Int("shard", s.ID()).
			Int64("ping_ms", ping.Milliseconds()).
			Msg("shard latency is high")
		if err := s.SetOnlineStatus(ctx, shard.StatusBusy); err != nil {
			m.log.Error().Err(err).Int("shard", s.ID()).Msg("failed to set busy status")
		}
	case rec.Warned && ping < m.threshold:
		rec.Warned = false
		m.log.Info().
			Int("shard", s.ID()).
			Int64("ping_ms", ping.Milliseconds()).
			Msg("shard latency is back to normal")
		if err := s.SetOnlineStatus(ctx, shard.StatusOnline); err != nil {
			m.log.Error().Err(err).Int("shard", s.ID()).Msg("failed to restore online status")
		}
	}

	m.metrics.ObserveLatency(s.ID(), ping, rec.Warned)
	return rec
}

// Threshold returns the configured warning threshold.
func (m *LatencyMonitor) Threshold() time.Duration {
	return m.threshold
}
