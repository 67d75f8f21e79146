package state

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ErrEmptyStatusList is returned when the rotation list has no entries.
var ErrEmptyStatusList = errors.New("state: status list must contain at least one status")

// ErrEmptyPrefix is returned when no command prefix is configured.
var ErrEmptyPrefix = errors.New("state: command prefix must not be empty")

// Options carries the configuration values State is built from.
type Options struct {
	Prefix            string
	Dev               bool
	Debug             bool
	Maintenance       bool
	Statuses          []Status
	DevStatus         Status
	MaintenanceStatus Status
	DebugStatus       Status
	StreamingURL      string
	ProcessStart      time.Time
}

// State is the single shared runtime container of the bot. It is built
// once at startup and handed by pointer to every task.
//
// All access goes through methods; the lock is never exposed. Reads copy
// data out under the read lock and writes replace data under the write
// lock, so no caller can observe a partially updated value and no critical
// section performs I/O.
type State struct {
	mu sync.RWMutex

	maintenance bool
	dev         bool
	debug       bool
	handlerMode HandlerMode

	prefix            string
	statuses          []Status
	devStatus         Status
	maintenanceStatus Status
	debugStatus       Status
	streamingURL      string

	latency      map[int]LatencyRecord
	processStart time.Time
}

// New validates opts and builds the shared state. The handler mode is
// derived here and is not recomputed when flags change later.
func New(opts Options) (*State, error) {
	if opts.Prefix == "" {
		return nil, ErrEmptyPrefix
	}
	if len(opts.Statuses) == 0 {
		return nil, ErrEmptyStatusList
	}
	start := opts.ProcessStart
	if start.IsZero() {
		start = time.Now()
	}
	return &State{
		maintenance:       opts.Maintenance,
		dev:               opts.Dev,
		debug:             opts.Debug,
		handlerMode:       DeriveHandlerMode(opts.Dev, opts.Debug),
		prefix:            opts.Prefix,
		statuses:          slices.Clone(opts.Statuses),
		devStatus:         opts.DevStatus,
		maintenanceStatus: opts.MaintenanceStatus,
		debugStatus:       opts.DebugStatus,
		streamingURL:      opts.StreamingURL,
		latency:           make(map[int]LatencyRecord),
		processStart:      start,
	}, nil
}

// Snapshot is an immutable copy of State. Slices and maps are owned by the
// snapshot, so callers may keep it without further locking.
type Snapshot struct {
	Flags             Flags                 `json:"flags"`
	HandlerMode       HandlerMode           `json:"handler_mode"`
	Prefix            string                `json:"prefix"`
	Statuses          []Status              `json:"statuses"`
	DevStatus         Status                `json:"dev_status"`
	MaintenanceStatus Status                `json:"maintenance_status"`
	DebugStatus       Status                `json:"debug_status"`
	StreamingURL      string                `json:"streaming_url"`
	Latency           map[int]LatencyRecord `json:"latency"`
	ProcessStart      time.Time             `json:"process_start"`
}

// Snapshot returns a deep copy safe for concurrent use.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Flags: Flags{
			Maintenance: s.maintenance,
			Dev:         s.dev,
			Debug:       s.debug,
		},
		HandlerMode:       s.handlerMode,
		Prefix:            s.prefix,
		Statuses:          slices.Clone(s.statuses),
		DevStatus:         s.devStatus,
		MaintenanceStatus: s.maintenanceStatus,
		DebugStatus:       s.debugStatus,
		StreamingURL:      s.streamingURL,
		Latency:           maps.Clone(s.latency),
		ProcessStart:      s.processStart,
	}
}

// Prefix returns the command prefix. It never changes after New.
func (s *State) Prefix() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefix
}

// Flags returns the current override flags.
func (s *State) Flags() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Flags{Maintenance: s.maintenance, Dev: s.dev, Debug: s.debug}
}

// LatencyOf returns the latency record of one shard.
func (s *State) LatencyOf(shardID int) (LatencyRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.latency[shardID]
	return rec, ok
}

// ProcessStart returns the time the process started.
func (s *State) ProcessStart() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processStart
}

// ReplaceLatency swaps the whole latency map in one exclusive section.
// The map is copied, so the caller keeps ownership of next.
func (s *State) ReplaceLatency(next map[int]LatencyRecord) {
	published := maps.Clone(next)
	if published == nil {
		published = make(map[int]LatencyRecord)
	}
	s.mu.Lock()
	s.latency = published
	s.mu.Unlock()
}

// SetMaintenance toggles the maintenance override.
func (s *State) SetMaintenance(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintenance = on
}

// SetDev toggles the dev override. The handler mode is left untouched.
func (s *State) SetDev(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dev = on
}

// SetDebug toggles the debug override. The handler mode is left untouched.
func (s *State) SetDebug(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debug = on
}

// ShardIDs returns the shard IDs with a latency record, in ascending order.
func (snap Snapshot) ShardIDs() []int {
	ids := maps.Keys(snap.Latency)
	slices.Sort(ids)
	return ids
}
