// Package coordinator runs the long-lived tasks of a MioEngine process
// around the single shared state: the latency monitor, the status rotator
// and the shutdown coordinator, plus the registry of active shards they
// all iterate.
//
// # Overview
//
//	┌──────────────────────────────────────────────┐
//	│                 COORDINATOR                  │
//	├──────────────────────────────────────────────┤
//	│                                              │
//	│  ShardRegistry ── All() ──┬─> LatencyMonitor │──ReplaceLatency──> state.State
//	│                           ├─> StatusRotator  │<─Snapshot──────── state.State
//	│                           └─> Shutdown       │
//	│                                              │
//	└──────────────────────────────────────────────┘
//
// # Core Components
//
// ShardRegistry: the set of active gateway shards
//   - Registration rejects duplicate and out-of-range IDs
//   - All returns a copy ordered by shard ID
//
// LatencyMonitor: periodic heartbeat sampling
//   - Sole writer of the latency map in state.State
//   - Two-state hysteresis per shard around a warning threshold
//   - Sets the shard's online status to busy while warned
//
// StatusRotator: periodic presence activity
//   - Task-local rotation index advanced modulo the list length
//   - Override priority: maintenance, debug, dev, then rotation
//   - Unknown activity kinds are logged and skipped
//
// ShutdownCoordinator: process lifecycle
//   - One subscription to SIGINT and SIGTERM
//   - Stop hooks in reverse order, then every shard, then exit 0
//   - Exit 1 when signals cannot be subscribed to
//
// # Presence Ownership
//
// The monitor and the rotator may act on the same shard in the same tick.
// They never conflict because they own different halves of the presence:
// the monitor writes the online status, the rotator writes the activity,
// and the shard sends both on every update. A warned shard therefore stays
// busy across rotation ticks until its latency drops back under the
// threshold, while its activity keeps rotating.
//
// # Cancellation
//
// Start blocks until its context is cancelled or Stop is called. The
// shutdown coordinator receives Stop calls as hooks, so periodic tasks end
// before their shards are closed.
//
// # Locking
//
// Neither periodic task holds a state lock while talking to a shard. The
// monitor computes a whole map and publishes it in one call; the rotator
// works from a snapshot. Each task serializes its own ticks with a private
// mutex that never nests with the state lock.
package coordinator
