// Package state holds the single shared runtime container of MioEngine:
// the operational override flags, the presence rotation list and its
// override statuses, the command prefix, and the per-shard latency map.
//
// # Access discipline
//
// State wraps a sync.RWMutex that is never exposed. Readers call Snapshot
// (or one of the narrow accessors) and receive copies; the only writers
// are the latency monitor, which publishes a whole new latency map with
// ReplaceLatency, and the admin surface, which toggles flags. No method
// calls another locking method, performs I/O, or sleeps while the lock is
// held, so the frequent command reader and the periodic writers can never
// deadlock one another.
//
// # Handler mode
//
// HandlerMode is derived from the dev and debug flags exactly once, in New.
// Toggling the flags afterwards changes the presence override priority but
// not the handler mode.
package state
