// Package coordinator runs MioEngine's periodic tasks and lifecycle.
// See doc.go for complete package documentation.
package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/Sedorikku1949/MioEngine/internal/shard"
)

// ErrShardExists is returned when a shard ID is registered twice.
var ErrShardExists = errors.New("shard already registered")

// ShardRegistry is the authoritative set of active gateway shards. The
// latency monitor, the status rotator, the shutdown coordinator and the
// admin surface all enumerate shards through it.
//
// Concurrency Model:
//   - Read operations use RLock for parallel access
//   - Write operations use Lock for exclusive access
//   - Returned slices are fresh copies
//   - No lock is held while a shard method is called
//
// Example:
//
//	registry := NewShardRegistry(2)
//	_ = registry.Register(shard0)
//	for _, s := range registry.All() {
//	    _ = s.SetActivity(ctx, activity)
//	}
type ShardRegistry struct {
	// shards maps shard IDs to their connection.
	shards map[int]shard.Shard

	mu sync.RWMutex

	// numShards is the configured shard count. IDs must be in
	// [0, numShards).
	numShards int
}

// NewShardRegistry creates an empty registry for numShards shards.
//
// Parameters:
//   - numShards: Configured shard count (must be > 0)
//
// Returns:
//   - Initialized ShardRegistry ready for registrations
func NewShardRegistry(numShards int) *ShardRegistry {
	return &ShardRegistry{
		shards:    make(map[int]shard.Shard),
		numShards: numShards,
	}
}

// Register adds a shard to the registry.
//
// Parameters:
//   - s: The shard to add; its ID must be in [0, numShards)
//
// Returns:
//   - nil on success
//   - ErrShardExists if the ID is already registered
//   - Error if the ID is out of range or s is nil
func (r *ShardRegistry) Register(s shard.Shard) error {
	if s == nil {
		return errors.New("shard cannot be nil")
	}
	id := s.ID()
	if id < 0 || id >= r.numShards {
		return fmt.Errorf("invalid shard ID %d, must be in range [0, %d)", id, r.numShards)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.shards[id]; exists {
		return fmt.Errorf("shard %d: %w", id, ErrShardExists)
	}
	r.shards[id] = s
	return nil
}

// Remove drops a shard from the registry. Removing an unknown ID is not an
// error. The latency monitor forgets the shard on its next tick.
//
// Returns:
//   - The removed shard and true, or nil and false when absent
func (r *ShardRegistry) Remove(id int) (shard.Shard, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.shards[id]
	if ok {
		delete(r.shards, id)
	}
	return s, ok
}

// Get returns the shard with the given ID.
func (r *ShardRegistry) Get(id int) (shard.Shard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shards[id]
	return s, ok
}

// All returns every registered shard ordered by ID.
//
// The slice is a copy: callers may iterate it and call into shards without
// holding the registry lock.
func (r *ShardRegistry) All() []shard.Shard {
	r.mu.RLock()
	ids := maps.Keys(r.shards)
	slices.Sort(ids)
	out := make([]shard.Shard, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.shards[id])
	}
	r.mu.RUnlock()
	return out
}

// IDs returns the registered shard IDs in ascending order.
func (r *ShardRegistry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := maps.Keys(r.shards)
	slices.Sort(ids)
	return ids
}

// Count returns the number of registered shards.
func (r *ShardRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shards)
}

// NumShards returns the configured shard count.
func (r *ShardRegistry) NumShards() int {
	return r.numShards
}

// Describe returns Info for every shard that can report it, ordered by ID.
func (r *ShardRegistry) Describe() []shard.Info {
	all := r.All()
	out := make([]shard.Info, 0, len(all))
	for _, s := range all {
		if d, ok := s.(shard.Describer); ok {
			out = append(out, d.Info())
			continue
		}
		out = append(out, shard.Info{ID: s.ID(), Latency: s.Latency()})
	}
	return out
}
