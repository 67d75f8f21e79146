// Package shardtest provides an in-memory shard.Shard for tests.
package shardtest

import (
	"context"
	"sync"
	"time"

	"github.com/Sedorikku1949/MioEngine/internal/shard"
)

// SentReply is a reply recorded by Fake.
type SentReply struct {
	To      shard.Message
	Content string
}

// Fake records every call made to it. Errors can be injected per operation.
type Fake struct {
	id int

	mu          sync.Mutex
	latency     time.Duration
	online      shard.OnlineStatus
	activity    shard.Activity
	activities  []shard.Activity
	statuses    []shard.OnlineStatus
	replies     []SentReply
	shutdowns   int
	activityErr error
	onlineErr   error
	replyErr    error
	shutdownErr error
}

// New returns a fake shard with the given ID, online and without latency.
func New(id int) *Fake {
	return &Fake{id: id, online: shard.StatusOnline}
}

// ID implements shard.Shard.
func (f *Fake) ID() int { return f.id }

// Latency implements shard.Shard.
func (f *Fake) Latency() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latency
}

// SetLatency sets the value reported by Latency.
func (f *Fake) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// SetActivity implements shard.Shard.
func (f *Fake) SetActivity(ctx context.Context, a shard.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activityErr != nil {
		return f.activityErr
	}
	f.activity = a
	f.activities = append(f.activities, a)
	return nil
}

// SetOnlineStatus implements shard.Shard.
func (f *Fake) SetOnlineStatus(ctx context.Context, s shard.OnlineStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onlineErr != nil {
		return f.onlineErr
	}
	f.online = s
	f.statuses = append(f.statuses, s)
	return nil
}

// Reply implements shard.Shard.
func (f *Fake) Reply(ctx context.Context, msg shard.Message, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, SentReply{To: msg, Content: content})
	return nil
}

// Shutdown implements shard.Shard.
func (f *Fake) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return f.shutdownErr
}

// Info implements shard.Describer.
func (f *Fake) Info() shard.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := shard.ConnReady
	if f.shutdowns > 0 {
		st = shard.ConnClosed
	}
	return shard.Info{
		ID:       f.id,
		State:    st,
		Latency:  f.latency,
		Online:   f.online,
		Activity: f.activity,
	}
}

// FailActivity makes SetActivity return err (nil clears it).
func (f *Fake) FailActivity(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activityErr = err
}

// FailOnlineStatus makes SetOnlineStatus return err (nil clears it).
func (f *Fake) FailOnlineStatus(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onlineErr = err
}

// FailReply makes Reply return err (nil clears it).
func (f *Fake) FailReply(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyErr = err
}

// FailShutdown makes Shutdown return err (nil clears it).
func (f *Fake) FailShutdown(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdownErr = err
}

// Activities returns every activity applied, oldest first.
func (f *Fake) Activities() []shard.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shard.Activity(nil), f.activities...)
}

// OnlineStatuses returns every online status applied, oldest first.
func (f *Fake) OnlineStatuses() []shard.OnlineStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shard.OnlineStatus(nil), f.statuses...)
}

// Online returns the current online status.
func (f *Fake) Online() shard.OnlineStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

// Replies returns every reply sent, oldest first.
func (f *Fake) Replies() []SentReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentReply(nil), f.replies...)
}

// Shutdowns returns how many times Shutdown was called.
func (f *Fake) Shutdowns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

var (
	_ shard.Shard     = (*Fake)(nil)
	_ shard.Describer = (*Fake)(nil)
)
