package shard

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Sedorikku1949/MioEngine/internal/state"
)

// Shard is one gateway connection serving a subset of the bot's guilds.
// Implementations must be safe for concurrent use: the dispatcher, the
// latency monitor and the status rotator all call into the same shard.
type Shard interface {
	// ID returns the shard index in [0, shard count).
	ID() int
	// Latency returns the last heartbeat round-trip, or 0 when none has
	// been measured yet.
	Latency() time.Duration
	// SetActivity replaces the displayed activity, keeping the online status.
	SetActivity(ctx context.Context, activity Activity) error
	// SetOnlineStatus replaces the online status, keeping the activity.
	SetOnlineStatus(ctx context.Context, status OnlineStatus) error
	// Reply posts content in the channel of msg as a reply to it.
	Reply(ctx context.Context, msg Message, content string) error
	// Shutdown closes the gateway connection.
	Shutdown(ctx context.Context) error
}

// OnlineStatus is the availability indicator shown next to the bot.
type OnlineStatus string

const (
	// StatusOnline is the normal indicator.
	StatusOnline OnlineStatus = "online"
	// StatusBusy is shown while the shard's latency is above threshold.
	StatusBusy OnlineStatus = "dnd"
)

// Activity is the rich presence line shown under the bot's name.
type Activity struct {
	Kind state.ActivityKind `json:"kind"`
	Name string             `json:"name"`
	URL  string             `json:"url,omitempty"` // streaming only
}

// Author identifies who sent a message.
type Author struct {
	ID  string `json:"id"`
	Tag string `json:"tag"` // display form, e.g. "name#0001"
	Bot bool   `json:"bot"`
}

// Message is an inbound chat message as seen by the dispatcher.
type Message struct {
	ShardID   int    `json:"shard_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Author    Author `json:"author"`
	Content   string `json:"content"`
}

// MessageHandler receives every inbound message of a shard.
type MessageHandler func(msg Message)

// ConnState is the lifecycle state of a shard connection.
type ConnState string

const (
	// ConnConnecting means the gateway session is being opened.
	ConnConnecting ConnState = "connecting"
	// ConnReady means the gateway acknowledged the session.
	ConnReady ConnState = "ready"
	// ConnClosed means Shutdown was called.
	ConnClosed ConnState = "closed"
)

// Stats counts the operations a shard has performed.
// Fields are updated atomically; read them through Snapshot.
type Stats struct {
	Messages        uint64 `json:"messages"`         // inbound messages delivered to the handler
	Replies         uint64 `json:"replies"`          // replies sent successfully
	PresenceUpdates uint64 `json:"presence_updates"` // presence updates sent successfully
	Failures        uint64 `json:"failures"`         // failed replies or presence updates
}

// Snapshot returns a consistent copy of the counters.
func (s *Stats) Snapshot() Stats {
	return Stats{
		Messages:        atomic.LoadUint64(&s.Messages),
		Replies:         atomic.LoadUint64(&s.Replies),
		PresenceUpdates: atomic.LoadUint64(&s.PresenceUpdates),
		Failures:        atomic.LoadUint64(&s.Failures),
	}
}

func (s *Stats) incMessages() { atomic.AddUint64(&s.Messages, 1) }
func (s *Stats) incReplies() { atomic.AddUint64(&s.Replies, 1) }
func (s *Stats) incPresence() { atomic.AddUint64(&s.PresenceUpdates, 1) }
func (s *Stats) incFailures() { atomic.AddUint64(&s.Failures, 1) }

// Info is a point-in-time description of a shard for the admin surface.
type Info struct {
	ID       int           `json:"id"`
	State    ConnState     `json:"state"`
	Latency  time.Duration `json:"latency"`
	Online   OnlineStatus  `json:"online"`
	Activity Activity      `json:"activity"`
	Stats    Stats         `json:"stats"`
}

// Describer is implemented by shards that can report Info.
type Describer interface {
	Info() Info
}
