package shard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/Sedorikku1949/MioEngine/internal/state"
)

// DiscordOptions configures a Discord gateway shard.
type DiscordOptions struct {
	Token      string
	ShardID    int
	ShardCount int
	Logger     zerolog.Logger
	OnMessage  MessageHandler
	OnReady    func(shardID int)
}

// Discord is a Shard backed by one discordgo session.
//
// The session owns the gateway connection; Discord only remembers the last
// online status and activity it sent so that each presence update carries
// both, and counts what it did.
type Discord struct {
	id      int
	session *discordgo.Session
	log     zerolog.Logger
	stats   Stats

	// presenceMu serializes presence updates so that concurrent callers
	// never send a stale online/activity pair.
	presenceMu sync.Mutex
	online     OnlineStatus
	activity   Activity

	mu    sync.RWMutex
	state ConnState
}

// NewDiscord creates a shard session. The connection is not opened until
// Open is called.
func NewDiscord(opts DiscordOptions) (*Discord, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("shard %d: empty bot token", opts.ShardID)
	}
	if opts.ShardCount < 1 || opts.ShardID < 0 || opts.ShardID >= opts.ShardCount {
		return nil, fmt.Errorf("shard %d: invalid shard index for count %d", opts.ShardID, opts.ShardCount)
	}

	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("shard %d: create session: %w", opts.ShardID, err)
	}
	session.ShardID = opts.ShardID
	session.ShardCount = opts.ShardCount
	session.Identify.Intents = discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	d := &Discord{
		id:      opts.ShardID,
		session: session,
		log:     opts.Logger.With().Int("shard", opts.ShardID).Logger(),
		online:  StatusOnline,
		state:   ConnConnecting,
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		d.setState(ConnReady)
		d.log.Info().Str("session", r.SessionID).Msg("shard ready")
		if opts.OnReady != nil {
			opts.OnReady(d.id)
		}
	})
	if opts.OnMessage != nil {
		session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			if m.Message == nil {
				return
			}
			d.stats.incMessages()
			opts.OnMessage(toMessage(d.id, m.Message))
		})
	}

	return d, nil
}

// Open connects the shard to the gateway.
func (d *Discord) Open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("shard %d: open gateway: %w", d.id, err)
	}
	return nil
}

// ID implements Shard.
func (d *Discord) ID() int { return d.id }

// Latency implements Shard. A heartbeat that has not been acknowledged yet
// yields a negative difference, which is reported as 0.
func (d *Discord) Latency() time.Duration {
	latency := d.session.HeartbeatLatency()
	if latency < 0 {
		return 0
	}
	return latency
}

// SetActivity implements Shard.
func (d *Discord) SetActivity(ctx context.Context, activity Activity) error {
	d.presenceMu.Lock()
	defer d.presenceMu.Unlock()

	d.activity = activity
	return d.sendPresence(ctx)
}

// SetOnlineStatus implements Shard.
func (d *Discord) SetOnlineStatus(ctx context.Context, status OnlineStatus) error {
	d.presenceMu.Lock()
	defer d.presenceMu.Unlock()

	d.online = status
	return d.sendPresence(ctx)
}

// sendPresence must be called with presenceMu held.
func (d *Discord) sendPresence(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.session.UpdateStatusComplex(presenceUpdate(d.online, d.activity)); err != nil {
		d.stats.incFailures()
		return fmt.Errorf("shard %d: update presence: %w", d.id, err)
	}
	d.stats.incPresence()
	return nil
}

// Reply implements Shard.
func (d *Discord) Reply(ctx context.Context, msg Message, content string) error {
	ref := &discordgo.MessageReference{
		MessageID: msg.MessageID,
		ChannelID: msg.ChannelID,
		GuildID:   msg.GuildID,
	}
	if _, err := d.session.ChannelMessageSendReply(msg.ChannelID, content, ref, discordgo.WithContext(ctx)); err != nil {
		d.stats.incFailures()
		return fmt.Errorf("shard %d: send reply: %w", d.id, err)
	}
	d.stats.incReplies()
	return nil
}

// Shutdown implements Shard.
func (d *Discord) Shutdown(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.setState(ConnClosed)
	if err := d.session.Close(); err != nil {
		return fmt.Errorf("shard %d: close gateway: %w", d.id, err)
	}
	return nil
}

// Info implements Describer.
func (d *Discord) Info() Info {
	d.presenceMu.Lock()
	online, activity := d.online, d.activity
	d.presenceMu.Unlock()

	d.mu.RLock()
	st := d.state
	d.mu.RUnlock()

	return Info{
		ID:       d.id,
		State:    st,
		Latency:  d.Latency(),
		Online:   online,
		Activity: activity,
		Stats:    d.stats.Snapshot(),
	}
}

func (d *Discord) setState(st ConnState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = st
}

// presenceUpdate builds the gateway payload for an online status and
// activity pair. An activity of unknown kind or without a name is omitted.
func presenceUpdate(online OnlineStatus, activity Activity) discordgo.UpdateStatusData {
	usd := discordgo.UpdateStatusData{Status: string(online)}
	if online == "" {
		usd.Status = string(discordgo.StatusOnline)
	}

	kind, ok := activityType(activity.Kind)
	if !ok || activity.Name == "" {
		return usd
	}
	a := &discordgo.Activity{Name: activity.Name, Type: kind}
	if activity.Kind == state.ActivityStreaming {
		a.URL = activity.URL
	}
	usd.Activities = []*discordgo.Activity{a}
	return usd
}

func activityType(kind state.ActivityKind) (discordgo.ActivityType, bool) {
	switch kind {
	case state.ActivityPlaying:
		return discordgo.ActivityTypeGame, true
	case state.ActivityStreaming:
		return discordgo.ActivityTypeStreaming, true
	case state.ActivityListening:
		return discordgo.ActivityTypeListening, true
	case state.ActivityWatching:
		return discordgo.ActivityTypeWatching, true
	default:
		return 0, false
	}
}

func toMessage(shardID int, m *discordgo.Message) Message {
	msg := Message{
		ShardID:   shardID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		GuildID:   m.GuildID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.Author = Author{ID: m.Author.ID, Tag: m.Author.String(), Bot: m.Author.Bot}
	}
	return msg
}
