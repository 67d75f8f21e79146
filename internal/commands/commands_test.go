package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sedorikku1949/MioEngine/internal/i18n"
	"github.com/Sedorikku1949/MioEngine/internal/shard"
	"github.com/Sedorikku1949/MioEngine/internal/shard/shardtest"
	"github.com/Sedorikku1949/MioEngine/internal/state"
)

type shardMap map[int]*shardtest.Fake

func (m shardMap) Get(id int) (shard.Shard, bool) {
	f, ok := m[id]
	if !ok {
		return nil, false
	}
	return f, true
}

func (m shardMap) Count() int { return len(m) }

type fixture struct {
	state  *state.State
	shards shardMap
	logs   *bytes.Buffer
	d      *Dispatcher
}

func newFixture(t *testing.T, dev bool, extra ...Command) *fixture {
	t.Helper()
	st, err := state.New(state.Options{
		Prefix:   "!",
		Dev:      dev,
		Statuses: []state.Status{{Message: "hi", Kind: state.ActivityPlaying}},
	})
	require.NoError(t, err)

	table, err := NewTable(append(Builtins(), extra...)...)
	require.NoError(t, err)

	catalog, err := i18n.NewDefault("en")
	require.NoError(t, err)

	f := &fixture{state: st, shards: shardMap{0: shardtest.New(0)}, logs: &bytes.Buffer{}}
	f.d, err = NewDispatcher(Options{
		State:       st,
		Table:       table,
		Shards:      f.shards,
		Catalog:     catalog,
		Locale:      "en",
		Version:     "1.2.3",
		Logger:      zerolog.New(f.logs),
		MemoryUsage: func(context.Context) (uint64, error) { return 64 << 20, nil },
	})
	require.NoError(t, err)
	return f
}

func msg(content string) shard.Message {
	return shard.Message{
		ShardID:   0,
		ChannelID: "c",
		MessageID: "m",
		Author:    shard.Author{ID: "u", Tag: "someone#0001"},
		Content:   content,
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Invocation
		ok      bool
	}{
		{"bare command", "!ping", Invocation{Name: "ping", Args: []string{}}, true},
		{"with args", "!say  hello   world", Invocation{Name: "say", Args: []string{"hello", "world"}}, true},
		{"tabs and newlines", "!say\thello\nworld", Invocation{Name: "say", Args: []string{"hello", "world"}}, true},
		{"space after prefix", "! ping", Invocation{Name: "ping", Args: []string{}}, true},
		{"no prefix", "hello", Invocation{}, false},
		{"prefix only", "!", Invocation{}, false},
		{"prefix and whitespace", "!  ", Invocation{}, false},
		{"empty", "", Invocation{}, false},
		{"whitespace", "   ", Invocation{}, false},
		{"prefix not at start", " !ping", Invocation{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse("!", tt.content)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want.Name, got.Name)
				assert.Equal(t, tt.want.Args, got.Args)
			}
		})
	}

	t.Run("multi character prefix", func(t *testing.T) {
		got, ok := Parse("mio!", "mio!help me")
		require.True(t, ok)
		assert.Equal(t, "help", got.Name)
		assert.Equal(t, []string{"me"}, got.Args)
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindTooEarly, KindOf(Errorf(KindTooEarly, "wait")))
	assert.Equal(t, KindInvalidData, KindOf(fmt.Errorf("wrapped: %w", Errorf(KindInvalidData, "bad"))))

	err := &Error{Kind: KindMessageNotSent, Cause: context.Canceled}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "message_not_sent: context canceled", err.Error())
	assert.Equal(t, "too_early", (&Error{Kind: KindTooEarly}).Error())
}

func TestNewTable(t *testing.T) {
	noop := func(context.Context, *Request) error { return nil }

	table, err := NewTable(Command{Name: "b", Run: noop}, Command{Name: "a", Run: noop})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, "a", table.Commands()[0].Name)

	_, ok := table.Lookup("A")
	assert.False(t, ok, "lookup is exact")

	_, err = NewTable(Command{Name: "a", Run: noop}, Command{Name: "a", Run: noop})
	assert.Error(t, err)
	_, err = NewTable(Command{Name: "", Run: noop})
	assert.Error(t, err)
	_, err = NewTable(Command{Name: "x"})
	assert.Error(t, err)
}

func TestDispatchSkips(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	bot := msg("!ping")
	bot.Author.Bot = true
	assert.False(t, f.d.Dispatch(ctx, bot).Dispatched)
	assert.False(t, f.d.Dispatch(ctx, msg("hello")).Dispatched)
	assert.False(t, f.d.Dispatch(ctx, msg("!   ")).Dispatched)
	assert.Empty(t, f.shards[0].Replies())
	assert.Empty(t, f.logs.String())
}

func TestDispatchCommandNotFound(t *testing.T) {
	f := newFixture(t, false)

	res := f.d.Dispatch(context.Background(), msg("!nope"))

	assert.True(t, res.Dispatched)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, KindCommandNotFound, res.Kind)
	assert.Contains(t, f.logs.String(), `"level":"warn"`)
	assert.Contains(t, f.logs.String(), `"kind":"command_not_found"`)
	assert.Empty(t, f.shards[0].Replies())
}

func TestPingTooEarly(t *testing.T) {
	f := newFixture(t, false)
	f.state.ReplaceLatency(map[int]state.LatencyRecord{0: {Ping: 0}})

	res := f.d.Dispatch(context.Background(), msg("!ping"))

	assert.Equal(t, KindTooEarly, res.Kind)
	replies := f.shards[0].Replies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Content, "still starting up")
	assert.Contains(t, f.logs.String(), `"level":"warn"`)
	assert.NotContains(t, f.logs.String(), `"level":"error"`)
}

func TestPingWithoutRecord(t *testing.T) {
	f := newFixture(t, false)

	res := f.d.Dispatch(context.Background(), msg("!ping"))

	assert.Equal(t, KindInvalidData, res.Kind)
	require.Len(t, f.shards[0].Replies(), 1)
	assert.Contains(t, f.shards[0].Replies()[0].Content, "still starting up")
	assert.Contains(t, f.logs.String(), `"level":"error"`)
}

func TestPingPong(t *testing.T) {
	f := newFixture(t, false)
	f.state.ReplaceLatency(map[int]state.LatencyRecord{0: {Ping: 42 * time.Millisecond}})

	res := f.d.Dispatch(context.Background(), msg("!ping"))

	assert.Equal(t, KindNone, res.Kind)
	require.Len(t, f.shards[0].Replies(), 1)
	assert.Equal(t, "Pong! 42ms (shard 0)", f.shards[0].Replies()[0].Content)
	assert.Equal(t, "m", f.shards[0].Replies()[0].To.MessageID)
	assert.Empty(t, f.logs.String(), "no trace outside dev mode")
}

func TestDevTrace(t *testing.T) {
	f := newFixture(t, true)
	f.state.ReplaceLatency(map[int]state.LatencyRecord{0: {Ping: time.Millisecond}})

	res := f.d.Dispatch(context.Background(), msg("!ping"))

	assert.Equal(t, KindNone, res.Kind)
	assert.Contains(t, f.logs.String(), "command used")
	assert.Contains(t, f.logs.String(), "someone#0001")
	assert.Contains(t, f.logs.String(), `"cmd":"ping"`)
}

func TestReplyFailureIsContained(t *testing.T) {
	f := newFixture(t, true)
	f.state.ReplaceLatency(map[int]state.LatencyRecord{0: {Ping: time.Millisecond}})
	f.shards[0].FailReply(errors.New("missing access"))

	res := f.d.Dispatch(context.Background(), msg("!ping"))

	assert.Equal(t, KindNone, res.Kind)
	assert.NoError(t, res.Err)
	logs := f.logs.String()
	assert.Contains(t, logs, `"level":"warn"`)
	assert.Contains(t, logs, "reply not sent")
	assert.Contains(t, logs, "missing access")
	assert.NotContains(t, logs, `"level":"error"`)
	assert.NotContains(t, logs, "command failed")
	assert.Contains(t, logs, "command used")

	// the next message is still served
	f.shards[0].FailReply(nil)
	res = f.d.Dispatch(context.Background(), msg("!ping"))
	assert.Equal(t, KindNone, res.Kind)
	assert.Len(t, f.shards[0].Replies(), 1)
}

func TestReplyToUnregisteredShard(t *testing.T) {
	f := newFixture(t, false)
	m := msg("!help")
	m.ShardID = 5

	res := f.d.Dispatch(context.Background(), m)

	assert.Equal(t, KindNone, res.Kind)
	assert.Contains(t, f.logs.String(), "reply dropped")
	assert.NotContains(t, f.logs.String(), "command failed")
}

func TestPanicIsRecovered(t *testing.T) {
	boom := Command{Name: "boom", Help: "help.help", Run: func(context.Context, *Request) error {
		panic("handler bug")
	}}
	f := newFixture(t, false, boom)

	var res Result
	require.NotPanics(t, func() {
		res = f.d.Dispatch(context.Background(), msg("!boom"))
	})
	assert.Equal(t, KindUnknown, res.Kind)
	assert.Contains(t, res.Err.Error(), "handler bug")
	assert.Contains(t, f.logs.String(), `"level":"error"`)
}

func TestTreatedExceptionIsSilent(t *testing.T) {
	handled := Command{Name: "handled", Help: "help.help", Run: func(ctx context.Context, req *Request) error {
		_ = req.Reply(ctx, "sorry")
		return &Error{Kind: KindTreatedException}
	}}
	f := newFixture(t, false, handled)

	res := f.d.Dispatch(context.Background(), msg("!handled"))

	assert.Equal(t, KindTreatedException, res.Kind)
	assert.Empty(t, f.logs.String())
	assert.Len(t, f.shards[0].Replies(), 1)
}

func TestArgsReachHandler(t *testing.T) {
	var got []string
	echo := Command{Name: "echo", Help: "help.help", Run: func(ctx context.Context, req *Request) error {
		got = req.Args
		return nil
	}}
	f := newFixture(t, false, echo)

	f.d.Dispatch(context.Background(), msg("!echo a  b"))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestHelp(t *testing.T) {
	f := newFixture(t, false)

	res := f.d.Dispatch(context.Background(), msg("!help"))

	require.Equal(t, KindNone, res.Kind)
	content := f.shards[0].Replies()[0].Content
	lines := strings.Split(content, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Available commands:", lines[0])
	assert.Equal(t, "!help: lists the available commands", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "!info: "))
	assert.True(t, strings.HasPrefix(lines[3], "!ping: "))
}

func TestInfo(t *testing.T) {
	f := newFixture(t, false)

	res := f.d.Dispatch(context.Background(), msg("!info"))

	require.Equal(t, KindNone, res.Kind)
	content := f.shards[0].Replies()[0].Content
	assert.Contains(t, content, "MioEngine 1.2.3")
	assert.Contains(t, content, "Shards: 1")
	assert.Contains(t, content, "Mode: prod")
	assert.Contains(t, content, "Memory: 67 MB")
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(Options{})
	assert.Error(t, err)
}
