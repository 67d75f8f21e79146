package admin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sedorikku1949/MioEngine/internal/coordinator"
	"github.com/Sedorikku1949/MioEngine/internal/logging"
	"github.com/Sedorikku1949/MioEngine/internal/metrics"
	"github.com/Sedorikku1949/MioEngine/internal/shard/shardtest"
	"github.com/Sedorikku1949/MioEngine/internal/state"
	"github.com/Sedorikku1949/MioEngine/internal/storage"
)

func newTestServer(t *testing.T) (*state.State, *storage.MemoryStore, *Client) {
	t.Helper()

	st, err := state.New(state.Options{
		Prefix:   "m!",
		Statuses: []state.Status{{Message: "hello", Kind: state.ActivityPlaying}},
	})
	require.NoError(t, err)

	registry := coordinator.NewShardRegistry(2)
	require.NoError(t, registry.Register(shardtest.New(0)))
	require.NoError(t, registry.Register(shardtest.New(1)))

	store := storage.NewMemoryStore()
	srv := New(Options{
		State:          st,
		Shards:         registry,
		Archive:        store,
		Metrics:        metrics.New(),
		Version:        "1.2.3",
		StreamInterval: 20 * time.Millisecond,
		Logger:         logging.Nop(),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return st, store, NewClient(ts.URL)
}

func TestHealth(t *testing.T) {
	_, _, c := newTestServer(t)

	var out map[string]string
	require.NoError(t, GetJSON(context.Background(), c.base+"/health", &out))
	assert.Equal(t, "ok", out["status"])
}

func TestStatus(t *testing.T) {
	_, store, c := newTestServer(t)
	require.NoError(t, store.Put("guilds", "1", []byte("fr")))

	status, err := c.Status(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, "m!", status.State.Prefix)
	require.Len(t, status.Shards, 2)
	assert.Equal(t, 0, status.Shards[0].ID)
	assert.Equal(t, 1, status.Shards[1].ID)
	require.NotNil(t, status.Archive)
	assert.Equal(t, 1, status.Archive.Keys)
}

func TestFlags(t *testing.T) {
	st, _, c := newTestServer(t)
	ctx := context.Background()

	flags, err := c.Flags(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Flags{}, flags)

	on := true
	flags, err = c.SetFlags(ctx, FlagsRequest{Maintenance: &on})
	require.NoError(t, err)
	assert.True(t, flags.Maintenance)
	assert.False(t, flags.Dev)
	assert.True(t, st.Flags().Maintenance)

	// Handler mode is fixed at startup
	flags, err = c.SetFlags(ctx, FlagsRequest{Dev: &on})
	require.NoError(t, err)
	assert.True(t, flags.Dev)
	assert.Equal(t, state.ModeProd, st.Snapshot().HandlerMode)
}

func TestFlagsRejectsEmptyRequest(t *testing.T) {
	_, _, c := newTestServer(t)

	_, err := c.SetFlags(context.Background(), FlagsRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no flag given")
}

func TestFlagsRejectsBadJSON(t *testing.T) {
	_, _, c := newTestServer(t)

	resp, err := http.Post(c.base+"/flags", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	_, _, c := newTestServer(t)

	resp, err := http.Get(c.base + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestArchiveRoutes(t *testing.T) {
	_, store, c := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "guilds", "a b", []byte("fr")))
	require.NoError(t, c.Put(ctx, "guilds", "c", []byte("en")))

	sections, err := c.Sections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"guilds"}, sections)

	keys, err := c.Keys(ctx, "guilds")
	require.NoError(t, err)
	assert.Equal(t, []string{"a b", "c"}, keys)

	value, err := c.Get(ctx, "guilds", "a b")
	require.NoError(t, err)
	assert.Equal(t, []byte("fr"), value)

	_, err = c.Get(ctx, "guilds", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	require.NoError(t, c.Delete(ctx, "guilds", "c"))
	_, err = store.Get("guilds", "c")
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestArchiveRoutesDisabled(t *testing.T) {
	st, err := state.New(state.Options{
		Prefix:   "m!",
		Statuses: []state.Status{{Message: "hello", Kind: state.ActivityPlaying}},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(New(Options{State: st, Logger: logging.Nop()}).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/archive/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStateStream(t *testing.T) {
	st, _, c := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + "/ws/state"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var first StatusResponse
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.False(t, first.State.Flags.Debug)

	st.SetDebug(true)

	// A later frame reflects the change
	for {
		var next StatusResponse
		require.NoError(t, wsjson.Read(ctx, conn, &next))
		if next.State.Flags.Debug {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestStartAndShutdown(t *testing.T) {
	st, err := state.New(state.Options{
		Prefix:   "m!",
		Statuses: []state.Status{{Message: "hello", Kind: state.ActivityPlaying}},
	})
	require.NoError(t, err)

	srv := New(Options{Addr: "127.0.0.1:0", State: st, Logger: logging.Nop()})
	require.NoError(t, srv.Start())

	c := NewClient(srv.Addr())
	_, err = c.Flags(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func TestNewClientAddsScheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:7878", NewClient("127.0.0.1:7878/").base)
	assert.Equal(t, "https://mio.local", NewClient("https://mio.local").base)
}
