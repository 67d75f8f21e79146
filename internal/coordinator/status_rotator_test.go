package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sedorikku1949/MioEngine/internal/shard"
	"github.com/Sedorikku1949/MioEngine/internal/shard/shardtest"
	"github.com/Sedorikku1949/MioEngine/internal/state"
)

func newRotatorFixture(t *testing.T, st *state.State, ids ...int) (*StatusRotator, []*shardtest.Fake, *syncBuffer) {
	t.Helper()
	registry := NewShardRegistry(8)
	fakes := make([]*shardtest.Fake, 0, len(ids))
	for _, id := range ids {
		f := shardtest.New(id)
		fakes = append(fakes, f)
		require.NoError(t, registry.Register(f))
	}
	logs := &syncBuffer{}
	rotator := NewStatusRotator(st, registry, RotatorOptions{
		Interval: time.Hour,
		Logger:   zerolog.New(logs),
	})
	return rotator, fakes, logs
}

// TestRotationCycle verifies that n ticks visit every index once and
// return to the starting index.
func TestRotationCycle(t *testing.T) {
	st := newTestState(t)
	rotator, fakes, _ := newRotatorFixture(t, st, 0)
	ctx := context.Background()

	n := len(st.Snapshot().Statuses)
	start := rotator.Index()
	seen := make(map[int]bool, n)

	for i := 0; i < n; i++ {
		rotator.Tick(ctx)
		seen[rotator.Index()] = true
	}

	assert.Len(t, seen, n, "each tick must use a distinct index")
	assert.Equal(t, start, rotator.Index())

	names := make([]string, 0, n)
	for _, a := range fakes[0].Activities() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"two", "three", "one"}, names)
}

// TestRotationAppliesToEveryShard verifies that all shards get the same
// activity each tick.
func TestRotationAppliesToEveryShard(t *testing.T) {
	st := newTestState(t)
	rotator, fakes, _ := newRotatorFixture(t, st, 0, 1, 2)

	got := rotator.Tick(context.Background())

	want := shard.Activity{Kind: got.Kind, Name: got.Message}
	for _, f := range fakes {
		assert.Equal(t, []shard.Activity{want}, f.Activities())
	}
}

// TestRotationOverridePriority verifies maintenance > debug > dev > list.
func TestRotationOverridePriority(t *testing.T) {
	tests := []struct {
		name  string
		flags state.Flags
		want  string
	}{
		{"no override", state.Flags{}, "two"},
		{"dev", state.Flags{Dev: true}, "dev"},
		{"debug beats dev", state.Flags{Dev: true, Debug: true}, "debug"},
		{"maintenance beats dev", state.Flags{Dev: true, Maintenance: true}, "maintenance"},
		{"maintenance beats all", state.Flags{Dev: true, Debug: true, Maintenance: true}, "maintenance"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestState(t)
			st.SetDev(tt.flags.Dev)
			st.SetDebug(tt.flags.Debug)
			st.SetMaintenance(tt.flags.Maintenance)
			rotator, fakes, _ := newRotatorFixture(t, st, 0)

			got := rotator.Tick(context.Background())
			assert.Equal(t, tt.want, got.Message)
			require.Len(t, fakes[0].Activities(), 1)
			assert.Equal(t, tt.want, fakes[0].Activities()[0].Name)
		})
	}
}

// TestRotationKeepsIndexDuringOverride verifies that the index advances
// even while an override wins.
func TestRotationKeepsIndexDuringOverride(t *testing.T) {
	st := newTestState(t)
	rotator, _, _ := newRotatorFixture(t, st, 0)
	ctx := context.Background()

	st.SetMaintenance(true)
	rotator.Tick(ctx)
	assert.Equal(t, 1, rotator.Index())

	st.SetMaintenance(false)
	got := rotator.Tick(ctx)
	assert.Equal(t, "three", got.Message)
}

// TestRotationStreamingCarriesURL verifies the streaming URL is attached.
func TestRotationStreamingCarriesURL(t *testing.T) {
	st, err := state.New(state.Options{
		Prefix:       "!",
		Statuses:     []state.Status{{Message: "live", Kind: state.ActivityStreaming}},
		StreamingURL: "https://www.twitch.tv/mio",
	})
	require.NoError(t, err)
	rotator, fakes, _ := newRotatorFixture(t, st, 0)

	rotator.Tick(context.Background())

	require.Len(t, fakes[0].Activities(), 1)
	assert.Equal(t, shard.Activity{
		Kind: state.ActivityStreaming,
		Name: "live",
		URL:  "https://www.twitch.tv/mio",
	}, fakes[0].Activities()[0])
}

// TestRotationUnknownKind verifies an unknown kind warns, applies nothing
// and leaves later ticks unaffected.
func TestRotationUnknownKind(t *testing.T) {
	st, err := state.New(state.Options{
		Prefix: "!",
		Statuses: []state.Status{
			{Message: "known", Kind: state.ActivityWatching},
			{Message: "mystery", Kind: state.ActivityUnknown},
		},
	})
	require.NoError(t, err)
	rotator, fakes, logs := newRotatorFixture(t, st, 0, 1)
	ctx := context.Background()

	got := rotator.Tick(ctx)
	assert.Equal(t, state.ActivityUnknown, got.Kind)
	assert.Equal(t, 1, logs.count("status type was unknown"))
	for _, f := range fakes {
		assert.Empty(t, f.Activities())
	}

	got = rotator.Tick(ctx)
	assert.Equal(t, "known", got.Message)
	for _, f := range fakes {
		assert.Len(t, f.Activities(), 1)
	}
}

// TestRotationShardFailureIsIsolated verifies one failing shard does not
// stop the others.
func TestRotationShardFailureIsIsolated(t *testing.T) {
	st := newTestState(t)
	rotator, fakes, logs := newRotatorFixture(t, st, 0, 1, 2)
	fakes[1].FailActivity(errors.New("rate limited"))

	rotator.Tick(context.Background())

	assert.Len(t, fakes[0].Activities(), 1)
	assert.Empty(t, fakes[1].Activities())
	assert.Len(t, fakes[2].Activities(), 1)
	assert.Equal(t, 1, logs.count("failed to apply status"))
}

// TestRotationDoesNotTouchOnlineStatus verifies the rotator leaves a busy
// shard busy.
func TestRotationDoesNotTouchOnlineStatus(t *testing.T) {
	st := newTestState(t)
	rotator, fakes, _ := newRotatorFixture(t, st, 0)
	require.NoError(t, fakes[0].SetOnlineStatus(context.Background(), shard.StatusBusy))

	rotator.Tick(context.Background())

	assert.Equal(t, shard.StatusBusy, fakes[0].Online())
	assert.Len(t, fakes[0].OnlineStatuses(), 1)
}

// TestSelectStatus covers the pure selection function.
func TestSelectStatus(t *testing.T) {
	snap := newTestState(t).Snapshot()

	assert.Equal(t, "one", SelectStatus(snap, 0).Message)
	assert.Equal(t, "three", SelectStatus(snap, 2).Message)
	assert.Equal(t, "one", SelectStatus(snap, 7).Message, "out of range falls back to the first entry")

	snap.Flags.Dev = true
	assert.Equal(t, "dev", SelectStatus(snap, 2).Message)

	empty := state.Snapshot{}
	assert.Equal(t, state.ActivityUnknown, SelectStatus(empty, 0).Kind)
}

// TestStatusRotatorStartStop verifies the loop ticks and stops.
func TestStatusRotatorStartStop(t *testing.T) {
	st := newTestState(t)
	registry := NewShardRegistry(1)
	f := shardtest.New(0)
	require.NoError(t, registry.Register(f))

	rotator := NewStatusRotator(st, registry, RotatorOptions{Interval: 10 * time.Millisecond})
	done := make(chan struct{})
	go func() {
		rotator.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(f.Activities()) >= 2
	}, time.Second, 5*time.Millisecond)

	rotator.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("rotator did not stop")
	}
}

// TestStatusRotatorStartAfterStop verifies a loop started after Stop
// returns at once without touching any shard.
func TestStatusRotatorStartAfterStop(t *testing.T) {
	st := newTestState(t)
	registry := NewShardRegistry(1)
	f := shardtest.New(0)
	require.NoError(t, registry.Register(f))

	rotator := NewStatusRotator(st, registry, RotatorOptions{Interval: 5 * time.Millisecond})
	rotator.Stop()

	done := make(chan struct{})
	go func() {
		rotator.Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("late Start did not return")
	}

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.Activities())
}
