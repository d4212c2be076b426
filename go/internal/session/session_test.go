package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/respawn/go/internal/catalog"
	"github.com/mcdev12/respawn/go/internal/command"
	"github.com/mcdev12/respawn/go/internal/inference"
	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/reconcile"
	"github.com/mcdev12/respawn/go/internal/reconcile/boltcache"
	"github.com/mcdev12/respawn/go/internal/timers"
	"github.com/mcdev12/respawn/go/internal/timers/memory"
)

// 2024-05-01 is a Wednesday.
var noon = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	backend *memory.Backend
	store   *timers.Store
	rec     *reconcile.Reconciler
	clock   *clockwork.FakeClock
	session *Session
}

func setup(t *testing.T) *fixture {
	t.Helper()
	backend := memory.New()
	return setupWith(t, backend, backend)
}

func setupWith(t *testing.T, backend *memory.Backend, transport timers.Backend) *fixture {
	t.Helper()
	store := timers.NewStore(transport)

	cache, err := boltcache.Open(filepath.Join(t.TempDir(), "cache.bolt"))
	require.NoError(t, err)
	rec := reconcile.New(cache, store)
	store.AddObserver(rec)

	clock := clockwork.NewFakeClockAt(noon)
	s, err := New(Config{
		Catalog:          catalog.Default(),
		Store:            store,
		Reconciler:       rec,
		Clock:            clock,
		Location:         time.UTC,
		AccessDeniedHint: "ask an admin",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
		_ = rec.Close()
	})
	return &fixture{backend: backend, store: store, rec: rec, clock: clock, session: s}
}

func (f *fixture) join(t *testing.T, room string) {
	t.Helper()
	f.session.SetDraft(room)
	require.NoError(t, f.session.Commit(context.Background()))
}

func waitTimers(t *testing.T, s *Session, cond func([]models.Timer) bool) []models.Timer {
	t.Helper()
	var got []models.Timer
	require.Eventually(t, func() bool {
		got = s.Timers()
		return cond(got)
	}, time.Second, 5*time.Millisecond)
	return got
}

func hasLen(n int) func([]models.Timer) bool {
	return func(ts []models.Timer) bool { return len(ts) == n }
}

func TestNew_RequiresCatalogAndStore(t *testing.T) {
	_, err := New(Config{Store: timers.NewStore(memory.New())})
	assert.Error(t, err)
	_, err = New(Config{Catalog: catalog.Default()})
	assert.Error(t, err)
}

func TestSession_DraftDoesNotSwitchRooms(t *testing.T) {
	f := setup(t)
	f.join(t, "Alpha")
	assert.Equal(t, timers.RoomKey("alpha"), f.session.Room())

	f.session.SetDraft("beta")
	assert.Equal(t, timers.RoomKey("alpha"), f.session.Room())
	assert.Equal(t, timers.RoomKey("beta"), f.session.Draft())

	_, err := f.session.Submit(context.Background(), "1000 東飛", inference.ModeKill)
	require.NoError(t, err)

	beta, err := f.store.List(context.Background(), "beta")
	require.NoError(t, err)
	assert.Empty(t, beta)

	alpha, err := f.store.List(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Len(t, alpha, 1)
}

func TestSession_RoomSwitchIgnoresOldRoom(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "alpha")

	_, err := f.session.Submit(ctx, "1000 東飛", inference.ModeKill)
	require.NoError(t, err)
	waitTimers(t, f.session, hasLen(1))

	f.join(t, "beta")
	assert.Empty(t, f.session.Timers())

	require.NoError(t, f.store.Add(ctx, "alpha", models.Timer{ID: "x", EntityName: "不死鳥", KillTime: 1, NextSpawn: 2}))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.session.Timers())

	require.NoError(t, f.store.Add(ctx, "beta", models.Timer{ID: "y", EntityName: "不死鳥", KillTime: 1, NextSpawn: 2}))
	got := waitTimers(t, f.session, hasLen(1))
	assert.Equal(t, "y", got[0].ID)
}

func TestSession_WritesRequireRoom(t *testing.T) {
	f := setup(t)
	_, err := f.session.Submit(context.Background(), "1000 東飛", inference.ModeKill)
	assert.ErrorIs(t, err, ErrNoRoom)
}

func TestSession_Submit(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "main")

	tm, err := f.session.Submit(ctx, "1000 東飛 過", inference.ModeKill)
	require.NoError(t, err)
	require.NotNil(t, tm)

	assert.Equal(t, "85飛龍", tm.EntityName)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).UnixMilli(), tm.KillTime)
	assert.Equal(t, time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC).UnixMilli(), tm.NextSpawn)
	assert.True(t, tm.IsPass)
	assert.Equal(t, "1000 東飛 過", tm.OriginalInput)
	assert.NotEmpty(t, tm.ID)

	spawn, err := f.session.Submit(ctx, "1100 東飛", inference.ModeSpawn)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 2, 11, 0, 0, 0, time.UTC).UnixMilli(), spawn.NextSpawn)

	got := waitTimers(t, f.session, func(ts []models.Timer) bool { return len(ts) == 1 && ts[0].ID == spawn.ID })
	assert.False(t, got[0].IsPass)
}

func TestSession_SubmitFailures(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "main")

	_, err := f.session.Submit(ctx, "hello", inference.ModeKill)
	assert.ErrorIs(t, err, command.ErrParse)

	tm, err := f.session.Submit(ctx, "1000 哥布林", inference.ModeKill)
	assert.NoError(t, err)
	assert.Nil(t, tm)

	live, err := f.store.List(ctx, "main")
	require.NoError(t, err)
	assert.Empty(t, live)

	f.backend.SetReachable(false)
	_, err = f.session.Submit(ctx, "1000 東飛", inference.ModeKill)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSession_AccessDeniedIsSticky(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "main")

	_, err := f.session.Submit(ctx, "1000 東飛", inference.ModeKill)
	require.NoError(t, err)
	waitTimers(t, f.session, hasLen(1))

	f.backend.SetAccessDenied(true)
	_, err = f.session.Submit(ctx, "1000 不死鳥", inference.ModeKill)
	assert.True(t, timers.IsAccessDenied(err))
	assert.True(t, f.session.AccessDenied())

	st := f.session.Status(ctx)
	assert.True(t, st.AccessDenied)
	assert.True(t, st.FromCache)
	assert.Equal(t, "ask an admin", st.AccessDeniedHint)
	require.Len(t, st.Timers, 1)
	assert.Equal(t, "85飛龍", st.Timers[0].EntityName)

	f.backend.SetAccessDenied(false)
	assert.True(t, f.session.AccessDenied())

	f.session.ClearAccessDenied()
	assert.False(t, f.session.AccessDenied())

	f.backend.SetAccessDenied(true)
	_, err = f.session.Submit(ctx, "1000 不死鳥", inference.ModeKill)
	require.Error(t, err)
	require.True(t, f.session.AccessDenied())

	f.backend.SetAccessDenied(false)
	f.join(t, "other")
	assert.False(t, f.session.AccessDenied())
}

func TestSession_QuickActions(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "main")

	tm, err := f.session.Submit(ctx, "1000 東飛", inference.ModeKill)
	require.NoError(t, err)
	waitTimers(t, f.session, hasLen(1))

	require.NoError(t, f.session.Pass(ctx, tm.ID))
	waitTimers(t, f.session, func(ts []models.Timer) bool { return len(ts) == 1 && ts[0].IsPass })

	require.NoError(t, f.session.MarkUnknown(ctx, tm.ID))
	waitTimers(t, f.session, func(ts []models.Timer) bool { return len(ts) == 1 && ts[0].Note == models.NoteUnknown })

	require.NoError(t, f.session.Edit(ctx, tm.ID, "0930", inference.ModeKill, false))
	got := waitTimers(t, f.session, func(ts []models.Timer) bool {
		return len(ts) == 1 && ts[0].KillTime == time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC).UnixMilli()
	})
	assert.Equal(t, tm.ID, got[0].ID)
	assert.False(t, got[0].IsPass)
	assert.Equal(t, models.NoteNone, got[0].Note)

	killed, err := f.session.Kill(ctx, tm.ID)
	require.NoError(t, err)
	assert.NotEqual(t, tm.ID, killed.ID)
	assert.Equal(t, noon.UnixMilli(), killed.KillTime)
	assert.Equal(t, noon.Add(3*time.Hour).UnixMilli(), killed.NextSpawn)
	got = waitTimers(t, f.session, func(ts []models.Timer) bool { return len(ts) == 1 && ts[0].ID == killed.ID })
	assert.False(t, got[0].IsPass)

	assert.ErrorIs(t, f.session.Pass(ctx, "missing"), ErrUnknownTimer)
	assert.ErrorIs(t, f.session.Edit(ctx, killed.ID, "99", inference.ModeKill, false), inference.ErrInvalidTime)

	require.NoError(t, f.session.Remove(ctx, killed.ID))
	waitTimers(t, f.session, hasLen(0))
}

func TestSession_KillRejectsEntityOutsideCatalog(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "main")

	stray := models.Timer{ID: "x", EntityName: "ghost", KillTime: noon.UnixMilli(), NextSpawn: noon.UnixMilli()}
	require.NoError(t, f.store.ReplaceAll(ctx, "main", []models.Timer{stray}))
	waitTimers(t, f.session, hasLen(1))

	killed, err := f.session.Kill(ctx, "x")
	assert.ErrorIs(t, err, ErrUnknownTimer)
	assert.Nil(t, killed)

	live, err := f.store.List(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []models.Timer{stray}, live)
}

func TestMaintenanceTime(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "monday", now: time.Date(2024, 4, 29, 8, 0, 0, 0, time.UTC), want: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		{name: "wednesday", now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), want: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		{name: "saturday", now: time.Date(2024, 5, 4, 23, 0, 0, 0, time.UTC), want: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		{name: "sunday belongs to the previous week", now: time.Date(2024, 5, 5, 10, 0, 0, 0, time.UTC), want: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(MaintenanceTime(tt.now)), "got %s", MaintenanceTime(tt.now))
		})
	}
}

func TestSession_MaintenanceReset(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "main")

	_, err := f.session.Submit(ctx, "1000 東飛", inference.ModeKill)
	require.NoError(t, err)

	ts, err := f.session.MaintenanceReset(ctx)
	require.NoError(t, err)
	require.Len(t, ts, len(catalog.Default().Entities()))

	reset := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).UnixMilli()
	for _, tm := range ts {
		assert.Equal(t, reset, tm.NextSpawn)
		assert.Equal(t, models.NoteMaintenance, tm.Note)
		assert.LessOrEqual(t, tm.KillTime, tm.NextSpawn)
	}
	waitTimers(t, f.session, hasLen(len(ts)))
}

func TestSession_RestoreFromCache(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "main")

	_, err := f.session.Submit(ctx, "1000 東飛", inference.ModeKill)
	require.NoError(t, err)
	waitTimers(t, f.session, hasLen(1))

	require.NoError(t, f.store.ReplaceAll(ctx, "main", nil))
	waitTimers(t, f.session, hasLen(0))

	st := f.session.Status(ctx)
	assert.Equal(t, reconcile.RoomRecoverable, st.Recovery)
	assert.Equal(t, 1, st.CachedCount)

	restored, err := f.session.RestoreFromCache(ctx)
	require.NoError(t, err)
	assert.Len(t, restored, 1)
	waitTimers(t, f.session, hasLen(1))

	state, err := f.session.Assess(ctx)
	require.NoError(t, err)
	assert.Equal(t, reconcile.RoomPopulated, state)
}

func TestSession_RemembersLastRoom(t *testing.T) {
	f := setup(t)
	f.join(t, "Guild")

	mem, ok := f.rec.Cache().(reconcile.RoomMemory)
	require.True(t, ok)
	room, found, err := mem.LastRoom(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, timers.RoomKey("guild"), room)
}

func TestSession_DriftLoopCorrectsOverdueTimers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.join(t, "main")

	// 85飛龍 respawns every 3h: killed 08:00, due 11:00, overdue by 12:00 minus 30m tolerance.
	tm, err := f.session.Submit(ctx, "0800 東飛", inference.ModeKill)
	require.NoError(t, err)
	waitTimers(t, f.session, hasLen(1))

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(drift5s)

	got := waitTimers(t, f.session, func(ts []models.Timer) bool {
		return len(ts) == 1 && ts[0].Note == models.NoteLost
	})
	assert.Equal(t, tm.ID, got[0].ID)
	assert.True(t, got[0].IsPass)
	assert.Equal(t, time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC).UnixMilli(), got[0].NextSpawn)
}

const drift5s = 5 * time.Second

// readOnlyBackend rejects writes while denied but keeps watches healthy.
type readOnlyBackend struct {
	*memory.Backend
	denied atomic.Bool
	writes atomic.Int32
}

func (b *readOnlyBackend) Apply(ctx context.Context, room timers.RoomKey, m timers.Mutation) error {
	if b.denied.Load() {
		b.writes.Add(1)
		return fmt.Errorf("%w: read only member", timers.ErrAccessDenied)
	}
	return b.Backend.Apply(ctx, room, m)
}

func TestSession_DeniedDriftWriteIsStickyAndStopsRetrying(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	backend := &readOnlyBackend{Backend: mem}
	f := setupWith(t, mem, backend)
	f.join(t, "main")

	_, err := f.session.Submit(ctx, "0800 東飛", inference.ModeKill)
	require.NoError(t, err)
	waitTimers(t, f.session, hasLen(1))

	backend.denied.Store(true)
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(drift5s)

	require.Eventually(t, f.session.AccessDenied, time.Second, 5*time.Millisecond)
	assert.True(t, f.session.Status(ctx).AccessDenied)

	for i := 0; i < 3; i++ {
		f.clock.Advance(drift5s)
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), backend.writes.Load())

	backend.denied.Store(false)
	f.session.ClearAccessDenied()
	f.clock.Advance(drift5s)
	waitTimers(t, f.session, func(ts []models.Timer) bool {
		return len(ts) == 1 && ts[0].Note == models.NoteLost
	})
}
