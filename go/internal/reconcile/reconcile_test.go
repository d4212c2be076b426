package reconcile_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/reconcile"
	"github.com/mcdev12/respawn/go/internal/reconcile/boltcache"
	"github.com/mcdev12/respawn/go/internal/timers"
	"github.com/mcdev12/respawn/go/internal/timers/memory"
)

const room = timers.RoomKey("main")

func setup(t *testing.T) (*timers.Store, *reconcile.Reconciler) {
	t.Helper()
	cache, err := boltcache.Open(filepath.Join(t.TempDir(), "cache.bolt"))
	require.NoError(t, err)

	store := timers.NewStore(memory.New())
	rec := reconcile.New(cache, store)
	store.AddObserver(rec)
	t.Cleanup(func() { _ = rec.Close() })
	return store, rec
}

func sample() []models.Timer {
	return []models.Timer{
		{ID: "a", EntityName: "dragon", KillTime: 1, NextSpawn: 10},
		{ID: "b", EntityName: "giant", KillTime: 2, NextSpawn: 20},
	}
}

func TestReconciler_ObserveSkipsEmpty(t *testing.T) {
	ctx := context.Background()
	_, rec := setup(t)

	rec.Observe(room, sample())
	rec.Observe(room, nil)

	got, err := rec.LastGood(ctx, room)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReconciler_LastGoodNeverMutatesStore(t *testing.T) {
	ctx := context.Background()
	store, rec := setup(t)

	rec.Observe(room, sample())

	for i := 0; i < 3; i++ {
		_, err := rec.LastGood(ctx, room)
		require.NoError(t, err)
	}

	live, err := store.List(ctx, room)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestReconciler_StoreReadsFeedCache(t *testing.T) {
	ctx := context.Background()
	store, rec := setup(t)

	require.NoError(t, store.ReplaceAll(ctx, room, sample()))
	_, err := store.List(ctx, room)
	require.NoError(t, err)

	require.NoError(t, store.ReplaceAll(ctx, room, nil))
	_, err = store.List(ctx, room)
	require.NoError(t, err)

	got, err := rec.LastGood(ctx, room)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReconciler_AssessAndRestore(t *testing.T) {
	ctx := context.Background()
	store, rec := setup(t)

	state, err := rec.Assess(ctx, room, nil)
	require.NoError(t, err)
	assert.Equal(t, reconcile.RoomFresh, state)

	_, err = rec.Restore(ctx, room)
	assert.ErrorIs(t, err, reconcile.ErrNoSnapshot)

	rec.Observe(room, sample())

	state, err = rec.Assess(ctx, room, nil)
	require.NoError(t, err)
	assert.Equal(t, reconcile.RoomRecoverable, state)

	state, err = rec.Assess(ctx, room, sample())
	require.NoError(t, err)
	assert.Equal(t, reconcile.RoomPopulated, state)

	restored, err := rec.Restore(ctx, room)
	require.NoError(t, err)
	assert.Len(t, restored, 2)

	live, err := store.List(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, sample(), live)
}

func TestReconciler_RestoreKeepsNewestRecordPerEntity(t *testing.T) {
	ctx := context.Background()
	store, rec := setup(t)

	rec.Observe(room, []models.Timer{
		{ID: "old", EntityName: "dragon", KillTime: 1, NextSpawn: 10},
		{ID: "b", EntityName: "giant", KillTime: 2, NextSpawn: 20},
		{ID: "new", EntityName: "dragon", KillTime: 5, NextSpawn: 50},
	})

	restored, err := rec.Restore(ctx, room)
	require.NoError(t, err)
	require.Len(t, restored, 2)

	live, err := store.List(ctx, room)
	require.NoError(t, err)
	ids := []string{live[0].ID, live[1].ID}
	assert.Equal(t, []string{"b", "new"}, ids)
}
