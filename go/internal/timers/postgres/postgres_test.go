package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/timers"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		denied      bool
		unavailable bool
	}{
		{name: "insufficient privilege", err: &pgconn.PgError{Code: "42501"}, denied: true},
		{name: "bad password", err: fmt.Errorf("connect: %w", &pgconn.PgError{Code: "28P01"}), denied: true},
		{name: "pq insufficient privilege", err: &pq.Error{Code: "42501"}, denied: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}},
		{name: "deadline", err: context.DeadlineExceeded, unavailable: true},
		{name: "other", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.denied, timers.IsAccessDenied(got))
			assert.Equal(t, tt.unavailable, timers.IsUnavailable(got))
		})
	}
	assert.NoError(t, mapError(nil))
}

func newIntegrationBackend(t *testing.T) *Backend {
	t.Helper()
	dsn := os.Getenv("RESPAWN_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("RESPAWN_TEST_DATABASE_URL not set")
	}

	cfg := DefaultConfig()
	cfg.DSN = dsn
	cfg.FallbackInterval = time.Second

	b, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_Integration(t *testing.T) {
	b := newIntegrationBackend(t)
	ctx := context.Background()
	store := timers.NewStore(b)
	room := timers.RoomKey("it-" + uuid.NewString())

	updates := make(chan []models.Timer, 16)
	sub, err := store.Subscribe(ctx, room, func(ts []models.Timer) { updates <- ts }, nil)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, store.Add(ctx, room, models.Timer{ID: "a", EntityName: "dragon", KillTime: 1, NextSpawn: 2}))
	require.NoError(t, store.Add(ctx, room, models.Timer{ID: "b", EntityName: "dragon", KillTime: 3, NextSpawn: 4}))
	require.NoError(t, store.Add(ctx, room, models.Timer{ID: "c", EntityName: "giant", KillTime: 3, NextSpawn: 5}))

	require.Eventually(t, func() bool {
		for {
			select {
			case ts := <-updates:
				if len(ts) == 2 && ts[0].ID == "b" && ts[1].ID == "c" {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, store.ReplaceAll(ctx, room, []models.Timer{{ID: "z", EntityName: "phoenix", KillTime: 1, NextSpawn: 1}}))
	got, err := store.List(ctx, room)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "z", got[0].ID)

	require.NoError(t, store.Remove(ctx, room, "z"))
	got, err = store.List(ctx, room)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBackend_IntegrationRevisionsGrow(t *testing.T) {
	b := newIntegrationBackend(t)
	ctx := context.Background()
	room := timers.RoomKey("rev-" + uuid.NewString())

	first, err := b.Load(ctx, room)
	require.NoError(t, err)
	assert.Zero(t, first.Revision)

	require.NoError(t, b.Apply(ctx, room, timers.Mutation{Puts: []models.Timer{{ID: "a", EntityName: "dragon"}}}))
	second, err := b.Load(ctx, room)
	require.NoError(t, err)
	assert.Greater(t, second.Revision, first.Revision)
}
