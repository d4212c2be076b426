package sqlitecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/respawn/go/internal/models"
)

func setupCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestCache_SaveLoadOverwrite(t *testing.T) {
	ctx := context.Background()
	c := setupCache(t)

	got, err := c.Load(ctx, "main")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.Save(ctx, "main", []models.Timer{{ID: "a", EntityName: "dragon"}}))
	require.NoError(t, c.Save(ctx, "main", []models.Timer{{ID: "b", EntityName: "giant"}, {ID: "c", EntityName: "phoenix"}}))

	got, err = c.Load(ctx, "main")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
}

func TestCache_SavedAt(t *testing.T) {
	ctx := context.Background()
	c := setupCache(t)

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = time.Now }()

	_, ok, err := c.SavedAt(ctx, "main")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Save(ctx, "main", []models.Timer{{ID: "a"}}))
	at, ok, err := c.SavedAt(ctx, "main")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, fixed.Equal(at))
}

func TestCache_LastRoom(t *testing.T) {
	ctx := context.Background()
	c := setupCache(t)

	_, ok, err := c.LastRoom(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetLastRoom(ctx, "alpha"))
	require.NoError(t, c.SetLastRoom(ctx, "beta"))

	room, ok, err := c.LastRoom(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "beta", room.String())
}
