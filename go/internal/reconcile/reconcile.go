// Package reconcile keeps a local copy of each room's last non-empty
// collection and offers it back when the replicated store comes up empty.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/timers"
)

// ErrNoSnapshot is returned by Restore when nothing is cached for the room.
var ErrNoSnapshot = errors.New("no cached snapshot")

// SnapshotCache persists one snapshot per room on the local machine.
// Load returns an empty slice when nothing is cached.
type SnapshotCache interface {
	Save(ctx context.Context, room timers.RoomKey, ts []models.Timer) error
	Load(ctx context.Context, room timers.RoomKey) ([]models.Timer, error)
	Close() error
}

// RoomMemory is implemented by caches that also remember the last room a
// client committed to.
type RoomMemory interface {
	SetLastRoom(ctx context.Context, room timers.RoomKey) error
	LastRoom(ctx context.Context) (timers.RoomKey, bool, error)
}

// Replacer is the store operation used to push a snapshot back.
type Replacer interface {
	ReplaceAll(ctx context.Context, room timers.RoomKey, ts []models.Timer) error
}

// RoomState classifies an empty-looking room.
type RoomState string

const (
	// RoomPopulated means the live collection has timers.
	RoomPopulated RoomState = "populated"
	// RoomFresh means both the live collection and the cache are empty.
	RoomFresh RoomState = "fresh"
	// RoomRecoverable means the live collection is empty but the cache is not.
	// The user decides whether to restore.
	RoomRecoverable RoomState = "recoverable"
)

type Reconciler struct {
	cache SnapshotCache
	store Replacer
}

func New(cache SnapshotCache, store Replacer) *Reconciler {
	return &Reconciler{cache: cache, store: store}
}

// Observe records a successful read. Empty reads never overwrite the cache.
func (r *Reconciler) Observe(room timers.RoomKey, ts []models.Timer) {
	if len(ts) == 0 {
		return
	}
	if err := r.cache.Save(context.Background(), room, ts); err != nil {
		log.Error().Err(err).Str("room", room.String()).Msg("failed to save snapshot")
	}
}

// LastGood returns the cached snapshot without touching the store.
func (r *Reconciler) LastGood(ctx context.Context, room timers.RoomKey) ([]models.Timer, error) {
	ts, err := r.cache.Load(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for room %s: %w", room, err)
	}
	return ts, nil
}

// Restore replaces the room's live collection with the cached snapshot. It is
// only called after the user confirmed.
func (r *Reconciler) Restore(ctx context.Context, room timers.RoomKey) ([]models.Timer, error) {
	ts, err := r.LastGood(ctx, room)
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, ErrNoSnapshot
	}
	ts = newestPerEntity(ts)
	if err := r.store.ReplaceAll(ctx, room, ts); err != nil {
		return nil, fmt.Errorf("failed to restore room %s: %w", room, err)
	}

	log.Info().
		Str("room", room.String()).
		Int("timers", len(ts)).
		Msg("restored room from local snapshot")
	return ts, nil
}

// newestPerEntity keeps the latest record of each entity, judged by next
// spawn and then kill time. A snapshot captured mid-race can hold two.
func newestPerEntity(ts []models.Timer) []models.Timer {
	latest := make(map[string]models.Timer, len(ts))
	for _, t := range ts {
		cur, ok := latest[t.EntityName]
		if !ok || t.NextSpawn > cur.NextSpawn || (t.NextSpawn == cur.NextSpawn && t.KillTime > cur.KillTime) {
			latest[t.EntityName] = t
		}
	}
	if len(latest) == len(ts) {
		return ts
	}

	out := make([]models.Timer, 0, len(latest))
	for _, t := range latest {
		out = append(out, t)
	}
	timers.SortBySpawn(out)
	log.Warn().Int("dropped", len(ts)-len(out)).Msg("dropped duplicate entities from snapshot")
	return out
}

// Assess decides how to present a room given its live collection.
func (r *Reconciler) Assess(ctx context.Context, room timers.RoomKey, live []models.Timer) (RoomState, error) {
	if len(live) > 0 {
		return RoomPopulated, nil
	}
	cached, err := r.LastGood(ctx, room)
	if err != nil {
		return "", err
	}
	if len(cached) == 0 {
		return RoomFresh, nil
	}
	return RoomRecoverable, nil
}

// Close releases the cache.
func (r *Reconciler) Close() error {
	return r.cache.Close()
}

// Cache exposes the underlying cache, e.g. to reach RoomMemory.
func (r *Reconciler) Cache() SnapshotCache {
	return r.cache
}
