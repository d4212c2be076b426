package timers

import (
	"context"

	"github.com/mcdev12/respawn/go/internal/models"
)

// Snapshot is the full collection of a room at a backend revision.
// Revisions only grow for a given room.
type Snapshot struct {
	Revision uint64
	Timers   []models.Timer
}

// WatchEvent carries either a new snapshot or a delivery error.
type WatchEvent struct {
	Snapshot Snapshot
	Err      error
}

// Watcher streams room snapshots until stopped. The channel is closed after
// Stop or when the watch context ends.
type Watcher interface {
	Events() <-chan WatchEvent
	Stop()
}

// Backend is the capability set a replication transport must offer.
type Backend interface {
	// Apply commits a mutation atomically.
	Apply(ctx context.Context, room RoomKey, m Mutation) error
	// Load reads the whole collection.
	Load(ctx context.Context, room RoomKey) (Snapshot, error)
	// Watch delivers the current collection and then every change.
	Watch(ctx context.Context, room RoomKey) (Watcher, error)
	// Reachable reports whether the transport is currently connected.
	Reachable() bool
	Close() error
}
