// Package memory is an in-process timers.Backend. It backs single-node
// deployments and tests, and can simulate disconnection and access denial.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/timers"
)

type room struct {
	revision uint64
	timers   []models.Timer
	watchers map[*timers.FeedWatcher]struct{}
}

// Backend keeps every room in memory behind one mutex.
type Backend struct {
	mu        sync.Mutex
	rooms     map[timers.RoomKey]*room
	reachable bool
	denied    bool
	closed    bool
}

func New() *Backend {
	return &Backend{
		rooms:     make(map[timers.RoomKey]*room),
		reachable: true,
	}
}

// SetReachable simulates losing or regaining the connection.
func (b *Backend) SetReachable(reachable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reachable = reachable
}

// SetAccessDenied makes every operation fail with timers.ErrAccessDenied.
// Live watchers receive the error once.
func (b *Backend) SetAccessDenied(denied bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.denied = denied
	if !denied {
		return
	}
	for key, r := range b.rooms {
		for w := range r.watchers {
			w.Push(timers.WatchEvent{Err: deniedError(key)})
		}
	}
}

func (b *Backend) Apply(ctx context.Context, key timers.RoomKey, m timers.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(key); err != nil {
		return err
	}

	r := b.room(key)
	r.timers = m.ApplyTo(r.timers)
	r.revision++
	snap := b.snapshot(r)
	for w := range r.watchers {
		w.Push(timers.WatchEvent{Snapshot: snap})
	}
	return nil
}

func (b *Backend) Load(ctx context.Context, key timers.RoomKey) (timers.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return timers.Snapshot{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.check(key); err != nil {
		return timers.Snapshot{}, err
	}
	return b.snapshot(b.room(key)), nil
}

func (b *Backend) Watch(ctx context.Context, key timers.RoomKey) (timers.Watcher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("backend closed: %w", timers.ErrUnavailable)
	}
	if b.denied {
		return nil, deniedError(key)
	}

	r := b.room(key)
	var w *timers.FeedWatcher
	w = timers.NewFeedWatcher(func() {
		b.mu.Lock()
		delete(r.watchers, w)
		b.mu.Unlock()
	})
	r.watchers[w] = struct{}{}
	w.Push(timers.WatchEvent{Snapshot: b.snapshot(r)})

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.Done():
		}
	}()
	return w, nil
}

func (b *Backend) Reachable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reachable && !b.closed
}

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	var watchers []*timers.FeedWatcher
	for _, r := range b.rooms {
		for w := range r.watchers {
			watchers = append(watchers, w)
		}
	}
	b.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	return nil
}

func (b *Backend) check(key timers.RoomKey) error {
	switch {
	case b.closed:
		return fmt.Errorf("backend closed: %w", timers.ErrUnavailable)
	case b.denied:
		return deniedError(key)
	case !b.reachable:
		return fmt.Errorf("room %s: %w", key, timers.ErrUnavailable)
	}
	return nil
}

func (b *Backend) room(key timers.RoomKey) *room {
	r, ok := b.rooms[key]
	if !ok {
		r = &room{watchers: make(map[*timers.FeedWatcher]struct{})}
		b.rooms[key] = r
	}
	return r
}

func (b *Backend) snapshot(r *room) timers.Snapshot {
	return timers.Snapshot{Revision: r.revision, Timers: models.CloneTimers(r.timers)}
}

func deniedError(key timers.RoomKey) error {
	return fmt.Errorf("room %s: %w", key, timers.ErrAccessDenied)
}
