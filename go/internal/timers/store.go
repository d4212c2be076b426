// Package timers is the replicated collection of respawn timers for a room.
// It enforces one live timer per entity on top of a pluggable Backend.
package timers

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/models"
)

// SnapshotObserver is told about every successful non-empty read of a room.
type SnapshotObserver interface {
	Observe(room RoomKey, timers []models.Timer)
}

// Store exposes room-scoped operations over a Backend.
type Store struct {
	backend Backend

	mu        sync.RWMutex
	observers []SnapshotObserver
}

// NewStore wraps a backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// AddObserver registers an observer for non-empty reads.
func (s *Store) AddObserver(o SnapshotObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Reachable reports whether the backend is connected.
func (s *Store) Reachable() bool {
	return s.backend.Reachable()
}

// Add inserts a timer, atomically superseding any existing timer for the same entity.
func (s *Store) Add(ctx context.Context, room RoomKey, t models.Timer) error {
	if err := validate(t); err != nil {
		return err
	}
	m := Mutation{Puts: []models.Timer{t}, SupersedeEntity: true}
	if err := s.backend.Apply(ctx, room, m); err != nil {
		return fmt.Errorf("failed to add timer %s: %w", t.ID, err)
	}
	log.Debug().
		Str("room", room.String()).
		Str("timer_id", t.ID).
		Str("entity", t.EntityName).
		Msg("timer added")
	return nil
}

// Update replaces the record with the same id. Updating an id that is no
// longer present is a no-op.
func (s *Store) Update(ctx context.Context, room RoomKey, t models.Timer) error {
	if err := validate(t); err != nil {
		return err
	}
	if err := s.backend.Apply(ctx, room, Mutation{Puts: []models.Timer{t}, UpdateOnly: true}); err != nil {
		return fmt.Errorf("failed to update timer %s: %w", t.ID, err)
	}
	return nil
}

// Remove deletes a timer by id. Removing an absent id is not an error.
func (s *Store) Remove(ctx context.Context, room RoomKey, id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTimer)
	}
	if err := s.backend.Apply(ctx, room, Mutation{Deletes: []string{id}}); err != nil {
		return fmt.Errorf("failed to remove timer %s: %w", id, err)
	}
	return nil
}

// ReplaceAll swaps the room's whole collection in one mutation.
func (s *Store) ReplaceAll(ctx context.Context, room RoomKey, ts []models.Timer) error {
	entities := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		if err := validate(t); err != nil {
			return err
		}
		if _, dup := entities[t.EntityName]; dup {
			return fmt.Errorf("%w: entity %q appears twice", ErrInvalidTimer, t.EntityName)
		}
		entities[t.EntityName] = struct{}{}
	}

	m := Mutation{Replace: true, Puts: models.CloneTimers(ts)}
	if err := s.backend.Apply(ctx, room, m); err != nil {
		return fmt.Errorf("failed to replace timers: %w", err)
	}
	log.Info().
		Str("room", room.String()).
		Int("timers", len(ts)).
		Msg("room timers replaced")
	return nil
}

// List reads the current collection once.
func (s *Store) List(ctx context.Context, room RoomKey) ([]models.Timer, error) {
	snap, err := s.backend.Load(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s: %w", room, err)
	}
	s.observe(room, snap.Timers)
	return models.CloneTimers(snap.Timers), nil
}

// Subscription is a live feed of one room. Close must not be called from
// inside the onChange callback.
type Subscription struct {
	room   RoomKey
	cancel context.CancelFunc
	done   chan struct{}
}

// Room returns the room this subscription follows.
func (s *Subscription) Room() RoomKey {
	return s.room
}

// Close stops deliveries and waits for the delivery goroutine to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Subscribe delivers the room's full collection now and after every change.
// Deliveries never go back to an older revision. onError receives errors that
// can be classified with IsAccessDenied and IsUnavailable.
func (s *Store) Subscribe(
	ctx context.Context,
	room RoomKey,
	onChange func([]models.Timer),
	onError func(error),
) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	watcher, err := s.backend.Watch(subCtx, room)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to watch room %s: %w", room, err)
	}

	sub := &Subscription{room: room, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer watcher.Stop()

		var (
			last      uint64
			delivered bool
		)
		for {
			select {
			case <-subCtx.Done():
				return
			case ev, ok := <-watcher.Events():
				if !ok {
					return
				}
				if ev.Err != nil {
					log.Warn().Err(ev.Err).Str("room", room.String()).Msg("subscription error")
					if onError != nil {
						onError(ev.Err)
					}
					continue
				}
				if delivered && ev.Snapshot.Revision <= last {
					continue
				}
				if subCtx.Err() != nil {
					return
				}
				last, delivered = ev.Snapshot.Revision, true

				ts := models.CloneTimers(ev.Snapshot.Timers)
				s.observe(room, ts)
				if onChange != nil {
					onChange(ts)
				}
			}
		}
	}()

	log.Debug().Str("room", room.String()).Msg("subscribed to room")
	return sub, nil
}

func (s *Store) observe(room RoomKey, ts []models.Timer) {
	if len(ts) == 0 {
		return
	}
	s.mu.RLock()
	observers := s.observers
	s.mu.RUnlock()
	for _, o := range observers {
		o.Observe(room, models.CloneTimers(ts))
	}
}

func validate(t models.Timer) error {
	if t.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTimer)
	}
	if t.EntityName == "" {
		return fmt.Errorf("%w: entity name is required", ErrInvalidTimer)
	}
	if t.NextSpawn < t.KillTime {
		return fmt.Errorf("%w: next spawn precedes kill time", ErrInvalidTimer)
	}
	return nil
}
