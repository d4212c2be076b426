package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/session"
	"github.com/mcdev12/respawn/go/internal/timers"
)

// SessionFactory builds an uncommitted session for the gateway to bind.
type SessionFactory func() (*session.Session, error)

// Publisher delivers room events to followers of a room.
type Publisher interface {
	BroadcastToRoom(room timers.RoomKey, event *RoomEvent)
}

// RoomHubs keeps one committed session per room with at least one follower.
// Every change a session reports is published as a timers event.
type RoomHubs struct {
	factory   SessionFactory
	publisher Publisher

	mu   sync.Mutex
	hubs map[timers.RoomKey]*roomHub
}

type roomHub struct {
	session *session.Session
	refs    int
	// ready is closed once session or err is set.
	ready chan struct{}
	err   error
}

func NewRoomHubs(factory SessionFactory, publisher Publisher) *RoomHubs {
	return &RoomHubs{
		factory:   factory,
		publisher: publisher,
		hubs:      make(map[timers.RoomKey]*roomHub),
	}
}

// Acquire returns the session bound to room, creating and committing it for
// the first follower. Joining one room never holds up another. Callers must
// Release the room when done.
func (h *RoomHubs) Acquire(ctx context.Context, room timers.RoomKey) (*session.Session, error) {
	h.mu.Lock()
	if hub, ok := h.hubs[room]; ok {
		hub.refs++
		h.mu.Unlock()

		select {
		case <-hub.ready:
		case <-ctx.Done():
			h.Release(room)
			return nil, ctx.Err()
		}
		if hub.err != nil {
			h.Release(room)
			return nil, hub.err
		}
		return hub.session, nil
	}
	hub := &roomHub{refs: 1, ready: make(chan struct{})}
	h.hubs[room] = hub
	h.mu.Unlock()

	sess, err := h.factory()
	if err != nil {
		hub.err = fmt.Errorf("failed to create session: %w", err)
		close(hub.ready)
		h.Release(room)
		return nil, hub.err
	}
	sess.OnChange(func(r timers.RoomKey) {
		h.publish(sess, r)
	})
	sess.SetDraft(room.String())
	if err := sess.Commit(ctx); err != nil {
		// The session stays bound; its status carries the failure.
		log.Warn().Err(err).Str("room", room.String()).Msg("room joined with errors")
	}

	h.mu.Lock()
	hub.session = sess
	h.mu.Unlock()
	close(hub.ready)
	log.Info().Str("room", room.String()).Msg("room hub started")
	return sess, nil
}

// Release drops one follower of room and stops its session with the last.
func (h *RoomHubs) Release(room timers.RoomKey) {
	h.mu.Lock()
	hub, ok := h.hubs[room]
	if !ok {
		h.mu.Unlock()
		return
	}
	hub.refs--
	if hub.refs > 0 {
		h.mu.Unlock()
		return
	}
	delete(h.hubs, room)
	h.mu.Unlock()

	if hub.session != nil {
		hub.session.Close()
		log.Info().Str("room", room.String()).Msg("room hub stopped")
	}
}

// Rooms returns the number of rooms with a live or joining session.
func (h *RoomHubs) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hubs)
}

// Close stops every session, waiting for joins in progress.
func (h *RoomHubs) Close() {
	h.mu.Lock()
	hubs := h.hubs
	h.hubs = make(map[timers.RoomKey]*roomHub)
	h.mu.Unlock()

	for _, hub := range hubs {
		<-hub.ready
		if hub.session != nil {
			hub.session.Close()
		}
	}
}

func (h *RoomHubs) publish(sess *session.Session, room timers.RoomKey) {
	if room == "" {
		return
	}
	event, err := statusEvent(sess)
	if err != nil {
		log.Error().Err(err).Str("room", room.String()).Msg("failed to build status event")
		return
	}
	h.publisher.BroadcastToRoom(room, event)
}

func statusEvent(sess *session.Session) (*RoomEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st := sess.Status(ctx)
	return newEvent(st.Room.String(), EventTypeTimers, st)
}
