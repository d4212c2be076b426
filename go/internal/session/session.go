// Package session is the client engine for one room: it owns the
// draft/committed room binding, the live subscription and the drift loop,
// and turns user actions into store mutations.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/catalog"
	"github.com/mcdev12/respawn/go/internal/command"
	"github.com/mcdev12/respawn/go/internal/drift"
	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/reconcile"
	"github.com/mcdev12/respawn/go/internal/timers"
)

var (
	// ErrNotConnected is returned for writes while the backend is unreachable.
	ErrNotConnected = errors.New("not connected")
	// ErrNoRoom is returned before the first Commit.
	ErrNoRoom = errors.New("no room committed")
	// ErrUnknownTimer is returned by quick actions on ids not in the room.
	ErrUnknownTimer = errors.New("unknown timer")
	// ErrNoCache is returned by RestoreFromCache when no cache is configured.
	ErrNoCache = errors.New("no local cache configured")
)

type Config struct {
	Catalog *catalog.Catalog
	Store   *timers.Store
	// Parser defaults to a StrictParser over Catalog.
	Parser command.Parser
	// Reconciler is optional; without it there is no fallback view or restore.
	Reconciler *reconcile.Reconciler
	Clock      clockwork.Clock
	// Location is used for wall-clock inference. Defaults to time.Local.
	Location       *time.Location
	DriftInterval  time.Duration
	DriftTolerance time.Duration
	// AccessDeniedHint is shown to users when the backend refuses access.
	AccessDeniedHint string
}

// Status is a point-in-time view of the session for rendering.
type Status struct {
	Room             timers.RoomKey      `json:"room"`
	Draft            timers.RoomKey      `json:"draft"`
	Connected        bool                `json:"connected"`
	AccessDenied     bool                `json:"accessDenied"`
	AccessDeniedHint string              `json:"accessDeniedHint,omitempty"`
	Recovery         reconcile.RoomState `json:"recovery,omitempty"`
	CachedCount      int                 `json:"cachedCount"`
	FromCache        bool                `json:"fromCache"`
	Timers           []models.Timer      `json:"timers"`
}

type Session struct {
	catalog    *catalog.Catalog
	store      *timers.Store
	parser     command.Parser
	reconciler *reconcile.Reconciler
	corrector  *drift.Corrector
	clock      clockwork.Clock
	loc        *time.Location
	hint       string

	// commitMu serialises room switches.
	commitMu sync.Mutex

	mu           sync.Mutex
	draft        timers.RoomKey
	committed    timers.RoomKey
	binding      uint64
	sub          *timers.Subscription
	stopDrift    context.CancelFunc
	driftDone    chan struct{}
	timers       []models.Timer
	loaded       bool
	accessDenied bool
	listeners    []func(timers.RoomKey)
}

func New(cfg Config) (*Session, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Parser == nil {
		cfg.Parser = command.NewStrictParser(cfg.Catalog)
	}

	opts := []drift.Option{drift.WithClock(cfg.Clock)}
	if cfg.DriftInterval > 0 {
		opts = append(opts, drift.WithInterval(cfg.DriftInterval))
	}
	if cfg.DriftTolerance > 0 {
		opts = append(opts, drift.WithTolerance(cfg.DriftTolerance))
	}

	return &Session{
		catalog:    cfg.Catalog,
		store:      cfg.Store,
		parser:     cfg.Parser,
		reconciler: cfg.Reconciler,
		corrector:  drift.New(cfg.Catalog, cfg.Store, opts...),
		clock:      cfg.Clock,
		loc:        cfg.Location,
		hint:       cfg.AccessDeniedHint,
		draft:      timers.DefaultRoom,
	}, nil
}

// OnChange registers fn to be called after every delivery or status change
// of the committed room.
func (s *Session) OnChange(fn func(room timers.RoomKey)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetDraft records the room name being typed. It does not switch rooms.
func (s *Session) SetDraft(name string) timers.RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = timers.NormalizeRoom(name)
	return s.draft
}

func (s *Session) Draft() timers.RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Room returns the committed room, or "" before the first Commit.
func (s *Session) Room() timers.RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Commit binds the session to the draft room. The previous subscription and
// drift loop are fully stopped before the new ones start. Committing the
// already bound room is a no-op.
func (s *Session) Commit(ctx context.Context) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	room := s.draft
	if room == s.committed && s.sub != nil {
		s.mu.Unlock()
		return nil
	}
	s.binding++
	gen := s.binding
	old, stopDrift, driftDone := s.sub, s.stopDrift, s.driftDone
	s.sub, s.stopDrift, s.driftDone = nil, nil, nil
	s.committed = room
	s.timers = nil
	s.loaded = false
	s.accessDenied = false
	s.mu.Unlock()

	teardown(old, stopDrift, driftDone)

	log.Info().Str("room", room.String()).Msg("joining room")
	s.rememberRoom(ctx, room)

	sub, err := s.store.Subscribe(context.Background(), room,
		func(ts []models.Timer) { s.deliver(gen, ts) },
		func(err error) { s.fail(gen, err) },
	)
	if err != nil {
		s.fail(gen, err)
		return fmt.Errorf("failed to join room %s: %w", room, err)
	}

	driftCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.binding != gen {
		s.mu.Unlock()
		cancel()
		sub.Close()
		return nil
	}
	s.sub, s.stopDrift, s.driftDone = sub, cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.corrector.Run(driftCtx, room,
			func() []models.Timer { return s.snapshot(gen) },
			drift.GateOn(func() bool { return s.writable(gen) }),
			drift.ReportTo(func(err error) { s.fail(gen, err) }),
		)
	}()

	s.notify(room)
	return nil
}

// Close stops the subscription and drift loop.
func (s *Session) Close() {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	s.binding++
	old, stopDrift, driftDone := s.sub, s.stopDrift, s.driftDone
	s.sub, s.stopDrift, s.driftDone = nil, nil, nil
	s.mu.Unlock()

	teardown(old, stopDrift, driftDone)
}

func teardown(sub *timers.Subscription, stopDrift context.CancelFunc, driftDone chan struct{}) {
	if stopDrift != nil {
		stopDrift()
		<-driftDone
	}
	if sub != nil {
		sub.Close()
	}
}

func (s *Session) rememberRoom(ctx context.Context, room timers.RoomKey) {
	if s.reconciler == nil {
		return
	}
	mem, ok := s.reconciler.Cache().(reconcile.RoomMemory)
	if !ok {
		return
	}
	if err := mem.SetLastRoom(ctx, room); err != nil {
		log.Warn().Err(err).Str("room", room.String()).Msg("failed to remember room")
	}
}

func (s *Session) deliver(gen uint64, ts []models.Timer) {
	s.mu.Lock()
	if s.binding != gen {
		s.mu.Unlock()
		return
	}
	s.timers = ts
	s.loaded = true
	room := s.committed
	s.mu.Unlock()

	s.notify(room)
}

func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.binding != gen {
		s.mu.Unlock()
		return
	}
	if timers.IsAccessDenied(err) {
		s.accessDenied = true
	}
	room := s.committed
	s.mu.Unlock()

	log.Warn().Err(err).Str("room", room.String()).Msg("room error")
	s.notify(room)
}

func (s *Session) notify(room timers.RoomKey) {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(room)
	}
}

func (s *Session) snapshot(gen uint64) []models.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding != gen {
		return nil
	}
	return models.CloneTimers(s.timers)
}

// Timers returns the latest delivered collection of the committed room.
func (s *Session) Timers() []models.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneTimers(s.timers)
}

// AccessDenied reports the sticky access-denied flag.
func (s *Session) AccessDenied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessDenied
}

// ClearAccessDenied resets the sticky flag after the user acknowledged it.
func (s *Session) ClearAccessDenied() {
	s.mu.Lock()
	s.accessDenied = false
	room := s.committed
	s.mu.Unlock()
	s.notify(room)
}

// Status assembles the current view. While access is denied the cached
// snapshot is shown in place of the live collection.
func (s *Session) Status(ctx context.Context) Status {
	s.mu.Lock()
	st := Status{
		Room:         s.committed,
		Draft:        s.draft,
		Connected:    s.store.Reachable(),
		AccessDenied: s.accessDenied,
		Timers:       models.CloneTimers(s.timers),
	}
	loaded := s.loaded
	s.mu.Unlock()

	if st.AccessDenied {
		st.AccessDeniedHint = s.hint
	}
	if st.Timers == nil {
		st.Timers = []models.Timer{}
	}
	if s.reconciler == nil || st.Room == "" {
		return st
	}

	cached, err := s.reconciler.LastGood(ctx, st.Room)
	if err != nil {
		log.Warn().Err(err).Str("room", st.Room.String()).Msg("failed to read local snapshot")
		return st
	}
	st.CachedCount = len(cached)

	if st.AccessDenied && len(cached) > 0 {
		st.Timers = cached
		st.FromCache = true
		return st
	}
	if loaded {
		recovery, err := s.reconciler.Assess(ctx, st.Room, st.Timers)
		if err != nil {
			log.Error().Err(err).Str("room", st.Room.String()).Msg("failed to assess room recovery")
		}
		st.Recovery = recovery
	}
	return st
}

// target returns the committed room for a write, or why writing is refused.
func (s *Session) target() (timers.RoomKey, uint64, error) {
	s.mu.Lock()
	room, gen := s.committed, s.binding
	s.mu.Unlock()

	if room == "" {
		return "", 0, ErrNoRoom
	}
	if !s.store.Reachable() {
		return "", 0, ErrNotConnected
	}
	return room, gen, nil
}

// checkWrite records access-denied failures so they become sticky.
// writable reports whether binding gen is current and not access denied.
func (s *Session) writable(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding == gen && !s.accessDenied
}

func (s *Session) checkWrite(gen uint64, err error) error {
	if err != nil && timers.IsAccessDenied(err) {
		s.fail(gen, err)
	}
	return err
}

func (s *Session) find(id string) (models.Timer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		if t.ID == id {
			return t, true
		}
	}
	return models.Timer{}, false
}
