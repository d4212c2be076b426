// Package postgres replicates room timers through PostgreSQL. Writes run in
// transactions over a pgx pool and announce themselves with pg_notify; one
// lib/pq listener fans notifications out to room watchers.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/timers"
)

type Config struct {
	DSN              string        // Postgres DSN for queries and LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	MinReconnect     time.Duration // Listener reconnect backoff bounds
	MaxReconnect     time.Duration
	PingInterval     time.Duration
	FallbackInterval time.Duration // How often watched rooms are reloaded without a notification
}

func DefaultConfig() Config {
	return Config{
		NotifyChannel:    "room_timers_changed",
		MinReconnect:     10 * time.Second,
		MaxReconnect:     time.Minute,
		PingInterval:     90 * time.Second,
		FallbackInterval: 30 * time.Second,
	}
}

// Backend implements timers.Backend on PostgreSQL.
type Backend struct {
	pool      *pgxpool.Pool
	listener  *pq.Listener
	cfg       Config
	reachable atomic.Bool

	mu       sync.Mutex
	watchers map[timers.RoomKey]map[*timers.FeedWatcher]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// New connects, applies the schema and starts listening for changes.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", mapError(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", mapError(err))
	}

	b := &Backend{
		pool:     pool,
		cfg:      cfg,
		watchers: make(map[timers.RoomKey]map[*timers.FeedWatcher]struct{}),
		done:     make(chan struct{}),
	}
	if err := b.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	b.listener = pq.NewListener(cfg.DSN, cfg.MinReconnect, cfg.MaxReconnect, b.onListenerEvent)
	if err := b.listener.Listen(cfg.NotifyChannel); err != nil {
		_ = b.listener.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", mapError(err))
	}
	b.reachable.Store(true)

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for room changes")

	listenCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.listen(listenCtx)

	return b, nil
}

// EnsureSchema creates the tables if they do not exist.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", mapError(err))
	}
	return nil
}

func (b *Backend) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected, pq.ListenerEventReconnected:
		b.reachable.Store(true)
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		b.reachable.Store(false)
	}
	if err != nil {
		log.Error().Err(err).Msg("listener event")
	}
}

func (b *Backend) Apply(ctx context.Context, room timers.RoomKey, m timers.Mutation) error {
	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		var revision int64
		if err := tx.QueryRow(ctx, bumpRevisionSQL, string(room)).Scan(&revision); err != nil {
			return fmt.Errorf("bump revision: %w", err)
		}

		if m.Replace {
			if _, err := tx.Exec(ctx, deleteRoomSQL, string(room)); err != nil {
				return fmt.Errorf("clear room: %w", err)
			}
		}
		if len(m.Deletes) > 0 {
			if _, err := tx.Exec(ctx, deleteByIDsSQL, string(room), m.Deletes); err != nil {
				return fmt.Errorf("delete timers: %w", err)
			}
		}
		for _, t := range m.Puts {
			if m.SupersedeEntity {
				if _, err := tx.Exec(ctx, supersedeEntitySQL, string(room), t.EntityName, t.ID); err != nil {
					return fmt.Errorf("supersede entity %s: %w", t.EntityName, err)
				}
			}
			payload, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("marshal timer %s: %w", t.ID, err)
			}
			query := upsertTimerSQL
			if m.UpdateOnly {
				query = updateTimerSQL
			}
			if _, err := tx.Exec(ctx, query, string(room), t.ID, t.EntityName, payload, revision); err != nil {
				return fmt.Errorf("write timer %s: %w", t.ID, err)
			}
		}

		if _, err := tx.Exec(ctx, notifySQL, b.cfg.NotifyChannel, string(room)); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply mutation to room %s: %w", room, mapError(err))
	}
	return nil
}

func (b *Backend) Load(ctx context.Context, room timers.RoomKey) (timers.Snapshot, error) {
	snap, err := b.load(ctx, room)
	if err != nil {
		return timers.Snapshot{}, fmt.Errorf("failed to load room %s: %w", room, mapError(err))
	}
	return snap, nil
}

func (b *Backend) load(ctx context.Context, room timers.RoomKey) (timers.Snapshot, error) {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return timers.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var revision int64
	err = tx.QueryRow(ctx, selectRevisionSQL, string(room)).Scan(&revision)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return timers.Snapshot{}, fmt.Errorf("select revision: %w", err)
	}

	rows, err := tx.Query(ctx, selectPayloadsSQL, string(room))
	if err != nil {
		return timers.Snapshot{}, fmt.Errorf("select timers: %w", err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return timers.Snapshot{}, fmt.Errorf("scan timers: %w", err)
	}

	ts := make([]models.Timer, 0, len(payloads))
	for _, payload := range payloads {
		var t models.Timer
		if err := json.Unmarshal(payload, &t); err != nil {
			return timers.Snapshot{}, fmt.Errorf("unmarshal timer: %w", err)
		}
		ts = append(ts, t)
	}
	timers.SortBySpawn(ts)

	if err := tx.Commit(ctx); err != nil {
		return timers.Snapshot{}, err
	}
	return timers.Snapshot{Revision: uint64(revision), Timers: ts}, nil
}

func (b *Backend) Watch(ctx context.Context, room timers.RoomKey) (timers.Watcher, error) {
	snap, err := b.Load(ctx, room)
	if err != nil {
		return nil, err
	}

	var w *timers.FeedWatcher
	w = timers.NewFeedWatcher(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.watchers[room], w)
		if len(b.watchers[room]) == 0 {
			delete(b.watchers, room)
		}
	})

	b.mu.Lock()
	if b.watchers[room] == nil {
		b.watchers[room] = make(map[*timers.FeedWatcher]struct{})
	}
	b.watchers[room][w] = struct{}{}
	b.mu.Unlock()

	w.Push(timers.WatchEvent{Snapshot: snap})

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.Done():
		}
	}()
	return w, nil
}

// Reachable reflects the listener connection state.
func (b *Backend) Reachable() bool {
	return b.reachable.Load()
}

func (b *Backend) Close() error {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}

	b.mu.Lock()
	var all []*timers.FeedWatcher
	for _, ws := range b.watchers {
		for w := range ws {
			all = append(all, w)
		}
	}
	b.mu.Unlock()
	for _, w := range all {
		w.Stop()
	}

	b.pool.Close()
	return nil
}

func (b *Backend) listen(ctx context.Context) {
	defer close(b.done)

	pingTicker := time.NewTicker(b.cfg.PingInterval)
	fallbackTicker := time.NewTicker(b.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := b.listener.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close listener")
			}
			return
		case note := <-b.listener.Notify:
			if note == nil {
				// The connection was re-established; notifications may have been missed.
				b.refreshAll(ctx)
				continue
			}
			b.refresh(ctx, timers.RoomKey(note.Extra))
		case <-fallbackTicker.C:
			b.refreshAll(ctx)
		case <-pingTicker.C:
			if err := b.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (b *Backend) rooms() []timers.RoomKey {
	b.mu.Lock()
	defer b.mu.Unlock()
	rooms := make([]timers.RoomKey, 0, len(b.watchers))
	for room := range b.watchers {
		rooms = append(rooms, room)
	}
	return rooms
}

func (b *Backend) refreshAll(ctx context.Context) {
	for _, room := range b.rooms() {
		b.refresh(ctx, room)
	}
}

// refresh reloads a room and pushes the result to its watchers.
func (b *Backend) refresh(ctx context.Context, room timers.RoomKey) {
	b.mu.Lock()
	watchers := make([]*timers.FeedWatcher, 0, len(b.watchers[room]))
	for w := range b.watchers[room] {
		watchers = append(watchers, w)
	}
	b.mu.Unlock()
	if len(watchers) == 0 {
		return
	}

	var ev timers.WatchEvent
	snap, err := b.Load(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("room", room.String()).Msg("failed to reload room")
		ev.Err = err
	} else {
		ev.Snapshot = snap
	}
	for _, w := range watchers {
		w.Push(ev)
	}
}
