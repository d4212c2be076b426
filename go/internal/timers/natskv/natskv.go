// Package natskv replicates room timers through a NATS JetStream KeyValue
// bucket. Each room is one key holding the whole collection, so every
// mutation is a compare-and-set on that key.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/timers"
)

// Config holds connection and bucket settings.
type Config struct {
	URL           string
	Bucket        string
	History       uint8
	Replicas      int
	MaxReconnects int
	ReconnectWait time.Duration
	// MaxAttempts bounds compare-and-set retries under write contention.
	MaxAttempts int
	// Timeout applies to each backend call when the caller's context has no deadline.
	Timeout time.Duration
}

// DefaultConfig returns settings for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Bucket:        "RESPAWN_TIMERS",
		History:       5,
		Replicas:      1,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAttempts:   10,
		Timeout:       5 * time.Second,
	}
}

type roomDocument struct {
	Timers []models.Timer `json:"timers"`
}

// Backend implements timers.Backend on a KeyValue bucket.
type Backend struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	kv     jetstream.KeyValue
	config Config
	ownsNC bool
}

// New connects to NATS and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	opts := []nats.Option{
		nats.Name("respawn"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", mapError(err))
	}

	b, err := NewWithConn(ctx, nc, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	b.ownsNC = true
	return b, nil
}

// NewWithConn uses an existing connection. Close leaves the connection open.
func NewWithConn(ctx context.Context, nc *nats.Conn, cfg Config) (*Backend, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	b := &Backend{nc: nc, js: js, config: cfg}
	if err := b.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", mapError(err))
	}
	return b, nil
}

func (b *Backend) ensureBucket(ctx context.Context) error {
	kv, err := b.js.KeyValue(ctx, b.config.Bucket)
	if err == nil {
		b.kv = kv
		log.Debug().Str("bucket", b.config.Bucket).Msg("using existing KeyValue bucket")
		return nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return fmt.Errorf("get bucket: %w", err)
	}

	kv, err = b.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      b.config.Bucket,
		Description: "Respawn timers per room",
		History:     b.config.History,
		Storage:     jetstream.FileStorage,
		Replicas:    b.config.Replicas,
	})
	if err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	b.kv = kv
	log.Info().Str("bucket", b.config.Bucket).Msg("created KeyValue bucket")
	return nil
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || b.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.config.Timeout)
}

func (b *Backend) Apply(ctx context.Context, room timers.RoomKey, m timers.Mutation) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	key := roomKey(room)
	attempts := b.config.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		current, revision, err := b.read(ctx, key)
		if err != nil {
			return fmt.Errorf("read room %s: %w", room, mapError(err))
		}

		data, err := encode(m.ApplyTo(current))
		if err != nil {
			return err
		}

		if revision == 0 {
			_, err = b.kv.Create(ctx, key, data)
		} else {
			_, err = b.kv.Update(ctx, key, data, revision)
		}
		if err == nil {
			return nil
		}
		if isRevisionConflict(err) {
			log.Debug().
				Str("room", room.String()).
				Int("attempt", attempt).
				Msg("room changed concurrently, retrying")
			continue
		}
		return fmt.Errorf("write room %s: %w", room, mapError(err))
	}

	return fmt.Errorf("room %s still contended after %d attempts: %w", room, attempts, timers.ErrUnavailable)
}

func (b *Backend) Load(ctx context.Context, room timers.RoomKey) (timers.Snapshot, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	current, revision, err := b.read(ctx, roomKey(room))
	if err != nil {
		return timers.Snapshot{}, fmt.Errorf("read room %s: %w", room, mapError(err))
	}
	return timers.Snapshot{Revision: revision, Timers: current}, nil
}

func (b *Backend) read(ctx context.Context, key string) ([]models.Timer, uint64, error) {
	entry, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	ts, err := decode(entry.Value())
	if err != nil {
		return nil, 0, err
	}
	return ts, entry.Revision(), nil
}

func (b *Backend) Watch(ctx context.Context, room timers.RoomKey) (timers.Watcher, error) {
	kw, err := b.kv.Watch(ctx, roomKey(room))
	if err != nil {
		return nil, fmt.Errorf("watch room %s: %w", room, mapError(err))
	}

	w := &watcher{
		kw:     kw,
		events: make(chan timers.WatchEvent),
		stop:   make(chan struct{}),
	}
	go w.run(ctx, room)
	return w, nil
}

// Reachable reports the NATS connection status.
func (b *Backend) Reachable() bool {
	return b.nc != nil && b.nc.IsConnected()
}

func (b *Backend) Close() error {
	if b.ownsNC {
		b.nc.Close()
	}
	return nil
}

type watcher struct {
	kw       jetstream.KeyWatcher
	events   chan timers.WatchEvent
	stop     chan struct{}
	stopOnce sync.Once
}

func (w *watcher) Events() <-chan timers.WatchEvent {
	return w.events
}

func (w *watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if err := w.kw.Stop(); err != nil {
			log.Debug().Err(err).Msg("stop key watcher")
		}
	})
}

func (w *watcher) run(ctx context.Context, room timers.RoomKey) {
	defer close(w.events)
	defer w.Stop()

	seen := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case entry, ok := <-w.kw.Updates():
			if !ok {
				return
			}

			var ev timers.WatchEvent
			switch {
			case entry == nil:
				// Initial values delivered. An empty room has none.
				if seen {
					continue
				}
				ev = timers.WatchEvent{Snapshot: timers.Snapshot{}}
			case entry.Operation() != jetstream.KeyValuePut:
				ev = timers.WatchEvent{Snapshot: timers.Snapshot{Revision: entry.Revision()}}
			default:
				ts, err := decode(entry.Value())
				if err != nil {
					ev = timers.WatchEvent{Err: fmt.Errorf("room %s: %w", room, err)}
				} else {
					ev = timers.WatchEvent{Snapshot: timers.Snapshot{Revision: entry.Revision(), Timers: ts}}
				}
			}
			seen = true

			select {
			case w.events <- ev:
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			}
		}
	}
}

// roomKey maps a room to a valid KV key. Room names may hold characters
// that are not allowed in subjects.
func roomKey(room timers.RoomKey) string {
	return "rooms." + base64.RawURLEncoding.EncodeToString([]byte(room))
}

func encode(ts []models.Timer) ([]byte, error) {
	if ts == nil {
		ts = []models.Timer{}
	}
	data, err := json.Marshal(roomDocument{Timers: ts})
	if err != nil {
		return nil, fmt.Errorf("marshal room: %w", err)
	}
	return data, nil
}

func decode(data []byte) ([]models.Timer, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc roomDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal room: %w", err)
	}
	timers.SortBySpawn(doc.Timers)
	return doc.Timers, nil
}
