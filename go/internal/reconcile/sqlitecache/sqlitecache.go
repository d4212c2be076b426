// Package sqlitecache stores room snapshots in a SQLite database.
package sqlitecache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/timers"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	room TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	saved_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS prefs (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// timeNow returns the current time (can be replaced in tests).
var timeNow = time.Now

type Cache struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(ctx context.Context, path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Save(ctx context.Context, room timers.RoomKey, ts []models.Timer) error {
	payload, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO snapshots (room, payload, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(room) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		string(room), string(payload), timeNow().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (c *Cache) Load(ctx context.Context, room timers.RoomKey) ([]models.Timer, error) {
	var payload string
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE room = ?`, string(room)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	var ts []models.Timer
	if err := json.Unmarshal([]byte(payload), &ts); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return ts, nil
}

// SavedAt returns when the room's snapshot was last written.
func (c *Cache) SavedAt(ctx context.Context, room timers.RoomKey) (time.Time, bool, error) {
	var savedAt int64
	err := c.db.QueryRowContext(ctx, `SELECT saved_at FROM snapshots WHERE room = ?`, string(room)).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("loading snapshot time: %w", err)
	}
	return time.UnixMilli(savedAt), true, nil
}

func (c *Cache) SetLastRoom(ctx context.Context, room timers.RoomKey) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO prefs (name, value) VALUES ('last_room', ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, string(room))
	if err != nil {
		return fmt.Errorf("saving last room: %w", err)
	}
	return nil
}

func (c *Cache) LastRoom(ctx context.Context) (timers.RoomKey, bool, error) {
	var room string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE name = 'last_room'`).Scan(&room)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading last room: %w", err)
	}
	return timers.RoomKey(room), true, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
