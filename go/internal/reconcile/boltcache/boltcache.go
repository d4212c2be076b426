// Package boltcache stores room snapshots in a bbolt file.
package boltcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/timers"
)

const (
	bucketSnapshots = "snapshots" // key: room -> []Timer JSON
	bucketPrefs     = "prefs"     // key: name -> value
	keyLastRoom     = "last_room"
)

type Cache struct {
	db *bbolt.DB
}

func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt cache: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketSnapshots)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketPrefs)); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Save(_ context.Context, room timers.RoomKey, ts []models.Timer) error {
	data, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSnapshots)).Put([]byte(room), data)
	})
}

func (c *Cache) Load(_ context.Context, room timers.RoomKey) ([]models.Timer, error) {
	var ts []models.Timer
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketSnapshots)).Get([]byte(room))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &ts)
	})
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (c *Cache) SetLastRoom(_ context.Context, room timers.RoomKey) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketPrefs)).Put([]byte(keyLastRoom), []byte(room))
	})
}

func (c *Cache) LastRoom(_ context.Context) (timers.RoomKey, bool, error) {
	var room timers.RoomKey
	err := c.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(bucketPrefs)).Get([]byte(keyLastRoom)); v != nil {
			room = timers.RoomKey(v)
		}
		return nil
	})
	return room, room != "", err
}

func (c *Cache) Close() error {
	return c.db.Close()
}
