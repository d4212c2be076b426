// Package drift advances timers whose predicted spawn passed unobserved.
package drift

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/timers"
)

const (
	DefaultInterval  = 5 * time.Second
	DefaultTolerance = 30 * time.Minute
)

// Correct rolls an overdue timer forward by whole respawn intervals until
// nextSpawn+tolerance is no longer before now. Corrected timers are marked
// lost and passed. The second result reports whether anything changed.
func Correct(t models.Timer, interval, tolerance time.Duration, now time.Time) (models.Timer, bool) {
	intervalMs := interval.Milliseconds()
	if intervalMs <= 0 {
		return t, false
	}

	overdue := now.UnixMilli() - (t.NextSpawn + tolerance.Milliseconds())
	if overdue <= 0 {
		return t, false
	}

	k := (overdue + intervalMs - 1) / intervalMs
	t.NextSpawn += k * intervalMs
	t.Note = models.NoteLost
	t.IsPass = true
	return t, true
}

// IntervalLookup resolves an entity's respawn interval.
type IntervalLookup interface {
	Interval(name string) (time.Duration, bool)
}

// Updater is the slice of the timer store the corrector writes through.
type Updater interface {
	Update(ctx context.Context, room timers.RoomKey, t models.Timer) error
	Reachable() bool
}

// Corrector periodically sweeps a room's timers and writes corrections back
// through the store, so every replica converges on the same values.
type Corrector struct {
	catalog   IntervalLookup
	store     Updater
	clock     clockwork.Clock
	interval  time.Duration
	tolerance time.Duration
}

type Option func(*Corrector)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Corrector) { c.clock = clock }
}

// WithInterval sets how often Run sweeps.
func WithInterval(d time.Duration) Option {
	return func(c *Corrector) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTolerance sets how long past nextSpawn a timer may go unconfirmed.
func WithTolerance(d time.Duration) Option {
	return func(c *Corrector) {
		if d >= 0 {
			c.tolerance = d
		}
	}
}

func New(catalog IntervalLookup, store Updater, opts ...Option) *Corrector {
	c := &Corrector{
		catalog:   catalog,
		store:     store,
		clock:     clockwork.NewRealClock(),
		interval:  DefaultInterval,
		tolerance: DefaultTolerance,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sweep corrects every overdue timer in ts and returns how many were written.
// Timers for entities the catalog doesn't know are left alone. An access
// denied write ends the sweep and is returned; other write errors are logged.
func (c *Corrector) Sweep(ctx context.Context, room timers.RoomKey, ts []models.Timer) (int, error) {
	now := c.clock.Now()
	corrected := 0
	var denied error
	for _, t := range ts {
		interval, ok := c.catalog.Interval(t.EntityName)
		if !ok {
			continue
		}
		next, changed := Correct(t, interval, c.tolerance, now)
		if !changed {
			continue
		}
		if err := c.store.Update(ctx, room, next); err != nil {
			if timers.IsAccessDenied(err) {
				denied = err
				break
			}
			log.Error().
				Err(err).
				Str("room", room.String()).
				Str("timer_id", t.ID).
				Msg("failed to write drift correction")
			continue
		}
		corrected++
	}

	if corrected > 0 {
		log.Info().
			Str("room", room.String()).
			Int("corrected", corrected).
			Msg("advanced overdue timers")
	}
	return corrected, denied
}

type runConfig struct {
	gate func() bool
	sink func(error)
}

// RunOption configures a single Run loop.
type RunOption func(*runConfig)

// GateOn skips ticks while ready returns false.
func GateOn(ready func() bool) RunOption {
	return func(rc *runConfig) { rc.gate = ready }
}

// ReportTo hands access denied write errors to sink instead of logging them.
func ReportTo(sink func(error)) RunOption {
	return func(rc *runConfig) { rc.sink = sink }
}

// Run sweeps the timers returned by source on every tick while the store is
// reachable and the gate is open. It returns when ctx is cancelled.
func (c *Corrector) Run(ctx context.Context, room timers.RoomKey, source func() []models.Timer, opts ...RunOption) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	log.Debug().
		Str("room", room.String()).
		Dur("interval", c.interval).
		Dur("tolerance", c.tolerance).
		Msg("drift corrector started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("room", room.String()).Msg("drift corrector stopped")
			return
		case <-ticker.Chan():
			if !c.store.Reachable() || (rc.gate != nil && !rc.gate()) {
				continue
			}
			ts := source()
			if len(ts) == 0 {
				continue
			}
			if _, err := c.Sweep(ctx, room, ts); err != nil {
				if rc.sink != nil {
					rc.sink(err)
					continue
				}
				log.Error().Err(err).Str("room", room.String()).Msg("drift correction denied")
			}
		}
	}
}
