package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/respawn/go/internal/command"
	"github.com/mcdev12/respawn/go/internal/inference"
	"github.com/mcdev12/respawn/go/internal/models"
	"github.com/mcdev12/respawn/go/internal/reconcile"
)

// maintenanceInput is recorded as the original input of reset timers.
const maintenanceInput = "Maintenance Reset"

// Submit parses a kill report and adds the resulting timer, superseding any
// timer for the same entity. Reports naming an entity outside the catalog are
// dropped and return a nil timer with a nil error.
func (s *Session) Submit(ctx context.Context, input string, mode inference.Mode) (*models.Timer, error) {
	room, gen, err := s.target()
	if err != nil {
		return nil, err
	}

	parsed, err := s.parser.Parse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", command.ErrParse, err)
	}
	if err := parsed.Validate(); err != nil {
		return nil, err
	}

	entity, ok := s.catalog.Resolve(*parsed.EntityName)
	if !ok {
		log.Debug().
			Str("room", room.String()).
			Str("entity", *parsed.EntityName).
			Msg("ignoring report for unknown entity")
		return nil, nil
	}

	res, err := inference.Infer(entity.Interval, *parsed.Hour, *parsed.Minute, mode, s.now())
	if err != nil {
		return nil, err
	}

	t := models.Timer{
		ID:            uuid.NewString(),
		EntityName:    entity.Name,
		KillTime:      res.KillTime,
		NextSpawn:     res.NextSpawn,
		IsPass:        parsed.IsPass,
		OriginalInput: input,
	}
	if err := s.checkWrite(gen, s.store.Add(ctx, room, t)); err != nil {
		return nil, err
	}
	return &t, nil
}

// Kill records a kill at the current instant for the entity of timer id.
// The result is a new record that supersedes the old one.
func (s *Session) Kill(ctx context.Context, id string) (*models.Timer, error) {
	room, gen, err := s.target()
	if err != nil {
		return nil, err
	}
	old, ok := s.find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTimer, id)
	}
	interval, ok := s.catalog.Interval(old.EntityName)
	if !ok {
		return nil, fmt.Errorf("%w: entity %q is not in the catalog", ErrUnknownTimer, old.EntityName)
	}

	now := s.clock.Now().UnixMilli()
	t := models.Timer{
		ID:            uuid.NewString(),
		EntityName:    old.EntityName,
		KillTime:      now,
		NextSpawn:     now + interval.Milliseconds(),
		OriginalInput: old.OriginalInput,
	}
	if err := s.checkWrite(gen, s.store.Add(ctx, room, t)); err != nil {
		return nil, err
	}
	return &t, nil
}

// Pass marks timer id as passed.
func (s *Session) Pass(ctx context.Context, id string) error {
	return s.modify(ctx, id, func(t *models.Timer) { t.IsPass = true })
}

// MarkUnknown flags timer id as having an unconfirmed state.
func (s *Session) MarkUnknown(ctx context.Context, id string) error {
	return s.modify(ctx, id, func(t *models.Timer) { t.Note = models.NoteUnknown })
}

// Edit re-infers timer id from a typed clock value such as "0630".
func (s *Session) Edit(ctx context.Context, id, clock string, mode inference.Mode, isPass bool) error {
	hour, minute, err := inference.ParseClock(clock)
	if err != nil {
		return err
	}
	old, ok := s.find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTimer, id)
	}
	interval, ok := s.catalog.Interval(old.EntityName)
	if !ok {
		return fmt.Errorf("%w: entity %q is not in the catalog", ErrUnknownTimer, old.EntityName)
	}
	res, err := inference.Infer(interval, hour, minute, mode, s.now())
	if err != nil {
		return err
	}

	return s.modify(ctx, id, func(t *models.Timer) {
		t.KillTime = res.KillTime
		t.NextSpawn = res.NextSpawn
		t.IsPass = isPass
		t.Note = models.NoteNone
	})
}

// Remove deletes timer id. Removing an absent id is not an error.
func (s *Session) Remove(ctx context.Context, id string) error {
	room, gen, err := s.target()
	if err != nil {
		return err
	}
	return s.checkWrite(gen, s.store.Remove(ctx, room, id))
}

func (s *Session) modify(ctx context.Context, id string, fn func(*models.Timer)) error {
	room, gen, err := s.target()
	if err != nil {
		return err
	}
	t, ok := s.find(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTimer, id)
	}
	fn(&t)
	return s.checkWrite(gen, s.store.Update(ctx, room, t))
}

// MaintenanceReset replaces the room with one timer per catalog entity, all
// spawning at the weekly maintenance time.
func (s *Session) MaintenanceReset(ctx context.Context) ([]models.Timer, error) {
	room, gen, err := s.target()
	if err != nil {
		return nil, err
	}

	reset := MaintenanceTime(s.now()).UnixMilli()
	entities := s.catalog.Entities()
	ts := make([]models.Timer, 0, len(entities))
	for _, e := range entities {
		ts = append(ts, models.Timer{
			ID:            uuid.NewString(),
			EntityName:    e.Name,
			KillTime:      reset - e.Interval.Milliseconds(),
			NextSpawn:     reset,
			Note:          models.NoteMaintenance,
			OriginalInput: maintenanceInput,
		})
	}

	if err := s.checkWrite(gen, s.store.ReplaceAll(ctx, room, ts)); err != nil {
		return nil, err
	}
	return ts, nil
}

// MaintenanceTime returns Wednesday 09:00 of the Monday-based week containing now.
func MaintenanceTime(now time.Time) time.Time {
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	y, m, d := now.Date()
	return time.Date(y, m, d-weekday+3, 9, 0, 0, 0, now.Location())
}

// RestoreFromCache pushes the local snapshot back to the room. Callers must
// have asked the user first.
func (s *Session) RestoreFromCache(ctx context.Context) ([]models.Timer, error) {
	if s.reconciler == nil {
		return nil, ErrNoCache
	}
	room, gen, err := s.target()
	if err != nil {
		return nil, err
	}
	ts, err := s.reconciler.Restore(ctx, room)
	if err != nil {
		return nil, s.checkWrite(gen, err)
	}
	return ts, nil
}

// Assess classifies the committed room for the recovery prompt.
func (s *Session) Assess(ctx context.Context) (reconcile.RoomState, error) {
	if s.reconciler == nil {
		return reconcile.RoomPopulated, ErrNoCache
	}
	room, _, err := s.target()
	if err != nil {
		return "", err
	}
	return s.reconciler.Assess(ctx, room, s.Timers())
}

func (s *Session) now() time.Time {
	return s.clock.Now().In(s.loc)
}
