package catalog

import (
	"fmt"
	"slices"
	"time"

	"github.com/mcdev12/respawn/go/internal/models"
)

// FixedSpawn describes the next appearance of a fixed-schedule entity.
type FixedSpawn struct {
	Name string `json:"name"`
	// Active is false when the entity does not spawn on now's weekday at all.
	Active bool `json:"active"`
	// Today is false when the next spawn rolls over to tomorrow.
	Today bool      `json:"today"`
	At    time.Time `json:"at"`
}

// parseSpawnTime turns "HH:MM" into minutes after midnight.
func parseSpawnTime(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid spawn time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid spawn time %q", s)
	}
	return h*60 + m, nil
}

// NextFixedSpawn returns the next scheduled spawn of f strictly after now.
// Like the in-game schedule board, the weekday filter is only applied to today;
// a rollover to tomorrow assumes tomorrow is a spawning day.
func NextFixedSpawn(f models.FixedEntity, now time.Time) FixedSpawn {
	out := FixedSpawn{Name: f.Name}
	if len(f.Days) > 0 && !slices.Contains(f.Days, int(now.Weekday())) {
		return out
	}

	minutes := make([]int, 0, len(f.SpawnTimes))
	for _, st := range f.SpawnTimes {
		m, err := parseSpawnTime(st)
		if err != nil {
			continue
		}
		minutes = append(minutes, m)
	}
	if len(minutes) == 0 {
		return out
	}
	slices.Sort(minutes)

	out.Active = true
	current := now.Hour()*60 + now.Minute()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, m := range minutes {
		if m > current {
			out.Today = true
			out.At = midnight.Add(time.Duration(m) * time.Minute)
			return out
		}
	}
	out.At = midnight.AddDate(0, 0, 1).Add(time.Duration(minutes[0]) * time.Minute)
	return out
}

// FixedSchedule evaluates NextFixedSpawn for every fixed entity in the catalog.
func (c *Catalog) FixedSchedule(now time.Time) []FixedSpawn {
	out := make([]FixedSpawn, 0, len(c.fixed))
	for _, f := range c.fixed {
		out = append(out, NextFixedSpawn(f, now))
	}
	return out
}
