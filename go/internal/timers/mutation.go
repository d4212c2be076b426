package timers

import (
	"sort"

	"github.com/mcdev12/respawn/go/internal/models"
)

// Mutation is one atomic change to a room's collection. Backends must apply
// all of its parts together or not at all.
type Mutation struct {
	// Replace drops every existing record before Puts are applied.
	Replace bool
	// Deletes lists record ids to remove.
	Deletes []string
	// Puts are full records written by id.
	Puts []models.Timer
	// SupersedeEntity removes any other record sharing a put's entity name.
	SupersedeEntity bool
	// UpdateOnly drops puts whose id is no longer present, so a stale write
	// cannot resurrect a superseded or removed record.
	UpdateOnly bool
}

// ApplyTo returns the collection that results from applying m to current.
// current is not modified.
func (m Mutation) ApplyTo(current []models.Timer) []models.Timer {
	byID := make(map[string]models.Timer, len(current)+len(m.Puts))
	if !m.Replace {
		for _, t := range current {
			byID[t.ID] = t
		}
	}
	for _, id := range m.Deletes {
		delete(byID, id)
	}
	for _, put := range m.Puts {
		if _, ok := byID[put.ID]; m.UpdateOnly && !ok {
			continue
		}
		if m.SupersedeEntity {
			for id, existing := range byID {
				if existing.EntityName == put.EntityName && id != put.ID {
					delete(byID, id)
				}
			}
		}
		byID[put.ID] = put
	}

	out := make([]models.Timer, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	SortBySpawn(out)
	return out
}

// SortBySpawn orders timers by next spawn, breaking ties by id so every
// replica renders the same order.
func SortBySpawn(ts []models.Timer) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].NextSpawn != ts[j].NextSpawn {
			return ts[i].NextSpawn < ts[j].NextSpawn
		}
		return ts[i].ID < ts[j].ID
	})
}
