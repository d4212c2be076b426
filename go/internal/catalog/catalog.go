// Package catalog holds the static table of respawning bosses and their intervals.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/respawn/go/internal/models"
)

// Catalog is an immutable lookup table of entities. The expected size is a few
// dozen rows, so lookups are linear scans.
type Catalog struct {
	entities []models.Entity
	fixed    []models.FixedEntity
}

// New builds a catalog, rejecting empty or duplicate names and non-positive intervals.
func New(entities []models.Entity, fixed []models.FixedEntity) (*Catalog, error) {
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("entity name is required")
		}
		if e.Interval <= 0 {
			return nil, fmt.Errorf("entity %q: interval must be positive", e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("entity %q defined twice", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	for _, f := range fixed {
		if len(f.SpawnTimes) == 0 {
			return nil, fmt.Errorf("fixed entity %q: at least one spawn time is required", f.Name)
		}
		for _, st := range f.SpawnTimes {
			if _, err := parseSpawnTime(st); err != nil {
				return nil, fmt.Errorf("fixed entity %q: %w", f.Name, err)
			}
		}
	}

	c := &Catalog{
		entities: make([]models.Entity, len(entities)),
		fixed:    make([]models.FixedEntity, len(fixed)),
	}
	copy(c.entities, entities)
	copy(c.fixed, fixed)
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultEntities(), defaultFixed())
	if err != nil {
		panic(fmt.Sprintf("catalog: invalid built-in data: %v", err))
	}
	return c
}

// Entities returns the entities in catalog order.
func (c *Catalog) Entities() []models.Entity {
	out := make([]models.Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// Lookup finds an entity by its canonical name.
func (c *Catalog) Lookup(name string) (models.Entity, bool) {
	for _, e := range c.entities {
		if e.Name == name {
			return e, true
		}
	}
	return models.Entity{}, false
}

// Resolve finds an entity by canonical name or alias. Alias matching ignores
// ASCII case so "ef" and "EF" resolve alike.
func (c *Catalog) Resolve(nameOrAlias string) (models.Entity, bool) {
	key := strings.TrimSpace(nameOrAlias)
	if key == "" {
		return models.Entity{}, false
	}
	if e, ok := c.Lookup(key); ok {
		return e, true
	}
	for _, e := range c.entities {
		for _, alias := range e.Aliases {
			if strings.EqualFold(alias, key) {
				return e, true
			}
		}
	}
	return models.Entity{}, false
}

// Interval returns the respawn interval of the named entity.
func (c *Catalog) Interval(name string) (time.Duration, bool) {
	e, ok := c.Lookup(name)
	if !ok {
		return 0, false
	}
	return e.Interval, true
}

// DisplayName returns the short display name for an entity name, falling back
// to the name itself for entities the catalog doesn't know.
func (c *Catalog) DisplayName(name string) string {
	if e, ok := c.Lookup(name); ok {
		return e.DisplayName()
	}
	return name
}

// Matches reports whether term is a case-insensitive substring of the entity
// name or any of its aliases.
func (c *Catalog) Matches(name, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(name), term) {
		return true
	}
	e, ok := c.Lookup(name)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(strings.Join(e.Aliases, " ")), term)
}

// Fixed returns the fixed-schedule entities.
func (c *Catalog) Fixed() []models.FixedEntity {
	out := make([]models.FixedEntity, len(c.fixed))
	copy(out, c.fixed)
	return out
}

// Hours converts fractional respawn hours to a duration without float drift
// for the half-hour values used by the catalog.
func Hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
