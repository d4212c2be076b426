package models

import "time"

// Entity is a named recurring boss with a fixed respawn interval.
type Entity struct {
	Name     string        `json:"name" yaml:"name"`
	Interval time.Duration `json:"interval" yaml:"-"`
	Aliases  []string      `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// DisplayName returns the first alias (short name) or the full name.
func (e Entity) DisplayName() string {
	if len(e.Aliases) > 0 {
		return e.Aliases[0]
	}
	return e.Name
}

// FixedEntity is a boss that appears at fixed clock times instead of a rolling interval.
type FixedEntity struct {
	Name        string   `json:"name" yaml:"name"`
	Location    string   `json:"location,omitempty" yaml:"location,omitempty"`
	SpawnTimes  []string `json:"spawnTimes" yaml:"spawn_times"`         // "HH:MM"
	Days        []int    `json:"days,omitempty" yaml:"days,omitempty"` // 0=Sunday; empty means every day
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}
