package catalog

import (
	"fmt"
	"os"

	"github.com/mcdev12/respawn/go/internal/models"
	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML shape of a catalog override.
type File struct {
	Entities []FileEntity         `yaml:"entities"`
	Fixed    []models.FixedEntity `yaml:"fixed,omitempty"`
}

// FileEntity is one interval boss in a catalog file. Hours may be fractional.
type FileEntity struct {
	Name         string   `yaml:"name"`
	RespawnHours float64  `yaml:"respawn_hours"`
	Aliases      []string `yaml:"aliases,omitempty"`
}

// Load reads a catalog YAML file. When the file has no fixed section the
// built-in fixed schedule is kept.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(f.Entities) == 0 {
		return nil, fmt.Errorf("catalog has no entities")
	}

	entities := make([]models.Entity, 0, len(f.Entities))
	for _, fe := range f.Entities {
		entities = append(entities, models.Entity{
			Name:     fe.Name,
			Interval: Hours(fe.RespawnHours),
			Aliases:  fe.Aliases,
		})
	}

	fixed := f.Fixed
	if fixed == nil {
		fixed = defaultFixed()
	}
	return New(entities, fixed)
}
