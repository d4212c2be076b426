package session

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mcdev12/respawn/go/internal/catalog"
	"github.com/mcdev12/respawn/go/internal/inference"
	"github.com/mcdev12/respawn/go/internal/models"
)

// SortKey orders the board.
type SortKey string

const (
	SortNextSpawn SortKey = "nextSpawn"
	SortName      SortKey = "name"
	// SortKillTime lists the most recent kills first.
	SortKillTime SortKey = "killTime"
)

// ParseSortKey falls back to SortNextSpawn for unknown values.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortName, SortKillTime:
		return SortKey(s)
	}
	return SortNextSpawn
}

// Board filters ts by a name or alias search term and sorts the result.
// ts is not modified.
func Board(c *catalog.Catalog, ts []models.Timer, term string, by SortKey) []models.Timer {
	out := make([]models.Timer, 0, len(ts))
	for _, t := range ts {
		if c.Matches(t.EntityName, term) {
			out = append(out, t)
		}
	}

	switch by {
	case SortName:
		col := collate.New(language.TraditionalChinese)
		sort.SliceStable(out, func(i, j int) bool {
			return col.CompareString(out[i].EntityName, out[j].EntityName) < 0
		})
	case SortKillTime:
		sort.SliceStable(out, func(i, j int) bool { return out[i].KillTime > out[j].KillTime })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].NextSpawn < out[j].NextSpawn })
	}
	return out
}

// Export renders timers one per line as "HHMM name(過) (note)" for pasting
// into chat. Names use the entity's first alias when it has one.
func Export(c *catalog.Catalog, ts []models.Timer, loc *time.Location) string {
	lines := make([]string, 0, len(ts))
	for _, t := range ts {
		var b strings.Builder
		b.WriteString(inference.FormatClock(t.NextSpawn, loc))
		b.WriteString(" ")
		b.WriteString(c.DisplayName(t.EntityName))
		if t.IsPass {
			b.WriteString("(過)")
		}
		if t.Note != models.NoteNone {
			b.WriteString(" (")
			b.WriteString(string(t.Note))
			b.WriteString(")")
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

// Location returns the zone used for inference and rendering.
func (s *Session) Location() *time.Location {
	return s.loc
}

// Catalog returns the entity catalog.
func (s *Session) Catalog() *catalog.Catalog {
	return s.catalog
}
