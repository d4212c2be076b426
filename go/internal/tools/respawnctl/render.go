package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/mcdev12/respawn/go/internal/catalog"
	"github.com/mcdev12/respawn/go/internal/inference"
	"github.com/mcdev12/respawn/go/internal/models"
)

// printBoard writes one aligned row per timer.
func printBoard(w io.Writer, c *catalog.Catalog, ts []models.Timer, loc *time.Location, now time.Time) {
	if len(ts) == 0 {
		fmt.Fprintln(w, "(no timers)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SPAWN\tIN\tBOSS\tKILLED\tFLAGS\tID")
	for _, t := range ts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inference.FormatClock(t.NextSpawn, loc),
			until(time.UnixMilli(t.NextSpawn), now),
			c.DisplayName(t.EntityName),
			inference.FormatClock(t.KillTime, loc),
			flags(t),
			shortID(t.ID),
		)
	}
	tw.Flush()
}

func until(at, now time.Time) string {
	d := at.Sub(now).Round(time.Minute)
	if d <= 0 {
		return "due"
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

func flags(t models.Timer) string {
	s := ""
	if t.IsPass {
		s += "過"
	}
	if t.Note != models.NoteNone {
		if s != "" {
			s += " "
		}
		s += string(t.Note)
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
