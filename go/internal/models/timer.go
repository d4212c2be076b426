package models

// TimerNote tags a timer whose state was not confirmed by a kill report.
type TimerNote string

const (
	NoteNone        TimerNote = ""
	NoteLost        TimerNote = "lost"
	NoteUnknown     TimerNote = "unknown"
	NoteMaintenance TimerNote = "maintenance"
)

// Timer is the replicated record tracking one entity's latest kill/spawn cycle.
// Timestamps are milliseconds since the Unix epoch.
type Timer struct {
	ID            string    `json:"id"`
	EntityName    string    `json:"entityName"`
	KillTime      int64     `json:"killTime"`
	NextSpawn     int64     `json:"nextSpawn"`
	IsPass        bool      `json:"isPass"`
	Note          TimerNote `json:"note,omitempty"`
	OriginalInput string    `json:"originalInput"`
}

// CloneTimers returns a copy of the slice so callers can't alias replicated state.
func CloneTimers(in []Timer) []Timer {
	if in == nil {
		return nil
	}
	out := make([]Timer, len(in))
	copy(out, in)
	return out
}
