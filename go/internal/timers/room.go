package timers

import "strings"

// DefaultRoom is used when a user submits a blank room name.
const DefaultRoom RoomKey = "main"

// RoomKey is a normalized room identifier safe to use as a backend key.
type RoomKey string

// NormalizeRoom trims and lower-cases a user-chosen room name so that
// "Main " and "main" address the same collection.
func NormalizeRoom(name string) RoomKey {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return DefaultRoom
	}
	return RoomKey(key)
}

func (r RoomKey) String() string {
	return string(r)
}
