package timers

import "errors"

var (
	// ErrAccessDenied means the backend rejected the operation on permission
	// grounds. Retrying will fail the same way.
	ErrAccessDenied = errors.New("replication access denied")
	// ErrUnavailable means the backend could not be reached right now.
	ErrUnavailable = errors.New("replication backend unavailable")
	// ErrInvalidTimer is returned for records that can't be stored.
	ErrInvalidTimer = errors.New("invalid timer")
)

// IsAccessDenied reports whether err is an access-denied failure.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsUnavailable reports whether err is a transient connectivity failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
