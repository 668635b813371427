// Package osutils holds small process-level helpers.
package osutils

import "errors"

// ErrAlreadyRunning is returned when another instance holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// ElevationWarning describes what the current token cannot block, or
// returns "" when the process is elevated.
func ElevationWarning() string {
	return elevationWarning(IsElevated(), IsAdmin())
}

func elevationWarning(elevated, admin bool) string {
	switch {
	case elevated:
		return ""
	case admin:
		return "Administrator account but not elevated; restart as administrator to block input aimed at elevated windows"
	default:
		return "Not running as administrator; input aimed at elevated windows will not be blocked"
	}
}
