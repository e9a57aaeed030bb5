package inference

import (
	"sync/atomic"
	"time"
)

// endpointStatus is the process-wide view of endpoint connectivity. Every
// prediction attempt and health probe updates it, so the API layer and
// telemetry read the outcome of the most recent contact without probing.
var endpointStatus status

type status struct {
	online    atomic.Bool
	checked   atomic.Bool
	lastCheck atomic.Int64 // unix nanos of the last update
}

// SetOnline records the outcome of an endpoint contact.
func SetOnline(online bool) {
	endpointStatus.online.Store(online)
	endpointStatus.checked.Store(true)
	endpointStatus.lastCheck.Store(time.Now().UnixNano())
}

// Online reports whether the most recent endpoint contact succeeded.
// Before any contact has been made it reports false.
func Online() bool {
	return endpointStatus.online.Load()
}

// Checked reports whether the endpoint has been contacted at all.
func Checked() bool {
	return endpointStatus.checked.Load()
}

// LastCheck returns the time of the most recent endpoint contact, or the
// zero time if none has happened yet.
func LastCheck() time.Time {
	n := endpointStatus.lastCheck.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// ResetStatus clears the status back to the unchecked state. Used by tests
// and by session teardown.
func ResetStatus() {
	endpointStatus.online.Store(false)
	endpointStatus.checked.Store(false)
	endpointStatus.lastCheck.Store(0)
}
