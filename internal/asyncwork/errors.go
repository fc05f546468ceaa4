package asyncwork

import (
	"errors"
	"fmt"
)

// ErrTaskBusy is returned by Task.Init when the task has not been synced yet.
var ErrTaskBusy = errors.New("asyncwork: task is not in the done state")

// ErrJobRunning is returned when a Job is started while a previous run is still in flight.
var ErrJobRunning = errors.New("asyncwork: job already running")

// panicError carries a recovered panic out of a background goroutine.
type panicError struct {
	where string
	value any
}

func (e panicError) Error() string { return fmt.Sprintf("panic in %s: %v", e.where, e.value) }

// IsPanic reports whether err wraps a recovered panic.
func IsPanic(err error) bool {
	var pe panicError
	return errors.As(err, &pe)
}
