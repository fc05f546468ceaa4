package instance

import "errors"

var (
	// ErrFrozen is returned by State.AddPrimitive once the state is shared with a view.
	ErrFrozen = errors.New("instance state is frozen")
	// ErrDuplicatePrimitive is returned when a primitive is added twice.
	ErrDuplicatePrimitive = errors.New("primitive already added")
)
