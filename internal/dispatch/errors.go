package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand is returned for commands that cannot be applied to the
	// current state. State is left unchanged.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrEmptyPool is returned by RemoveWorker when there is no worker to remove.
	// It wraps ErrInvalidCommand.
	ErrEmptyPool = fmt.Errorf("%w: worker pool is empty", ErrInvalidCommand)

	// ErrStaleCallback marks a completion callback whose worker/order pairing
	// is no longer current. It is never returned to callers; it is counted and
	// reported on the event bus.
	ErrStaleCallback = errors.New("stale completion callback")
)
