package statecast

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSlice is returned by [Store.Subscribe] for a slice name the
	// store does not own. It indicates a wiring bug in the caller.
	ErrUnknownSlice = errors.New("unknown slice")

	// ErrNotFound is returned when a user id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrObserverCallbackFailed matches every [*ObserverError].
	ErrObserverCallbackFailed = errors.New("observer callback failed")
)

// ObserverError describes an observer callback that panicked while being
// notified. It is reported to the handler set with
// [WithObserverErrorHandler]; it is never returned to the mutating caller.
type ObserverError struct {
	// Slice is the slice whose notification failed.
	Slice SliceName

	// ObserverID identifies the observer within the slice.
	ObserverID uint64

	// CorrelationID links this error to the server-side log entry, which
	// carries the stack trace.
	CorrelationID string

	// Panic is the recovered value.
	Panic any
}

// Error implements the error interface.
func (e *ObserverError) Error() string {
	return fmt.Sprintf("%s: slice %q observer %d: %v (correlation_id: %s)",
		ErrObserverCallbackFailed, e.Slice, e.ObserverID, e.Panic, e.CorrelationID)
}

// Unwrap returns [ErrObserverCallbackFailed].
func (e *ObserverError) Unwrap() error {
	return ErrObserverCallbackFailed
}
