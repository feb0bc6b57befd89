// Package slice implements a single named piece of observable state.
//
// A [Slice] holds the latest value and an ordered list of observers. It is not
// safe for concurrent use on its own: the owner serializes access and hands the
// returned [dispatch.Call] values to a dispatcher for delivery outside its lock.
package slice

import (
	"sync/atomic"

	"github.com/jpalmerr/statecast/internal/dispatch"
)

// CloneFunc returns a copy of a value that shares no mutable memory with the
// original. For immutable value types the identity function is sufficient.
type CloneFunc[T any] func(T) T

// Identity is the [CloneFunc] for value types with no shared memory.
func Identity[T any](v T) T { return v }

// observer is shared by pointer with every delivery call built for it, so a
// call queued before Unsubscribe still sees the released flag.
type observer[T any] struct {
	id       uint64
	fn       func(T)
	released atomic.Bool

	// replayed is closed once the replay call has run. Publication calls
	// wait on it, so the replay always reaches fn first.
	replayed chan struct{}
}

// Slice holds the current value of one piece of state and the observers
// registered for it, in registration order.
type Slice[T any] struct {
	name      string
	current   T
	clone     CloneFunc[T]
	observers []*observer[T]
	nextID    uint64
}

// New creates a slice seeded with initial. The slice keeps its own copy of
// initial, made with clone.
func New[T any](name string, initial T, clone CloneFunc[T]) *Slice[T] {
	if clone == nil {
		clone = Identity[T]
	}
	return &Slice[T]{
		name:    name,
		current: clone(initial),
		clone:   clone,
	}
}

// Name returns the slice name.
func (s *Slice[T]) Name() string {
	return s.name
}

// Snapshot returns a copy of the current value.
func (s *Slice[T]) Snapshot() T {
	return s.clone(s.current)
}

// Len returns the number of registered observers.
func (s *Slice[T]) Len() int {
	return len(s.observers)
}

// Set replaces the current value and returns one delivery call per observer
// registered at this instant, in registration order. Observers added
// afterwards are not included; observers removed afterwards are skipped.
func (s *Slice[T]) Set(v T) []dispatch.Call {
	s.current = s.clone(v)
	return s.calls(s.observers, s.current)
}

// Publish returns delivery calls for the current value without changing it.
func (s *Slice[T]) Publish() []dispatch.Call {
	return s.calls(s.observers, s.current)
}

// Subscribe appends fn to the observer list and returns its id together with
// the replay call that delivers the current value to fn alone.
//
// The replay call must be run exactly once. Publication calls for fn block
// until it has.
func (s *Slice[T]) Subscribe(fn func(T)) (uint64, dispatch.Call) {
	s.nextID++
	obs := &observer[T]{
		id:       s.nextID,
		fn:       fn,
		replayed: make(chan struct{}),
	}
	s.observers = append(s.observers, obs)

	value := s.clone(s.current)
	replay := dispatch.Call{
		Slice:    s.name,
		Observer: obs.id,
		Fn: func() {
			defer close(obs.replayed)
			if !obs.released.Load() {
				fn(s.clone(value))
			}
		},
	}
	return obs.id, replay
}

// Unsubscribe removes the observer with the given id. Calls already built
// for it become no-ops. It reports whether the observer was registered;
// removing an unknown id is a no-op.
func (s *Slice[T]) Unsubscribe(id uint64) bool {
	for i, obs := range s.observers {
		if obs.id == id {
			obs.released.Store(true)
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return true
		}
	}
	return false
}

// calls builds delivery closures for observers. Each observer gets its own
// copy of v, so one observer cannot change what the next one sees.
func (s *Slice[T]) calls(observers []*observer[T], v T) []dispatch.Call {
	if len(observers) == 0 {
		return nil
	}

	value := s.clone(v)
	out := make([]dispatch.Call, len(observers))
	for i, obs := range observers {
		out[i] = dispatch.Call{
			Slice:    s.name,
			Observer: obs.id,
			Fn: func() {
				<-obs.replayed
				if obs.released.Load() {
					return
				}
				obs.fn(s.clone(value))
			},
		}
	}
	return out
}
