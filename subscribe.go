package statecast

import (
	"fmt"

	"github.com/jpalmerr/statecast/internal/slice"
)

// Subscribe registers fn for the named slice.
//
// fn is called once with the current value before Subscribe returns, on the
// calling goroutine, even when Subscribe is called from inside another
// callback. It is then called once per later publication, in registration
// order relative to the slice's other observers, and never before the
// replay. The value passed to fn is a copy: []User for
// [SliceUsers], []Message for [SliceMessages], bool for [SliceBusy].
//
// Returns an error wrapping [ErrUnknownSlice] if the store has no slice
// with that name. A nil fn registers nothing and returns an inert handle.
func (s *Store) Subscribe(name SliceName, fn func(any)) (*Handle, error) {
	switch name {
	case SliceUsers:
		return s.SubscribeUsers(wrapAny[[]User](fn)), nil
	case SliceMessages:
		return s.SubscribeMessages(wrapAny[[]Message](fn)), nil
	case SliceBusy:
		return s.SubscribeBusy(wrapAny[bool](fn)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSlice, name)
	}
}

// SubscribeUsers registers fn for the users slice. See [Store.Subscribe].
func (s *Store) SubscribeUsers(fn func([]User)) *Handle {
	return subscribe(s, SliceUsers, s.users, fn)
}

// SubscribeMessages registers fn for the message log. See [Store.Subscribe].
func (s *Store) SubscribeMessages(fn func([]Message)) *Handle {
	return subscribe(s, SliceMessages, s.messages, fn)
}

// SubscribeBusy registers fn for the busy flag. See [Store.Subscribe].
func (s *Store) SubscribeBusy(fn func(bool)) *Handle {
	return subscribe(s, SliceBusy, s.busy, fn)
}

// subscribe adds fn to sl and delivers the replay of the current value
// directly. Publications queued meanwhile for fn wait until the replay has
// run.
func subscribe[T any](s *Store, name SliceName, sl *slice.Slice[T], fn func(T)) *Handle {
	if fn == nil {
		h := newHandle(name, nil)
		h.Release()
		return h
	}

	s.mu.Lock()
	id, replay := sl.Subscribe(fn)
	s.metrics.Observers(string(name), sl.Len())
	s.mu.Unlock()

	s.logger.Debug("observer subscribed", "slice", name, "observer", id)
	s.dispatcher.Deliver(replay)

	return newHandle(name, func() {
		s.mu.Lock()
		removed := sl.Unsubscribe(id)
		n := sl.Len()
		s.mu.Unlock()

		if removed {
			s.metrics.Observers(string(name), n)
			s.logger.Debug("observer released", "slice", name, "observer", id)
		}
	})
}

func wrapAny[T any](fn func(any)) func(T) {
	if fn == nil {
		return nil
	}
	return func(v T) { fn(v) }
}
