package statecast

import (
	"sync"
	"sync/atomic"
)

// SliceName identifies one of the store's state slices.
type SliceName string

const (
	// SliceUsers carries []User.
	SliceUsers SliceName = "users"

	// SliceMessages carries []Message, most recent first.
	SliceMessages SliceName = "messages"

	// SliceBusy carries bool.
	SliceBusy SliceName = "busy"
)

// String returns the string representation of the slice name.
func (n SliceName) String() string {
	return string(n)
}

// SliceNames returns every slice a [Store] owns, in a fixed order.
func SliceNames() []SliceName {
	return []SliceName{SliceUsers, SliceMessages, SliceBusy}
}

// Handle is the capability to cancel one subscription.
//
// Release is idempotent and safe to call on a nil *Handle.
type Handle struct {
	slice    SliceName
	once     sync.Once
	released atomic.Bool
	release  func()
}

func newHandle(slice SliceName, release func()) *Handle {
	return &Handle{slice: slice, release: release}
}

// Slice returns the slice the subscription belongs to.
func (h *Handle) Slice() SliceName {
	if h == nil {
		return ""
	}
	return h.slice
}

// Release removes the callback from the slice's observer list. Once
// Release returns the callback is never called again, including for
// notifications that were queued but not yet delivered. A call already
// running on another goroutine is not interrupted.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.released.Store(true)
		if h.release != nil {
			h.release()
		}
	})
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h != nil && h.released.Load()
}

// Subscriptions holds the handles owned by one view so they can be released
// together when the view is torn down.
//
// The zero value is ready to use. All methods are safe for concurrent use.
type Subscriptions struct {
	mu      sync.Mutex
	handles []*Handle
}

// Add records handles for a later [Subscriptions.ReleaseAll]. Nil handles
// are ignored.
func (s *Subscriptions) Add(handles ...*Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range handles {
		if h != nil {
			s.handles = append(s.handles, h)
		}
	}
}

// Len returns the number of held handles.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// ReleaseAll releases every held handle and forgets them. Calling it again
// is a no-op.
func (s *Subscriptions) ReleaseAll() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for _, h := range handles {
		h.Release()
	}
}
