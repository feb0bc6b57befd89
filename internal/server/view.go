package server

import (
	"log/slog"
	"sync"

	"github.com/jpalmerr/statecast"
)

// viewBuffer is the number of events a view holds before it is considered
// stalled.
const viewBuffer = 64

// event is one slice publication as seen by a view.
type event struct {
	Slice statecast.SliceName `json:"slice"`
	Value any                 `json:"value"`
}

// view is one connected client. It owns a subscription to every slice and
// buffers their publications until the connection writes them out.
//
// Callbacks never block: when the buffer is full the view is marked stalled
// and the connection is closed, so the client reconnects and starts over
// from the replayed values instead of missing a publication silently.
type view struct {
	events  chan event
	stalled chan struct{}
	once    sync.Once
	subs    statecast.Subscriptions
	logger  *slog.Logger
}

// mountView subscribes a new view to every slice of st. The replayed current
// values are the first events in the returned view's channel.
func mountView(st *statecast.Store, logger *slog.Logger) (*view, error) {
	v := &view{
		events:  make(chan event, viewBuffer),
		stalled: make(chan struct{}),
		logger:  logger,
	}

	for _, name := range statecast.SliceNames() {
		h, err := st.Subscribe(name, func(value any) {
			v.push(event{Slice: name, Value: value})
		})
		if err != nil {
			v.unmount()
			return nil, err
		}
		v.subs.Add(h)
	}

	return v, nil
}

func (v *view) push(ev event) {
	select {
	case v.events <- ev:
	default:
		v.once.Do(func() {
			v.logger.Warn("view stalled, closing connection", "slice", ev.Slice)
			close(v.stalled)
		})
	}
}

// unmount releases every subscription of the view.
func (v *view) unmount() {
	v.subs.ReleaseAll()
}
