// Package dispatch delivers observer notifications in FIFO order with
// per-callback failure isolation.
//
// Producers enqueue calls while holding their own lock, which fixes the
// delivery order, and then call [Dispatcher.Drain] after releasing it. The
// first goroutine to find the dispatcher idle delivers everything queued,
// including calls enqueued by the callbacks it runs. Callbacks may therefore
// re-enter the producer without deadlocking.
//
// [Dispatcher.Deliver] bypasses the queue for a call that must run on the
// caller's goroutine, such as the replay of a new subscription.
package dispatch

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/eapache/queue"
	"github.com/google/uuid"
)

// Call is a single pending observer invocation.
type Call struct {
	// Slice names the state slice the notification belongs to.
	Slice string

	// Observer identifies the observer within its slice.
	Observer uint64

	// Fn invokes the observer with the value captured at enqueue time.
	Fn func()
}

// Failure describes a callback that panicked during delivery.
type Failure struct {
	Slice         string
	Observer      uint64
	CorrelationID string
	Panic         any
	Stack         []byte
}

// Dispatcher serializes delivery of [Call] values.
type Dispatcher struct {
	mu       sync.Mutex
	pending  *queue.Queue
	draining bool

	logger    *slog.Logger
	onFailure func(Failure)
	onDeliver func(slice string)
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithFailureHandler registers fn to receive every recovered callback panic.
// fn is called on the delivering goroutine and must not block.
func WithFailureHandler(fn func(Failure)) Option {
	return func(d *Dispatcher) {
		d.onFailure = fn
	}
}

// WithDeliveryHook registers fn to be called after each successful delivery.
func WithDeliveryHook(fn func(slice string)) Option {
	return func(d *Dispatcher) {
		d.onDeliver = fn
	}
}

// New creates an idle [Dispatcher]. A nil logger falls back to slog.Default().
func New(logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		pending: queue.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue appends calls to the delivery queue in order.
func (d *Dispatcher) Enqueue(calls ...Call) {
	if len(calls) == 0 {
		return
	}

	d.mu.Lock()
	for _, c := range calls {
		d.pending.Add(c)
	}
	d.mu.Unlock()
}

// Pending returns the number of queued calls not yet delivered.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Length()
}

// Drain delivers queued calls until the queue is empty. If another goroutine
// (or an outer frame of the current one) is already draining, Drain returns
// immediately and that drainer delivers the calls instead.
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true

	for d.pending.Length() > 0 {
		c := d.pending.Remove().(Call)
		d.mu.Unlock()

		d.invoke(c)

		d.mu.Lock()
	}

	d.draining = false
	d.mu.Unlock()
}

// Deliver runs c on the calling goroutine, with the same panic isolation and
// delivery hook as queued calls. It does not wait for an active drain.
func (d *Dispatcher) Deliver(c Call) {
	d.invoke(c)
}

// invoke runs a single call with panic recovery.
// A panicking callback is logged with a correlation ID and reported to the
// failure handler; it never stops delivery of the calls behind it.
func (d *Dispatcher) invoke(c Call) {
	defer func() {
		if r := recover(); r != nil {
			f := Failure{
				Slice:         c.Slice,
				Observer:      c.Observer,
				CorrelationID: uuid.NewString(),
				Panic:         r,
				Stack:         debug.Stack(),
			}

			d.logger.Error("observer callback panicked",
				"correlation_id", f.CorrelationID,
				"slice", f.Slice,
				"observer", f.Observer,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(f.Stack),
			)

			if d.onFailure != nil {
				d.onFailure(f)
			}
		}
	}()

	c.Fn()

	if d.onDeliver != nil {
		d.onDeliver(c.Slice)
	}
}
