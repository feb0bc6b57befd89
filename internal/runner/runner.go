package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jpalmerr/statecast/internal/runner"

// Task outcomes reported to the finish hook.
const (
	OutcomeFired     = "fired"
	OutcomeCancelled = "cancelled"
	OutcomePanic     = "panic"
)

const (
	statePending int32 = iota
	stateRunning
	stateFired
	stateCancelled
)

// Task is the handle for one scheduled function.
type Task struct {
	name   string
	state  atomic.Int32
	cancel chan struct{}
	done   chan struct{}
}

// Name returns the name the task was scheduled with.
func (t *Task) Name() string {
	return t.name
}

// Cancel prevents a task that has not fired yet from firing.
//
// Cancel reports whether it stopped the task. It returns false if the task
// already started, finished, or was cancelled before. Once Cancel returns
// true the task function is guaranteed never to run.
func (t *Task) Cancel() bool {
	if !t.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	close(t.cancel)
	return true
}

// Done returns a channel that is closed once the task fired or was cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Fired reports whether the task function ran to completion (or panicked).
func (t *Task) Fired() bool {
	return t.state.Load() == stateFired
}

// Cancelled reports whether the task was cancelled before firing.
func (t *Task) Cancelled() bool {
	return t.state.Load() == stateCancelled
}

// Runner owns the goroutines of scheduled tasks.
//
// All methods are safe for concurrent use.
type Runner struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	onFinish func(name, outcome string)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// Option configures a [Runner].
type Option func(*Runner)

// WithTracerProvider sets the provider used to create task spans.
// Defaults to the global provider from otel.GetTracerProvider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithFinishHook registers fn to be called once per task with its outcome.
func WithFinishHook(fn func(name, outcome string)) Option {
	return func(r *Runner) {
		r.onFinish = fn
	}
}

// New creates a [Runner] ready to schedule tasks. A nil logger falls back to
// slog.Default().
func New(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		logger: logger,
		tracer: otel.GetTracerProvider().Tracer(tracerName),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunDelayed schedules fn to run once after at least delay has elapsed.
//
// fn receives a context that is cancelled when the runner stops. If the
// runner is already stopped the returned task is cancelled immediately and
// fn never runs. A negative delay is treated as zero.
func (r *Runner) RunDelayed(name string, delay time.Duration, fn func(ctx context.Context)) *Task {
	t := &Task{
		name:   name,
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		t.Cancel()
		close(t.done)
		r.finish(name, OutcomeCancelled)
		return t
	}
	r.wg.Add(1)
	r.mu.Unlock()

	if delay < 0 {
		delay = 0
	}

	go func() {
		defer r.wg.Done()
		defer close(t.done)

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			if !t.state.CompareAndSwap(statePending, stateRunning) {
				r.finish(name, OutcomeCancelled)
				return
			}
			outcome := r.execute(name, delay, fn)
			t.state.Store(stateFired)
			r.finish(name, outcome)

		case <-t.cancel:
			r.logger.Debug("task cancelled", "task", name)
			r.finish(name, OutcomeCancelled)

		case <-r.ctx.Done():
			t.Cancel()
			r.logger.Debug("task cancelled by shutdown", "task", name)
			r.finish(name, OutcomeCancelled)
		}
	}()

	return t
}

// Stop cancels all pending tasks and the context of running ones. It does
// not wait for them, so a task function may call it. Use [Runner.Wait] to
// block until running tasks have returned.
//
// Stop is idempotent. Tasks scheduled after Stop never run.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.stopped {
		r.stopped = true
		r.cancel()
	}
}

// Wait blocks until every task goroutine has returned or ctx is done, in
// which case it returns ctx.Err(). Tasks keep being accepted until [Runner.Stop]
// is called, so Wait is normally called after it.
//
// Calling Wait from a task function waits for that task too and only returns
// once ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute runs fn inside a span with panic recovery.
// A panic is logged with a correlation ID and recorded on the span; it does
// not propagate to the runner.
func (r *Runner) execute(name string, delay time.Duration, fn func(ctx context.Context)) (outcome string) {
	ctx, span := r.tracer.Start(r.ctx, "statecast.task",
		trace.WithAttributes(
			attribute.String("task.name", name),
			attribute.Int64("task.delay_ms", delay.Milliseconds()),
		),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()

			r.logger.Error("task panicked",
				"correlation_id", correlationID,
				"task", name,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)

			span.SetStatus(codes.Error, fmt.Sprintf("panic (correlation_id: %s)", correlationID))
			outcome = OutcomePanic
		}
	}()

	r.logger.Debug("task firing", "task", name, "delay_ms", delay.Milliseconds())
	fn(ctx)
	span.SetStatus(codes.Ok, "")
	return OutcomeFired
}

func (r *Runner) finish(name, outcome string) {
	if r.onFinish != nil {
		r.onFinish(name, outcome)
	}
}
