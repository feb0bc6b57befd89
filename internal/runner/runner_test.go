package runner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("task %q did not finish", task.Name())
	}
}

// outcomeRecorder collects finish hook calls.
type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeRecorder) record(_, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *outcomeRecorder) get() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.outcomes...)
}

func TestRunDelayed_FiresOnceAfterDelay(t *testing.T) {
	rec := &outcomeRecorder{}
	r := New(testLogger(), WithFinishHook(rec.record), WithTracerProvider(noop.NewTracerProvider()))
	defer r.Stop()

	var calls atomic.Int32
	start := time.Now()
	task := r.RunDelayed("load", 30*time.Millisecond, func(ctx context.Context) {
		calls.Add(1)
	})
	waitDone(t, task)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, task.Fired())
	assert.False(t, task.Cancelled())
	assert.Equal(t, "load", task.Name())
	assert.Equal(t, []string{OutcomeFired}, rec.get())
}

func TestCancel_PreventsFiring(t *testing.T) {
	rec := &outcomeRecorder{}
	r := New(testLogger(), WithFinishHook(rec.record))
	defer r.Stop()

	var fired atomic.Bool
	task := r.RunDelayed("op", 50*time.Millisecond, func(ctx context.Context) {
		fired.Store(true)
	})

	require.True(t, task.Cancel())
	assert.False(t, task.Cancel(), "second cancel should report false")
	waitDone(t, task)

	time.Sleep(80 * time.Millisecond)
	assert.False(t, fired.Load())
	assert.True(t, task.Cancelled())
	assert.False(t, task.Fired())
	assert.Equal(t, []string{OutcomeCancelled}, rec.get())
}

func TestCancel_AfterFiringReturnsFalse(t *testing.T) {
	r := New(testLogger())
	defer r.Stop()

	task := r.RunDelayed("quick", 0, func(ctx context.Context) {})
	waitDone(t, task)

	assert.False(t, task.Cancel())
	assert.True(t, task.Fired())
}

func TestRunDelayed_PanicIsRecovered(t *testing.T) {
	rec := &outcomeRecorder{}
	r := New(testLogger(), WithFinishHook(rec.record))
	defer r.Stop()

	task := r.RunDelayed("bad", time.Millisecond, func(ctx context.Context) {
		panic("task exploded")
	})
	waitDone(t, task)

	assert.True(t, task.Fired())
	assert.Equal(t, []string{OutcomePanic}, rec.get())

	// runner remains usable
	ok := r.RunDelayed("good", time.Millisecond, func(ctx context.Context) {})
	waitDone(t, ok)
	assert.True(t, ok.Fired())
}

func TestStop_CancelsPendingTasks(t *testing.T) {
	r := New(testLogger())

	var fired atomic.Bool
	task := r.RunDelayed("slow", time.Hour, func(ctx context.Context) {
		fired.Store(true)
	})

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}

	waitDone(t, task)
	assert.True(t, task.Cancelled())
	assert.False(t, fired.Load())
}

func TestStop_Idempotent(t *testing.T) {
	r := New(testLogger())
	r.Stop()
	r.Stop()
}

func TestRunDelayed_AfterStopNeverRuns(t *testing.T) {
	rec := &outcomeRecorder{}
	r := New(testLogger(), WithFinishHook(rec.record))
	r.Stop()

	var fired atomic.Bool
	task := r.RunDelayed("late", 0, func(ctx context.Context) {
		fired.Store(true)
	})
	waitDone(t, task)

	assert.True(t, task.Cancelled())
	assert.False(t, fired.Load())
	assert.Equal(t, []string{OutcomeCancelled}, rec.get())
}

func TestWait_ReturnsAfterRunningTask(t *testing.T) {
	r := New(testLogger())

	started := make(chan struct{})
	var finished atomic.Bool
	r.RunDelayed("running", 0, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		finished.Store(true)
	})

	<-started
	r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
	assert.True(t, finished.Load())
}

func TestWait_HonoursContext(t *testing.T) {
	r := New(testLogger())
	defer r.Stop()

	release := make(chan struct{})
	defer close(release)
	r.RunDelayed("stuck", 0, func(context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestStop_FromTaskReturns(t *testing.T) {
	r := New(testLogger())

	var stopped atomic.Bool
	task := r.RunDelayed("stopper", 0, func(ctx context.Context) {
		r.Stop()
		stopped.Store(true)
	})
	waitDone(t, task)

	assert.True(t, stopped.Load())
	assert.True(t, task.Fired())

	late := r.RunDelayed("late", 0, func(context.Context) {
		t.Error("task scheduled after Stop must not run")
	})
	waitDone(t, late)
	assert.True(t, late.Cancelled())
}

func TestRunDelayed_NegativeDelay(t *testing.T) {
	r := New(testLogger())
	defer r.Stop()

	task := r.RunDelayed("neg", -time.Second, func(ctx context.Context) {})
	waitDone(t, task)
	assert.True(t, task.Fired())
}
