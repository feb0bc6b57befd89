package dispatch

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDrain_DeliversInFIFOOrder(t *testing.T) {
	d := New(testLogger())

	var got []int
	for i := 1; i <= 5; i++ {
		d.Enqueue(Call{Slice: "s", Fn: func() { got = append(got, i) }})
	}
	assert.Equal(t, 5, d.Pending())

	d.Drain()

	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
	assert.Equal(t, 0, d.Pending())
}

func TestDrain_PanicDoesNotStopDelivery(t *testing.T) {
	var failures []Failure
	d := New(testLogger(), WithFailureHandler(func(f Failure) {
		failures = append(failures, f)
	}))

	var secondCalled bool
	d.Enqueue(
		Call{Slice: "users", Observer: 1, Fn: func() { panic("boom") }},
		Call{Slice: "users", Observer: 2, Fn: func() { secondCalled = true }},
	)
	d.Drain()

	assert.True(t, secondCalled)
	require.Len(t, failures, 1)
	assert.Equal(t, "users", failures[0].Slice)
	assert.Equal(t, uint64(1), failures[0].Observer)
	assert.Equal(t, "boom", failures[0].Panic)
	assert.NotEmpty(t, failures[0].CorrelationID)
	assert.NotEmpty(t, failures[0].Stack)
}

func TestDrain_DeliveryHookSkipsFailures(t *testing.T) {
	var delivered []string
	d := New(testLogger(), WithDeliveryHook(func(slice string) {
		delivered = append(delivered, slice)
	}))

	d.Enqueue(
		Call{Slice: "a", Fn: func() {}},
		Call{Slice: "b", Fn: func() { panic("nope") }},
		Call{Slice: "c", Fn: func() {}},
	)
	d.Drain()

	assert.Equal(t, []string{"a", "c"}, delivered)
}

func TestDrain_ReentrantEnqueueIsDeliveredAfterCurrentRound(t *testing.T) {
	d := New(testLogger())

	var order []string
	d.Enqueue(
		Call{Fn: func() {
			order = append(order, "first")
			d.Enqueue(Call{Fn: func() { order = append(order, "nested") }})
			d.Drain() // must return immediately, not deadlock
			order = append(order, "first-done")
		}},
		Call{Fn: func() { order = append(order, "second") }},
	)
	d.Drain()

	assert.Equal(t, []string{"first", "first-done", "second", "nested"}, order)
}

func TestDrain_EmptyIsNoop(t *testing.T) {
	d := New(nil)
	d.Enqueue()
	d.Drain()
	assert.Equal(t, 0, d.Pending())
}

func TestDrain_ConcurrentProducers(t *testing.T) {
	d := New(testLogger())

	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.Enqueue(Call{Fn: func() {
					mu.Lock()
					count++
					mu.Unlock()
				}})
				d.Drain()
			}
		}()
	}
	wg.Wait()
	d.Drain()

	assert.Equal(t, 1000, count)
}

func TestDeliver_RunsInsideActiveDrain(t *testing.T) {
	var delivered []string
	d := New(testLogger(), WithDeliveryHook(func(slice string) {
		delivered = append(delivered, slice)
	}))

	var order []string
	d.Enqueue(
		Call{Slice: "outer", Fn: func() {
			d.Deliver(Call{Slice: "direct", Fn: func() { order = append(order, "direct") }})
			order = append(order, "outer-done")
		}},
		Call{Slice: "queued", Fn: func() { order = append(order, "queued") }},
	)
	d.Drain()

	assert.Equal(t, []string{"direct", "outer-done", "queued"}, order)
	assert.Equal(t, []string{"direct", "outer", "queued"}, delivered)
}

func TestDeliver_RecoversPanic(t *testing.T) {
	var failures []Failure
	d := New(testLogger(), WithFailureHandler(func(f Failure) {
		failures = append(failures, f)
	}))

	d.Deliver(Call{Slice: "busy", Observer: 7, Fn: func() { panic("replay failed") }})

	require.Len(t, failures, 1)
	assert.Equal(t, uint64(7), failures[0].Observer)
}
