// Package runner schedules delayed, cancellable, run-once tasks.
//
// This package is internal to statecast and stands in for operations whose
// result is not immediately available, such as network calls. A task never
// touches store state itself: the function it runs calls back into the
// store's public operations, which serialize it with every other mutation.
//
// The main components are:
//
//   - [Runner]: Owns the lifetime of all scheduled tasks
//   - [Task]: Handle for one scheduled function, supporting cancellation
//
// Stopping a [Runner] cancels every task that has not fired yet and cancels
// the context of tasks that are already running; [Runner.Wait] waits for them.
package runner
