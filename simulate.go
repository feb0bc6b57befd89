package statecast

import (
	"context"
	"fmt"
	"time"

	"github.com/jpalmerr/statecast/internal/runner"
)

// Task is the handle for work scheduled with [Store.RunDelayed] or one of
// the simulations built on it.
type Task struct {
	task     *runner.Task
	onCancel func()
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.task.Name()
}

// Cancel prevents the task from firing if it has not fired yet. It reports
// whether it did so; once it returns true the task never runs.
func (t *Task) Cancel() bool {
	if !t.task.Cancel() {
		return false
	}
	if t.onCancel != nil {
		t.onCancel()
	}
	return true
}

// Done returns a channel that is closed once the task fired or was
// cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.task.Done()
}

// Fired reports whether the task ran.
func (t *Task) Fired() bool {
	return t.task.Fired()
}

// RunDelayed schedules fn to run once, after at least delay, with access to
// the store's public operations only. The context passed to fn is cancelled
// when the store is closed.
//
// fn runs on its own goroutine; every store call it makes is serialized with
// all other mutations. After [Store.Close] the returned task is already
// cancelled and fn never runs.
func (s *Store) RunDelayed(name string, delay time.Duration, fn func(ctx context.Context, st *Store)) *Task {
	return s.schedule(name, delay, fn, nil)
}

func (s *Store) schedule(name string, delay time.Duration, fn func(ctx context.Context, st *Store), onCancel func()) *Task {
	t := s.runner.RunDelayed(name, delay, func(ctx context.Context) {
		fn(ctx, s)
	})
	return &Task{task: t, onCancel: onCancel}
}

// LoadUsers simulates fetching the user list. It sets the busy flag at once
// and, after the users load delay, republishes the users slice, clears the
// busy flag and calls done (if non-nil) with a snapshot.
//
// Cancelling the task before it fires clears the busy flag.
func (s *Store) LoadUsers(done func([]User)) *Task {
	s.SetBusy(true)

	return s.schedule("load_users", s.usersLoadDelay, func(_ context.Context, st *Store) {
		users := st.republishUsers()
		st.SetBusy(false)
		st.logger.Info("users loaded", "count", len(users))
		if done != nil {
			done(users)
		}
	}, func() { s.SetBusy(false) })
}

// ActiveUsers simulates fetching the active users. After the active users
// delay it calls done with the active subset of the users slice as it is
// at that moment. It does not touch the busy flag.
func (s *Store) ActiveUsers(done func([]User)) *Task {
	return s.schedule("active_users", s.activeUsersDelay, func(_ context.Context, st *Store) {
		active := activeUsers(st.Users())
		if done != nil {
			done(active)
		}
	}, nil)
}

// RunOperation simulates a slow remote operation. It sets the busy flag at
// once and, after the operation delay, appends a success message, or an
// error message if the configured outcome function fails, then clears the
// busy flag and calls done (if non-nil) with the appended message.
//
// A failed operation is recorded as data in the message log; it is not
// returned as an error. Cancelling the task before it fires clears the busy
// flag.
func (s *Store) RunOperation(done func(Message)) *Task {
	s.SetBusy(true)

	return s.schedule("operation", s.operationDelay, func(_ context.Context, st *Store) {
		var m Message
		if err := st.operationOutcome(); err != nil {
			m = st.AppendMessage(fmt.Sprintf("Operation failed: %v", err), KindError)
			st.logger.Warn("operation failed", "error", err)
		} else {
			m = st.AppendMessage("Operation completed successfully", KindSuccess)
			st.logger.Info("operation completed")
		}
		st.SetBusy(false)
		if done != nil {
			done(m)
		}
	}, func() { s.SetBusy(false) })
}
