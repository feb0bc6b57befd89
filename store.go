package statecast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/statecast/internal/dispatch"
	"github.com/jpalmerr/statecast/internal/metrics"
	"github.com/jpalmerr/statecast/internal/runner"
	"github.com/jpalmerr/statecast/internal/slice"
)

// Store is the single authority for the users, messages and busy slices.
//
// Every read of current state and every subscription goes through the Store.
// Mutations are serialized by one lock: each computes the new value and
// queues its notification round while holding it, so observers see rounds in
// exactly the order the mutations happened. Delivery happens after the lock
// is released, so callbacks may call back into the Store, including
// mutations, without deadlocking.
//
// The typical lifecycle is:
//
//	st, err := statecast.NewStore(statecast.DefaultSeedUsers(), nil)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	var subs statecast.Subscriptions
//	subs.Add(st.SubscribeUsers(func(users []statecast.User) {
//	    render(users)
//	}))
//	defer subs.ReleaseAll()
//
// All methods are safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	users         *slice.Slice[[]User]
	messages      *slice.Slice[[]Message]
	busy          *slice.Slice[bool]
	nextUserID    int
	nextMessageID int

	dispatcher *dispatch.Dispatcher
	runner     *runner.Runner
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	onObserverError  func(error)
	usersLoadDelay   time.Duration
	activeUsersDelay time.Duration
	operationDelay   time.Duration
	operationOutcome func() error

	closeOnce sync.Once
}

// NewStore creates a [Store] seeded with users and messages.
//
// Seeds are copied; later changes to the arguments do not affect the store.
// A seed with ID 0 is given the next free id. Messages are kept in the order
// given, which should be most recent first. A seed message with a zero
// CreatedAt is stamped with the current time, and an empty Kind becomes
// [KindInfo].
//
// Returns an error if two seed users or two seed messages share an id, if a
// seed message has an unknown kind, or if any option is invalid.
func NewStore(seedUsers []User, seedMessages []Message, opts ...Option) (*Store, error) {
	cfg := &storeConfig{
		now:              time.Now,
		usersLoadDelay:   defaultUsersLoadDelay,
		activeUsersDelay: defaultActiveUsersDelay,
		operationDelay:   defaultOperationDelay,
		operationOutcome: func() error { return nil },
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	users, nextUserID, err := prepareUsers(seedUsers)
	if err != nil {
		return nil, err
	}
	msgs, nextMessageID, err := prepareMessages(seedMessages, cfg.now())
	if err != nil {
		return nil, err
	}

	s := &Store{
		users:            slice.New(string(SliceUsers), users, cloneUsers),
		messages:         slice.New(string(SliceMessages), msgs, cloneMessages),
		busy:             slice.New(string(SliceBusy), false, slice.Identity[bool]),
		nextUserID:       nextUserID,
		nextMessageID:    nextMessageID,
		logger:           logger,
		now:              cfg.now,
		onObserverError:  cfg.onObserverError,
		usersLoadDelay:   cfg.usersLoadDelay,
		activeUsersDelay: cfg.activeUsersDelay,
		operationDelay:   cfg.operationDelay,
		operationOutcome: cfg.operationOutcome,
	}

	if cfg.registerer != nil {
		s.metrics = metrics.New(cfg.registerer, cfg.namespace)
	}

	s.dispatcher = dispatch.New(logger,
		dispatch.WithFailureHandler(s.handleObserverFailure),
		dispatch.WithDeliveryHook(s.metrics.Notified),
	)

	runnerOpts := []runner.Option{runner.WithFinishHook(s.metrics.TaskFinished)}
	if cfg.tracerProvider != nil {
		runnerOpts = append(runnerOpts, runner.WithTracerProvider(cfg.tracerProvider))
	}
	s.runner = runner.New(logger, runnerOpts...)

	logger.Debug("store initialized",
		"users", len(users),
		"messages", len(msgs),
	)

	return s, nil
}

// prepareUsers copies seeds, assigns missing ids and rejects duplicates.
// It returns the next free id.
func prepareUsers(seed []User) ([]User, int, error) {
	users := cloneUsers(seed)

	seen := make(map[int]bool, len(users))
	maxID := 0
	for _, u := range users {
		if u.ID == 0 {
			continue
		}
		if u.ID < 0 {
			return nil, 0, fmt.Errorf("seed user %q: id must be positive, got %d", u.Name, u.ID)
		}
		if seen[u.ID] {
			return nil, 0, fmt.Errorf("duplicate seed user id: %d", u.ID)
		}
		seen[u.ID] = true
		maxID = max(maxID, u.ID)
	}

	for i := range users {
		if users[i].ID == 0 {
			maxID++
			users[i].ID = maxID
		}
	}
	return users, maxID + 1, nil
}

// prepareMessages copies seeds, assigns missing ids, fills defaults and
// rejects duplicates. It returns the next free id.
func prepareMessages(seed []Message, now time.Time) ([]Message, int, error) {
	msgs := cloneMessages(seed)

	seen := make(map[int]bool, len(msgs))
	maxID := 0
	for i := range msgs {
		m := &msgs[i]
		if m.Kind == "" {
			m.Kind = KindInfo
		}
		if !m.Kind.Valid() {
			return nil, 0, fmt.Errorf("seed message %d: unknown kind %q", i, m.Kind)
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if m.ID == 0 {
			continue
		}
		if m.ID < 0 {
			return nil, 0, fmt.Errorf("seed message %d: id must be positive, got %d", i, m.ID)
		}
		if seen[m.ID] {
			return nil, 0, fmt.Errorf("duplicate seed message id: %d", m.ID)
		}
		seen[m.ID] = true
		maxID = max(maxID, m.ID)
	}

	for i := range msgs {
		if msgs[i].ID == 0 {
			maxID++
			msgs[i].ID = maxID
		}
	}
	return msgs, maxID + 1, nil
}

// Close stops the task runner: every task that has not fired is cancelled
// and running ones see their context cancelled. Close does not wait for
// running tasks, so it may be called from a task function or a callback;
// use [Store.Wait] for that. Subscriptions and reads keep working. Close is
// idempotent.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.runner.Stop()
		s.logger.Debug("store closed")
	})
}

// Wait blocks until every running task has returned or ctx is done. It is
// meant to follow [Store.Close] and must not be called from a task function,
// which would wait for itself until ctx is done.
func (s *Store) Wait(ctx context.Context) error {
	if err := s.runner.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for tasks: %w", err)
	}
	return nil
}

// Users returns a snapshot of the users slice.
func (s *Store) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.Snapshot()
}

// User returns the user with the given id, or [ErrNotFound].
func (s *Store) User(id int) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users.Snapshot() {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
}

// Messages returns a snapshot of the message log, most recent first.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages.Snapshot()
}

// Busy returns the current value of the busy flag.
func (s *Store) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy.Snapshot()
}

// Statistics counts users by state. The result always matches the users
// slice at the time of the call.
func (s *Store) Statistics() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return computeStatistics(s.users.Snapshot())
}

// AddUser appends an active user with the next free id, publishes the users
// slice, and then logs a success message.
func (s *Store) AddUser(name, email string) User {
	s.mu.Lock()
	u := User{
		ID:     s.nextUserID,
		Name:   name,
		Email:  email,
		Active: true,
	}
	s.nextUserID++

	users := append(s.users.Snapshot(), u)
	s.dispatcher.Enqueue(s.users.Set(users)...)
	s.appendMessageLocked(fmt.Sprintf("User %q added", name), KindSuccess)
	s.mu.Unlock()

	s.metrics.Mutation("add_user")
	s.logger.Debug("user added", "id", u.ID, "name", name)
	s.dispatcher.Drain()
	return u
}

// ToggleUserActive flips the Active flag of the user with the given id,
// publishes the users slice, and logs a success message when the user was
// activated or a warning when deactivated.
//
// A missing id is a silent no-op: nothing is published or logged, and the
// second return value is false. Callers that need a strict contract can
// check it and report [ErrNotFound] themselves.
func (s *Store) ToggleUserActive(id int) (User, bool) {
	s.mu.Lock()
	users := s.users.Snapshot()

	idx := -1
	for i, u := range users {
		if u.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		s.logger.Debug("toggle ignored for unknown user", "id", id)
		return User{}, false
	}

	users[idx].Active = !users[idx].Active
	u := users[idx]
	s.dispatcher.Enqueue(s.users.Set(users)...)

	if u.Active {
		s.appendMessageLocked(fmt.Sprintf("User %q activated", u.Name), KindSuccess)
	} else {
		s.appendMessageLocked(fmt.Sprintf("User %q deactivated", u.Name), KindWarning)
	}
	s.mu.Unlock()

	s.metrics.Mutation("toggle_user")
	s.logger.Debug("user toggled", "id", id, "active", u.Active)
	s.dispatcher.Drain()
	return u, true
}

// AppendMessage inserts a message at the front of the log and publishes it.
// The zero kind means [KindInfo].
func (s *Store) AppendMessage(text string, kind MessageKind) Message {
	s.mu.Lock()
	m := s.appendMessageLocked(text, kind)
	s.mu.Unlock()

	s.metrics.Mutation("append_message")
	s.dispatcher.Drain()
	return m
}

// appendMessageLocked creates a message and queues its publication.
// The caller must hold s.mu.
func (s *Store) appendMessageLocked(text string, kind MessageKind) Message {
	if kind == "" {
		kind = KindInfo
	}
	m := Message{
		ID:        s.nextMessageID,
		Text:      text,
		CreatedAt: s.now(),
		Kind:      kind,
	}
	s.nextMessageID++

	current := s.messages.Snapshot()
	next := make([]Message, 0, len(current)+1)
	next = append(next, m)
	next = append(next, current...)

	s.dispatcher.Enqueue(s.messages.Set(next)...)
	return m
}

// ClearMessages empties the message log and publishes the empty log, even
// if it was already empty. Message ids are not reused afterwards.
func (s *Store) ClearMessages() {
	s.mu.Lock()
	s.dispatcher.Enqueue(s.messages.Set([]Message{})...)
	s.mu.Unlock()

	s.metrics.Mutation("clear_messages")
	s.dispatcher.Drain()
}

// SetBusy sets the busy flag. Observers are notified only if the value
// changes.
func (s *Store) SetBusy(flag bool) {
	s.mu.Lock()
	if s.busy.Snapshot() == flag {
		s.mu.Unlock()
		return
	}
	s.dispatcher.Enqueue(s.busy.Set(flag)...)
	s.mu.Unlock()

	s.metrics.Mutation("set_busy")
	s.dispatcher.Drain()
}

// republishUsers notifies users observers of the unchanged current value and
// returns a snapshot of it.
func (s *Store) republishUsers() []User {
	s.mu.Lock()
	users := s.users.Snapshot()
	s.dispatcher.Enqueue(s.users.Publish()...)
	s.mu.Unlock()

	s.metrics.Mutation("load_users")
	s.dispatcher.Drain()
	return users
}

// handleObserverFailure converts a recovered callback panic into an
// [*ObserverError] for the configured handler.
func (s *Store) handleObserverFailure(f dispatch.Failure) {
	s.metrics.ObserverFailed(f.Slice)

	if s.onObserverError == nil {
		return
	}
	s.onObserverError(&ObserverError{
		Slice:         SliceName(f.Slice),
		ObserverID:    f.Observer,
		CorrelationID: f.CorrelationID,
		Panic:         f.Panic,
	})
}
