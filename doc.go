// Package statecast provides an in-memory reactive state store with ordered,
// replaying subscriptions.
//
// A [Store] owns three state slices: the user list, the message log, and a
// busy flag. Each slice always has a current value. Observers registered on
// a slice receive that value immediately, then every later value, in the
// order they subscribed. Mutations are serialized, so observers see
// publications in the order they happened and never see a half-updated
// slice.
//
// # Quick Start
//
//	st, err := statecast.NewStore(statecast.DefaultSeedUsers(), statecast.DefaultSeedMessages(time.Now()))
//	if err != nil {
//	    slog.Error("failed to create store", "error", err)
//	    os.Exit(1)
//	}
//	defer st.Close()
//
//	var subs statecast.Subscriptions
//	subs.Add(
//	    st.SubscribeUsers(func(users []statecast.User) { fmt.Println(len(users), "users") }),
//	    st.SubscribeBusy(func(busy bool) { fmt.Println("busy:", busy) }),
//	)
//	defer subs.ReleaseAll()
//
//	st.AddUser("Grace", "grace@example.com")
//	st.ToggleUserActive(3)
//	fmt.Printf("%+v\n", st.Statistics())
//
// # Configuration
//
// The store uses the functional options pattern:
//
//	st, err := statecast.NewStore(users, msgs,
//	    statecast.WithLogger(logger),
//	    statecast.WithMetrics(prometheus.NewRegistry()),
//	    statecast.WithOperationDelay(500 * time.Millisecond),
//	)
//
// # Observers
//
// Callbacks run synchronously on the goroutine that performed the mutation
// when nothing else is being delivered. When a delivery is already in
// progress, the new round is queued and delivered by that goroutine right
// after the current one, so ordering is preserved and callbacks may call
// back into the store. Callbacks must not block.
//
// A callback that panics is recovered and logged with a correlation ID; the
// remaining observers are still notified and the mutation still succeeds.
// Use [WithObserverErrorHandler] to receive these failures as
// [*ObserverError] values.
//
// # Simulated Work
//
// [Store.LoadUsers], [Store.ActiveUsers] and [Store.RunOperation] stand in
// for network calls. They complete after a configurable delay by calling
// the store's own mutation operations, and return a [Task] that can be
// cancelled before it fires. [Store.RunDelayed] schedules arbitrary work the
// same way.
//
// # Architecture
//
// statecast consists of several internal packages (under internal/):
//
//   - internal/slice: Generic state slice with ordered observers
//   - internal/dispatch: FIFO delivery with per-callback panic isolation
//   - internal/runner: Delayed, cancellable, run-once tasks
//   - internal/metrics: Prometheus instrumentation
//   - internal/server: HTTP, SSE and WebSocket views over a store
//
// The cmd/statecast binary serves those views, configured by a YAML file
// (see package config).
package statecast
