package statecast

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultUsersLoadDelay   = 1 * time.Second
	defaultActiveUsersDelay = 500 * time.Millisecond
	defaultOperationDelay   = 2 * time.Second
)

// storeConfig holds mutable state during Store construction.
type storeConfig struct {
	logger           *slog.Logger
	registerer       prometheus.Registerer
	namespace        string
	tracerProvider   trace.TracerProvider
	now              func() time.Time
	onObserverError  func(error)
	usersLoadDelay   time.Duration
	activeUsersDelay time.Duration
	operationDelay   time.Duration
	operationOutcome func() error
}

// Option is a function that configures a [Store] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails, which [NewStore] passes back to the caller.
type Option func(*storeConfig) error

// WithLogger sets a custom [slog.Logger] for the store.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithMetrics registers Prometheus collectors for the store with reg.
//
// Metrics are disabled unless this option is given. Each store needs its own
// registry, or registration panics on the duplicate collectors.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	st, err := statecast.NewStore(users, msgs, statecast.WithMetrics(reg))
//
// Returns an error if reg is nil.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *storeConfig) error {
		if reg == nil {
			return errors.New("metrics registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}

// WithMetricsNamespace sets the Prometheus namespace. Defaults to "statecast".
func WithMetricsNamespace(namespace string) Option {
	return func(cfg *storeConfig) error {
		cfg.namespace = namespace
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for delayed task
// spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *storeConfig) error {
		if tp == nil {
			return errors.New("tracer provider cannot be nil")
		}
		cfg.tracerProvider = tp
		return nil
	}
}

// WithClock sets the time source for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(cfg *storeConfig) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.now = now
		return nil
	}
}

// WithObserverErrorHandler registers fn to receive an [*ObserverError] for
// every observer callback that panics.
//
// fn runs on the goroutine delivering notifications and must not block.
// Failures are always logged, whether or not a handler is set. Nil handlers
// are silently ignored.
func WithObserverErrorHandler(fn func(error)) Option {
	return func(cfg *storeConfig) error {
		cfg.onObserverError = fn
		return nil
	}
}

// WithUsersLoadDelay sets the simulated latency of [Store.LoadUsers].
// Defaults to 1 second.
//
// Returns an error if the duration is negative.
func WithUsersLoadDelay(d time.Duration) Option {
	return func(cfg *storeConfig) error {
		if d < 0 {
			return errors.New("users load delay cannot be negative")
		}
		cfg.usersLoadDelay = d
		return nil
	}
}

// WithActiveUsersDelay sets the simulated latency of [Store.ActiveUsers].
// Defaults to 500 milliseconds.
//
// Returns an error if the duration is negative.
func WithActiveUsersDelay(d time.Duration) Option {
	return func(cfg *storeConfig) error {
		if d < 0 {
			return errors.New("active users delay cannot be negative")
		}
		cfg.activeUsersDelay = d
		return nil
	}
}

// WithOperationDelay sets the simulated latency of [Store.RunOperation].
// Defaults to 2 seconds.
//
// Returns an error if the duration is negative.
func WithOperationDelay(d time.Duration) Option {
	return func(cfg *storeConfig) error {
		if d < 0 {
			return errors.New("operation delay cannot be negative")
		}
		cfg.operationDelay = d
		return nil
	}
}

// WithOperationOutcome sets the function that decides whether a simulated
// operation succeeds. A non-nil error makes [Store.RunOperation] log an error
// message instead of a success message. Defaults to always succeeding.
//
// Example:
//
//	st, err := statecast.NewStore(users, msgs,
//	    statecast.WithOperationOutcome(func() error {
//	        return errors.New("upstream unavailable")
//	    }),
//	)
func WithOperationOutcome(fn func() error) Option {
	return func(cfg *storeConfig) error {
		if fn == nil {
			return errors.New("operation outcome cannot be nil")
		}
		cfg.operationOutcome = fn
		return nil
	}
}
