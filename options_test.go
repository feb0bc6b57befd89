package statecast

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace/noop"
)

func applyOptions(t *testing.T, opts ...Option) *storeConfig {
	t.Helper()

	cfg := &storeConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			t.Fatalf("option error = %v", err)
		}
	}
	return cfg
}

func TestNewStore_Defaults(t *testing.T) {
	st, err := NewStore(nil, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer st.Close()

	if st.usersLoadDelay != defaultUsersLoadDelay {
		t.Errorf("usersLoadDelay = %v, want %v", st.usersLoadDelay, defaultUsersLoadDelay)
	}
	if st.activeUsersDelay != defaultActiveUsersDelay {
		t.Errorf("activeUsersDelay = %v, want %v", st.activeUsersDelay, defaultActiveUsersDelay)
	}
	if st.operationDelay != defaultOperationDelay {
		t.Errorf("operationDelay = %v, want %v", st.operationDelay, defaultOperationDelay)
	}
	if st.logger != slog.Default() {
		t.Error("logger should default to slog.Default()")
	}
	if st.metrics != nil {
		t.Error("metrics should be disabled by default")
	}
	if err := st.operationOutcome(); err != nil {
		t.Errorf("default operation outcome = %v, want nil", err)
	}
}

func TestWithDelays(t *testing.T) {
	cfg := applyOptions(t,
		WithUsersLoadDelay(10*time.Millisecond),
		WithActiveUsersDelay(0),
		WithOperationDelay(time.Minute),
	)

	if cfg.usersLoadDelay != 10*time.Millisecond {
		t.Errorf("usersLoadDelay = %v, want 10ms", cfg.usersLoadDelay)
	}
	if cfg.activeUsersDelay != 0 {
		t.Errorf("activeUsersDelay = %v, want 0", cfg.activeUsersDelay)
	}
	if cfg.operationDelay != time.Minute {
		t.Errorf("operationDelay = %v, want 1m", cfg.operationDelay)
	}
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{"nil logger", WithLogger(nil), "logger cannot be nil"},
		{"nil registerer", WithMetrics(nil), "metrics registerer cannot be nil"},
		{"nil tracer provider", WithTracerProvider(nil), "tracer provider cannot be nil"},
		{"nil clock", WithClock(nil), "clock cannot be nil"},
		{"negative users load delay", WithUsersLoadDelay(-1), "users load delay cannot be negative"},
		{"negative active users delay", WithActiveUsersDelay(-time.Second), "active users delay cannot be negative"},
		{"negative operation delay", WithOperationDelay(-time.Hour), "operation delay cannot be negative"},
		{"nil operation outcome", WithOperationOutcome(nil), "operation outcome cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(nil, nil, tt.opt)
			if err == nil {
				t.Fatalf("NewStore() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewStore() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	st, err := NewStore(DefaultSeedUsers(), nil, WithLogger(logger))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer st.Close()

	st.AddUser("Zoe", "zoe@example.com")

	if !strings.Contains(buf.String(), "user added") {
		t.Errorf("logger output missing 'user added': %s", buf.String())
	}
}

func TestWithClock(t *testing.T) {
	at := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	st, err := NewStore(nil, []Message{{Text: "seed"}}, WithClock(func() time.Time { return at }))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer st.Close()

	if got := st.Messages()[0].CreatedAt; !got.Equal(at) {
		t.Errorf("seed CreatedAt = %v, want %v", got, at)
	}
	if got := st.AppendMessage("later", KindInfo).CreatedAt; !got.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", got, at)
	}
}

func TestWithMetricsNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	st, err := NewStore(nil, nil, WithMetrics(reg), WithMetricsNamespace("users_demo"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer st.Close()

	st.SetBusy(true)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "users_demo_mutations_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected users_demo_mutations_total to be registered")
	}
}

func TestWithTracerProvider(t *testing.T) {
	cfg := applyOptions(t, WithTracerProvider(noop.NewTracerProvider()))
	if cfg.tracerProvider == nil {
		t.Error("tracerProvider not set")
	}
}

func TestWithObserverErrorHandler(t *testing.T) {
	var got []error
	st, err := NewStore(nil, nil,
		WithLogger(testLogger()),
		WithObserverErrorHandler(func(err error) { got = append(got, err) }),
	)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer st.Close()

	h := st.SubscribeBusy(func(bool) { panic("boom") })
	defer h.Release()

	if len(got) != 1 {
		t.Fatalf("handler calls = %d, want 1 (replay)", len(got))
	}
	var oe *ObserverError
	if !errors.As(got[0], &oe) {
		t.Fatalf("error type = %T, want *ObserverError", got[0])
	}
	if oe.Slice != SliceBusy {
		t.Errorf("Slice = %q, want %q", oe.Slice, SliceBusy)
	}
	if !errors.Is(got[0], ErrObserverCallbackFailed) {
		t.Error("error should wrap ErrObserverCallbackFailed")
	}
	if oe.CorrelationID == "" {
		t.Error("CorrelationID should be set")
	}
}
