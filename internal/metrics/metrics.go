// Package metrics provides Prometheus instrumentation for the state store.
//
// All methods are safe to call on a nil *Metrics, which disables collection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "statecast"

// Metrics holds the collectors for one store.
type Metrics struct {
	mutations        *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	observerFailures *prometheus.CounterVec
	observers        *prometheus.GaugeVec
	tasks            *prometheus.CounterVec
}

// New registers the store collectors with reg. An empty namespace uses
// [DefaultNamespace]. Registering twice with the same registry panics, as
// with any promauto factory.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Total number of store mutations by operation",
		}, []string{"op"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of observer notifications delivered by slice",
		}, []string{"slice"}),

		observerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observer_failures_total",
			Help:      "Total number of observer callbacks that panicked by slice",
		}, []string{"slice"}),

		observers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers",
			Help:      "Number of live observers by slice",
		}, []string{"slice"}),

		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of delayed tasks by name and outcome",
		}, []string{"task", "outcome"}),
	}
}

// Mutation counts one store mutation.
func (m *Metrics) Mutation(op string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op).Inc()
}

// Notified counts one delivered notification.
func (m *Metrics) Notified(slice string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(slice).Inc()
}

// ObserverFailed counts one panicking observer callback.
func (m *Metrics) ObserverFailed(slice string) {
	if m == nil {
		return
	}
	m.observerFailures.WithLabelValues(slice).Inc()
}

// Observers records the current observer count of a slice.
func (m *Metrics) Observers(slice string, n int) {
	if m == nil {
		return
	}
	m.observers.WithLabelValues(slice).Set(float64(n))
}

// TaskFinished counts one delayed task reaching a terminal outcome.
func (m *Metrics) TaskFinished(task, outcome string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(task, outcome).Inc()
}
