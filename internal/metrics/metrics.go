// Package metrics exposes paste lifecycle counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Retrieval outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	created    prometheus.Counter
	rejected   prometheus.Counter
	retrievals *prometheus.CounterVec
	purged     prometheus.Counter
}

// New builds a registry with process and Go runtime collectors plus the
// paste counters.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paste",
			Name:      "created_total",
			Help:      "Pastes successfully created.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paste",
			Name:      "create_rejected_total",
			Help:      "Create requests rejected by validation.",
		}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paste",
			Name:      "retrievals_total",
			Help:      "Retrieval attempts by outcome.",
		}, []string{"outcome"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paste",
			Name:      "purged_total",
			Help:      "Expired pastes removed by the janitor.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.created,
		m.rejected,
		m.retrievals,
		m.purged,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The methods below are nil-safe so callers can run without metrics.

func (m *Metrics) Created() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) Rejected() {
	if m != nil {
		m.rejected.Inc()
	}
}

func (m *Metrics) Retrieval(outcome string) {
	if m != nil {
		m.retrievals.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Purged(n int) {
	if m != nil && n > 0 {
		m.purged.Add(float64(n))
	}
}
