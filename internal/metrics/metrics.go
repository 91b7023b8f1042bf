// Package metrics holds the Prometheus collectors of the service on a
// private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records turn, persistence, generation and connection counters.
type Metrics struct {
	registry *prometheus.Registry

	turns        *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
	persistFails prometheus.Counter
	degraded     prometheus.Counter
	wsConns      prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meditreat_turns_total",
			Help: "Turns served, by transport mode and outcome.",
		}, []string{"mode", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meditreat_turn_duration_seconds",
			Help:    "Wall time of a turn from validation to persistence.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"}),
		persistFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meditreat_persist_failures_total",
			Help: "Messages that could not be written to the history store.",
		}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meditreat_generation_degraded_total",
			Help: "Replies replaced by the fallback message after a provider failure.",
		}),
		wsConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meditreat_ws_connections",
			Help: "Open websocket chat connections.",
		}),
	}
	m.registry.MustRegister(
		m.turns, m.turnDuration, m.persistFails, m.degraded, m.wsConns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// TurnFinished records one turn.
func (m *Metrics) TurnFinished(mode, outcome string, d time.Duration) {
	m.turns.WithLabelValues(mode, outcome).Inc()
	m.turnDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// PersistFailed counts one failed history write.
func (m *Metrics) PersistFailed() { m.persistFails.Inc() }

// GenerationDegraded counts one degraded reply.
func (m *Metrics) GenerationDegraded() { m.degraded.Inc() }

// ConnOpened increments the websocket gauge.
func (m *Metrics) ConnOpened() { m.wsConns.Inc() }

// ConnClosed decrements the websocket gauge.
func (m *Metrics) ConnClosed() { m.wsConns.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
