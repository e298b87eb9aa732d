// Package metrics holds the Prometheus collectors for pulse. Everything is
// registered on a private registry so tests can build as many as they like.
package metrics

import (
	"net/http"

	"github.com/aussiebroadwan/pulse/internal/pulse/notify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulse"

// Login outcomes.
const (
	LoginSucceeded = "success"
	LoginFailed    = "failure"
)

type Metrics struct {
	Registry *prometheus.Registry

	logins          *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	hubConnections  prometheus.Gauge
	hubClosed       *prometheus.CounterVec
	eventsDelivered prometheus.Counter
	eventsDropped   prometheus.Counter
}

var _ notify.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),

		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Requests rejected by the rate limiter, per bucket",
		}, []string{"bucket"}),

		hubConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "connections",
			Help:      "Live realtime connections",
		}),

		hubClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "connections_closed_total",
			Help:      "Realtime connections closed, by reason",
		}, []string{"reason"}),

		eventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_delivered_total",
			Help:      "Events written to a realtime connection",
		}),

		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_dropped_total",
			Help:      "Events that could not be queued or written",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.logins,
		m.rateLimited,
		m.hubConnections,
		m.hubClosed,
		m.eventsDelivered,
		m.eventsDropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) Login(outcome string) { m.logins.WithLabelValues(outcome).Inc() }

// RateLimited matches httpx.RateLimitConfig.OnLimited.
func (m *Metrics) RateLimited(bucket string) { m.rateLimited.WithLabelValues(bucket).Inc() }

func (m *Metrics) ConnectionOpened() { m.hubConnections.Inc() }

func (m *Metrics) ConnectionClosed(reason notify.CloseReason) {
	m.hubConnections.Dec()
	m.hubClosed.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) EventDelivered() { m.eventsDelivered.Inc() }
func (m *Metrics) EventDropped()   { m.eventsDropped.Inc() }
