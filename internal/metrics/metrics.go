// Package metrics owns the process-wide Prometheus registry for the fan-out
// pipeline. A dedicated registry keeps the /metrics surface limited to what
// this service exports.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	EventsConsumed   prometheus.Counter
	EventsDerived    prometheus.Counter
	Broadcasts       prometheus.Counter
	Deliveries       *prometheus.CounterVec
	RetriesScheduled prometheus.Counter
	DeadLetters      prometheus.Counter
}

// New builds the registry. connectedClients feeds the listener session gauge.
func New(connectedClients func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playerfeed_events_consumed_total",
			Help: "Events read from the topic.",
		}),
		EventsDerived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playerfeed_events_derived_total",
			Help: "Follow-on events produced by the rules stage.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playerfeed_broadcasts_total",
			Help: "Events handed to the realtime broadcast registry.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "playerfeed_deliveries_total",
			Help: "Webhook delivery attempts by outcome.",
		}, []string{"status"}),
		RetriesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playerfeed_retries_scheduled_total",
			Help: "Delivery jobs placed on the retry queue.",
		}),
		DeadLetters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "playerfeed_dead_letters_total",
			Help: "Deliveries abandoned after exhausting all attempts.",
		}),
	}

	clientGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "playerfeed_websocket_clients",
		Help: "Currently connected listener sessions.",
	}, func() float64 {
		return float64(connectedClients())
	})

	m.registry.MustRegister(
		m.EventsConsumed,
		m.EventsDerived,
		m.Broadcasts,
		m.Deliveries,
		m.RetriesScheduled,
		m.DeadLetters,
		clientGauge,
	)

	return m
}

// Handler serves the registry for GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
