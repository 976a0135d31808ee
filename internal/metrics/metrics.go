package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine collectors. It satisfies exchange.Recorder.
type Metrics struct {
	registry     *prometheus.Registry
	events       *prometheus.CounterVec
	trades       *prometheus.CounterVec
	resting      prometheus.Gauge
	participants prometheus.Gauge
}

// New registers the engine collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchcore_events_total",
			Help: "Events applied by kind and outcome",
		}, []string{"kind", "outcome"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchcore_trades_total",
			Help: "Executed matches by symbol",
		}, []string{"symbol"}),
		resting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matchcore_resting_orders",
			Help: "Orders currently resting in the book",
		}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matchcore_participants",
			Help: "Participants known to the ledger",
		}),
	}
	m.registry.MustRegister(
		m.events, m.trades, m.resting, m.participants,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveEvent(kind, outcome string) {
	m.events.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveTrade(symbol string) {
	m.trades.WithLabelValues(symbol).Inc()
}

func (m *Metrics) SetResting(n int) {
	m.resting.Set(float64(n))
}

func (m *Metrics) SetParticipants(n int) {
	m.participants.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
