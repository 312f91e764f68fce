package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the viewer's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	handshakes   *prometheus.CounterVec
	pipelineRuns *prometheus.CounterVec
	cards        prometheus.Gauge
	bridgeCalls  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.handshakes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekcal",
		Name:      "handshakes_total",
		Help:      "Auth handshakes by terminal outcome",
	}, []string{"outcome"})
	m.pipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "weekcal",
		Name:      "pipeline_runs_total",
		Help:      "Event pipeline runs by result (rendered, empty, error)",
	}, []string{"result"})
	m.cards = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "weekcal",
		Name:      "rendered_cards",
		Help:      "Cards shown after the last non-empty render",
	})
	m.bridgeCalls = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "weekcal",
		Name:      "bridge_call_duration_seconds",
		Help:      "Latency of delegated bridge calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op", "status"})

	m.registry.MustRegister(
		m.handshakes,
		m.pipelineRuns,
		m.cards,
		m.bridgeCalls,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handshake(outcome string) {
	m.handshakes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PipelineRun(result string) {
	m.pipelineRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCards(n int) {
	m.cards.Set(float64(n))
}

// ObserveBridgeCall records one bridge call started at start.
func (m *Metrics) ObserveBridgeCall(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.bridgeCalls.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
