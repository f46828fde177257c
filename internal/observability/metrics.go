package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveCalls    prometheus.Gauge
	CallEvents     *prometheus.CounterVec
	TurnEvents     *prometheus.CounterVec
	WSMessages     *prometheus.CounterVec
	WSWriteErrors  *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec
	TurnLatency    prometheus.Histogram

	turnStages *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of live call sessions.",
		}),
		CallEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		TurnEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_events_total",
			Help:      "Turn coordinator events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures by kind.",
		}, []string{"kind"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		TurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "Latency from final utterance to applied backend response in milliseconds.",
			Buckets:   []float64{100, 250, 500, 750, 1000, 1500, 2500, 5000, 10000},
		}),
		turnStages: newTurnStageWindow(256),
	}
}

func (m *Metrics) ObserveTurnLatency(d time.Duration) {
	m.TurnLatency.Observe(float64(d.Milliseconds()))
}

// ObserveTurnStage records a stage duration into the rolling perf window.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil || m.turnStages == nil {
		return
	}
	m.turnStages.Observe(stage, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTurnIndicator(name string) {
	if m == nil || m.turnStages == nil {
		return
	}
	m.turnStages.ObserveIndicator(name)
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil || m.turnStages == nil {
		return TurnStageSnapshot{}
	}
	return m.turnStages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
