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
	PipelineStageLatency *prometheus.HistogramVec
	ProviderErrors       *prometheus.CounterVec
	GenerationServedBy   *prometheus.CounterVec
	TurnsPersisted       prometheus.Counter
	RetrievalDegraded    prometheus.Counter
	ActiveStreams        prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		PipelineStageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_latency_ms",
			Help:      "Latency per chat pipeline stage in milliseconds.",
			Buckets:   []float64{5, 20, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"stage"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider.",
		}, []string{"provider"}),
		GenerationServedBy: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_served_total",
			Help:      "Completed generations by serving strategy.",
		}, []string{"strategy"}),
		TurnsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_persisted_total",
			Help:      "User/assistant message pairs persisted.",
		}),
		RetrievalDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_degraded_total",
			Help:      "Invocations that proceeded with empty context after a retrieval outage.",
		}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Open websocket chat streams.",
		}),
	}
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.PipelineStageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
