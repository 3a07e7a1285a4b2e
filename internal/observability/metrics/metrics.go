package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

const namespace = "healthbot"

// Metrics owns the Prometheus registry of the service.
type Metrics struct {
	registry *prometheus.Registry

	pipelineResults  *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	rerankBestScore  prometheus.Histogram
	reward           prometheus.Histogram
	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pipelineResults := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "results_total",
			Help:      "Pipeline runs by mode and terminal stage.",
		},
		[]string{"mode", "stage"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_seconds",
			Help:      "Duration of each pipeline stage in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	rerankBestScore := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rerank_best_score",
			Help:      "Best cross-encoder score per answered or low confidence run.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
		},
	)
	reward := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reward",
			Help:      "Automatic reward of generated answers.",
			Buckets:   prometheus.LinearBuckets(-1, 0.25, 9),
		},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	requestsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
		},
	)

	registry.MustRegister(
		pipelineResults,
		stageDuration,
		rerankBestScore,
		reward,
		requestTotal,
		requestDuration,
		requestsInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:         registry,
		pipelineResults:  pipelineResults,
		stageDuration:    stageDuration,
		rerankBestScore:  rerankBestScore,
		reward:           reward,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestsInFlight: requestsInFlight,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage healthbot.Stage, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// ObserveResult counts a finished run and records its scores.
func (m *Metrics) ObserveResult(mode healthbot.Mode, result healthbot.Result) {
	m.pipelineResults.WithLabelValues(string(mode), string(result.Stage)).Inc()
	if result.Confidence != nil {
		m.rerankBestScore.Observe(*result.Confidence)
	}
	if result.Reward != nil {
		m.reward.Observe(*result.Reward)
	}
}

// RequestStarted marks a request in flight and returns the completion callback.
func (m *Metrics) RequestStarted() func(method, path string, status int) {
	start := time.Now()
	m.requestsInFlight.Inc()
	return func(method, path string, status int) {
		m.requestsInFlight.Dec()
		if path == "" {
			path = "unmatched"
		}
		m.requestTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

var _ healthbot.Recorder = (*Metrics)(nil)
