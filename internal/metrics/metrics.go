package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/lyftr/internal/ingest"
)

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	WebhookRequests *prometheus.CounterVec
	RequestLatency  prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"path", "status"},
		),
		WebhookRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_requests_total",
				Help: "Webhook ingestion outcomes",
			},
			[]string{"result"},
		),
		RequestLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "request_latency_ms",
				Help:    "HTTP request latency in milliseconds",
				Buckets: []float64{100, 500},
			},
		),
	}
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(path string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
	m.RequestLatency.Observe(float64(elapsed) / float64(time.Millisecond))
}

// RecordIngest counts one ingestion outcome.
func (m *Metrics) RecordIngest(_ context.Context, ev ingest.Event) {
	m.WebhookRequests.WithLabelValues(string(ev.Outcome)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
