// Package metrics provides Prometheus metrics for the web builder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors exported by the service.
type Metrics struct {
	GenerationsTotal     *prometheus.CounterVec
	GenerationDuration   prometheus.Histogram
	ConversationMessages prometheus.Gauge
	QueueDepth           prometheus.Gauge
	HTTPRequestsTotal    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webbuilder_generations_total",
				Help: "Website generations by outcome",
			},
			[]string{"status"},
		),
		GenerationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webbuilder_generation_duration_seconds",
				Help:    "Duration of completion calls in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
		),
		ConversationMessages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webbuilder_conversation_messages",
				Help: "Messages currently held in the conversation log",
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "webbuilder_queue_depth",
				Help: "Jobs waiting in the single-writer queue",
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webbuilder_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// RecordGeneration records the outcome of one generation. A nil receiver is a no-op.
func (m *Metrics) RecordGeneration(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		m.GenerationDuration.Observe(duration.Seconds())
	}
}

// SetConversationLength updates the conversation gauge.
func (m *Metrics) SetConversationLength(n int) {
	if m == nil {
		return
	}
	m.ConversationMessages.Set(float64(n))
}

// SetQueueDepth updates the queue gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// RecordRequest counts one HTTP request.
func (m *Metrics) RecordRequest(method, route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
}
