package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/deteval/internal/evaluation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverMetrics are the collectors of one Server, served on /metrics from
// their own registry. A nil *serverMetrics records nothing.
type serverMetrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	evaluations     *prometheus.CounterVec
	evalDuration    *prometheus.HistogramVec
	images          *prometheus.HistogramVec
	lastOverall     *prometheus.GaugeVec
	limited         *prometheus.CounterVec
	bodyBytes       prometheus.Histogram
	wsConnections   prometheus.Gauge
	wsMessages      *prometheus.CounterVec
}

func newServerMetrics() *serverMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &serverMetrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deteval_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deteval_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deteval_evaluations_total",
			Help: "Evaluation requests by transport and outcome.",
		}, []string{"transport", "outcome"}),
		evalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deteval_evaluation_duration_seconds",
			Help:    "Time spent matching one request.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"transport"}),
		images: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deteval_request_images",
			Help:    "Images per evaluation request.",
			Buckets: []float64{1, 10, 100, 1000, 10000},
		}, []string{"transport"}),
		lastOverall: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "deteval_last_overall",
			Help: "Overall precision, recall and f1 of the latest successful evaluation.",
		}, []string{"metric"}),
		limited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deteval_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by limit.",
		}, []string{"limit"}),
		bodyBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "deteval_request_body_bytes",
			Help:    "Size of evaluation request bodies.",
			Buckets: prometheus.ExponentialBuckets(1024, 8, 7),
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deteval_websocket_connections",
			Help: "Open WebSocket connections.",
		}),
		wsMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deteval_websocket_messages_total",
			Help: "WebSocket messages by direction.",
		}, []string{"direction"}),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.evaluations, m.evalDuration, m.images,
		m.lastOverall, m.limited, m.bodyBytes, m.wsConnections, m.wsMessages)
	return m
}

func (m *serverMetrics) handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *serverMetrics) request(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *serverMetrics) evaluation(transport string, images int, d time.Duration, summary *evaluation.Summary, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.evaluations.WithLabelValues(transport, outcome).Inc()
	m.evalDuration.WithLabelValues(transport).Observe(d.Seconds())
	m.images.WithLabelValues(transport).Observe(float64(images))
	if err == nil && summary != nil {
		m.lastOverall.WithLabelValues("precision").Set(summary.Overall.Precision)
		m.lastOverall.WithLabelValues("recall").Set(summary.Overall.Recall)
		m.lastOverall.WithLabelValues("f1").Set(summary.Overall.F1)
	}
}

func (m *serverMetrics) rateLimited(limit string) {
	if m != nil {
		m.limited.WithLabelValues(limit).Inc()
	}
}

func (m *serverMetrics) body(n int) {
	if m != nil {
		m.bodyBytes.Observe(float64(n))
	}
}

func (m *serverMetrics) wsOpened() {
	if m != nil {
		m.wsConnections.Inc()
	}
}

func (m *serverMetrics) wsClosed() {
	if m != nil {
		m.wsConnections.Dec()
	}
}

func (m *serverMetrics) wsMessage(direction string) {
	if m != nil {
		m.wsMessages.WithLabelValues(direction).Inc()
	}
}
