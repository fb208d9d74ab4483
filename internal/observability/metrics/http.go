package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	filesAcceptedTotal  *prometheus.CounterVec
	filesRejectedTotal  *prometheus.CounterVec
	batchesCreatedTotal *prometheus.CounterVec
	batchFileCount      *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxagent",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxagent",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taxagent",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	filesAcceptedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxagent",
			Subsystem: "intake",
			Name:      "files_accepted_total",
			Help:      "Total files accepted into upload batches.",
		},
		[]string{"service"},
	)
	filesRejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxagent",
			Subsystem: "intake",
			Name:      "files_rejected_total",
			Help:      "Total rejected upload offers by reason.",
		},
		[]string{"service", "reason"},
	)
	batchesCreatedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxagent",
			Subsystem: "intake",
			Name:      "batches_created_total",
			Help:      "Total upload batches created.",
		},
		[]string{"service"},
	)
	batchFileCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxagent",
			Subsystem: "intake",
			Name:      "batch_file_count",
			Help:      "Distribution of accepted files per batch.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		filesAcceptedTotal,
		filesRejectedTotal,
		batchesCreatedTotal,
		batchFileCount,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		service:             service,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		filesAcceptedTotal:  filesAcceptedTotal,
		filesRejectedTotal:  filesRejectedTotal,
		batchesCreatedTotal: batchesCreatedTotal,
		batchFileCount:      batchFileCount,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses identifier segments so the path label stays
// low-cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/batches/"):
		return "/v1/batches/{batch_id}"
	case strings.HasPrefix(path, "/v1/bookings/"):
		return "/v1/bookings/{booking_id}"
	case strings.HasPrefix(path, "/v1/exports/"):
		return "/v1/exports/{export_id}"
	case strings.HasPrefix(path, "/v1/admin/users/"):
		return "/v1/admin/users/{user_id}"
	default:
		return path
	}
}

// RecordIntake observes the outcome of one upload batch.
func (m *HTTPServerMetrics) RecordIntake(accepted int, rejections []domain.Rejection) {
	if accepted > 0 {
		m.filesAcceptedTotal.WithLabelValues(m.service).Add(float64(accepted))
		m.batchesCreatedTotal.WithLabelValues(m.service).Inc()
		m.batchFileCount.WithLabelValues(m.service).Observe(float64(accepted))
	}
	for _, rejection := range rejections {
		m.filesRejectedTotal.WithLabelValues(m.service, string(rejection.Reason)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
