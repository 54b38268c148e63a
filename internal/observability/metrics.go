// Package observability collects Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus registry and application metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	movementsTotal  *prometheus.CounterVec
	salesTotal      prometheus.Counter
	unboxedTotal    prometheus.Counter
	lowStockGauge   prometheus.Gauge
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seastock_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seastock_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seastock_movements_total",
		Help: "Stock movements by type and outcome.",
	}, []string{"type", "outcome"})
	sales := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seastock_sales_total",
		Help: "Executed sales.",
	})
	unboxed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seastock_boxes_unboxed_total",
		Help: "Boxes converted to loose kg during sales.",
	})
	lowStock := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seastock_low_stock_products",
		Help: "Products at or below their low-stock threshold, from the last scan.",
	})
	registry.MustRegister(requests, duration, movements, sales, unboxed, lowStock)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		movementsTotal:  movements,
		salesTotal:      sales,
		unboxedTotal:    unboxed,
		lowStockGauge:   lowStock,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveMovement counts a movement transition by type and outcome.
func (m *Metrics) ObserveMovement(movementType, outcome string) {
	if m == nil {
		return
	}
	m.movementsTotal.WithLabelValues(movementType, outcome).Inc()
}

// ObserveSale counts an executed sale and the boxes it unboxed.
func (m *Metrics) ObserveSale(boxesUnboxed int64) {
	if m == nil {
		return
	}
	m.salesTotal.Inc()
	if boxesUnboxed > 0 {
		m.unboxedTotal.Add(float64(boxesUnboxed))
	}
}

// SetLowStockProducts records the size of the last low-stock scan.
func (m *Metrics) SetLowStockProducts(n int) {
	if m == nil {
		return
	}
	m.lowStockGauge.Set(float64(n))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
