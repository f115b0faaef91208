/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	httpRequestMetricsLabelMethod       = "method"
	httpRequestMetricsLabelRoutePattern = "route_pattern"
	httpRequestMetricsLabelStatusCode   = "status_code"
)

// DefaultHTTPRequestDurationBuckets is default buckets into which observations of serving HTTP requests are counted.
var DefaultHTTPRequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 150, 300}

// HTTPRequestMetricsCollectorOpts represents an options for HTTPRequestMetricsCollector.
type HTTPRequestMetricsCollectorOpts struct {
	// Namespace is prepended to the names of all metrics.
	Namespace       string
	DurationBuckets []float64
}

// HTTPRequestMetricsCollector represents collector of metrics for incoming HTTP requests.
//
// Besides the duration histogram it keeps plain counters of started requests
// and of responses by status class (200, 4xx, 5xx).
type HTTPRequestMetricsCollector struct {
	Durations    *prometheus.HistogramVec
	InFlight     prometheus.Gauge
	Requests     prometheus.Counter
	Responses200 prometheus.Counter
	Responses4xx prometheus.Counter
	Responses5xx prometheus.Counter
}

// NewHTTPRequestMetricsCollector creates a new metrics collector.
func NewHTTPRequestMetricsCollector() *HTTPRequestMetricsCollector {
	return NewHTTPRequestMetricsCollectorWithOpts(HTTPRequestMetricsCollectorOpts{})
}

// NewHTTPRequestMetricsCollectorWithOpts is a more configurable version of creating HTTPRequestMetricsCollector.
func NewHTTPRequestMetricsCollectorWithOpts(opts HTTPRequestMetricsCollectorOpts) *HTTPRequestMetricsCollector {
	durBuckets := opts.DurationBuckets
	if durBuckets == nil {
		durBuckets = DefaultHTTPRequestDurationBuckets
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: opts.Namespace, Name: name, Help: help})
	}
	return &HTTPRequestMetricsCollector{
		Durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "A histogram of the HTTP request durations.",
			Buckets:   durBuckets,
		}, []string{httpRequestMetricsLabelMethod, httpRequestMetricsLabelRoutePattern, httpRequestMetricsLabelStatusCode}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being served.",
		}),
		Requests:     counter("http_request", "The total number of started HTTP requests."),
		Responses200: counter("http_200", "The total number of HTTP responses with 200 status code."),
		Responses4xx: counter("http_4xx", "The total number of HTTP responses with 4xx status code."),
		Responses5xx: counter("http_5xx", "The total number of HTTP responses with 5xx status code."),
	}
}

// MustRegister registers the collector's metrics and panics if any error occurs.
func (c *HTTPRequestMetricsCollector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.Durations, c.InFlight, c.Requests, c.Responses200, c.Responses4xx, c.Responses5xx)
}

func (c *HTTPRequestMetricsCollector) trackRequestEnd(method, routePattern string, status int, startTime time.Time) {
	c.Durations.With(prometheus.Labels{
		httpRequestMetricsLabelMethod:       method,
		httpRequestMetricsLabelRoutePattern: routePattern,
		httpRequestMetricsLabelStatusCode:   strconv.Itoa(status),
	}).Observe(time.Since(startTime).Seconds())

	switch {
	case status == http.StatusOK:
		c.Responses200.Inc()
	case status >= 400 && status < 500:
		c.Responses4xx.Inc()
	case status >= 500:
		c.Responses5xx.Inc()
	}
}

type httpRequestMetricsHandler struct {
	next            http.Handler
	collector       *HTTPRequestMetricsCollector
	getRoutePattern RoutePatternGetterFunc
}

// HTTPRequestMetrics is a middleware that collects metrics for incoming HTTP requests using Prometheus data types.
func HTTPRequestMetrics(
	collector *HTTPRequestMetricsCollector, getRoutePattern RoutePatternGetterFunc,
) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		panic("function for getting route pattern cannot be nil")
	}
	return func(next http.Handler) http.Handler {
		return &httpRequestMetricsHandler{next: next, collector: collector, getRoutePattern: getRoutePattern}
	}
}

func (h *httpRequestMetricsHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	startTime, ctx := requestStartTime(r.Context())
	r = r.WithContext(ctx)

	h.collector.Requests.Inc()
	h.collector.InFlight.Inc()
	defer h.collector.InFlight.Dec()

	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	defer func() {
		// Route pattern is known only after the router has matched the request.
		routePattern := h.getRoutePattern(r)
		if p := recover(); p != nil {
			if p != http.ErrAbortHandler { //nolint:errorlint,goerr113
				h.collector.trackRequestEnd(r.Method, routePattern, http.StatusInternalServerError, startTime)
			}
			panic(p)
		}
		h.collector.trackRequestEnd(r.Method, routePattern, responseStatus(wrw), startTime)
	}()

	h.next.ServeHTTP(wrw, r)
}
