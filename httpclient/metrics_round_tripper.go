/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector observes finished client requests.
type MetricsCollector interface {
	RequestDuration(requestType, remoteAddress, method, status string, startTime time.Time)
}

// PrometheusMetricsCollector keeps the durations of client requests in a histogram
// labeled by request type, remote address, method and status.
type PrometheusMetricsCollector struct {
	Durations *prometheus.HistogramVec
}

var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)

var clientDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 150, 300}

// NewPrometheusMetricsCollector creates a PrometheusMetricsCollector with metrics in the namespace.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_client_request_duration_seconds",
		Help:      "A histogram of the http client requests durations.",
		Buckets:   clientDurationBuckets,
	}, []string{"type", "remote_address", "method", "status"})
	return &PrometheusMetricsCollector{Durations: durations}
}

// MustRegister registers the histogram.
func (p *PrometheusMetricsCollector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(p.Durations)
}

// RequestDuration implements MetricsCollector.
func (p *PrometheusMetricsCollector) RequestDuration(requestType, remoteAddress, method, status string, start time.Time) {
	p.Durations.WithLabelValues(requestType, remoteAddress, method, status).Observe(time.Since(start).Seconds())
}

// MetricsRoundTripperOpts configures MetricsRoundTripper.
type MetricsRoundTripperOpts struct {
	RequestType string
	Collector   MetricsCollector
}

// MetricsRoundTripper reports every request to the Collector.
// Requests that got no response are reported with status "0".
type MetricsRoundTripper struct {
	Delegate    http.RoundTripper
	RequestType string
	Collector   MetricsCollector
}

// NewMetricsRoundTripperWithOpts creates a MetricsRoundTripper. Without a collector the delegate is returned as is.
func NewMetricsRoundTripperWithOpts(delegate http.RoundTripper, opts MetricsRoundTripperOpts) http.RoundTripper {
	if opts.Collector == nil {
		return delegate
	}
	if opts.RequestType == "" {
		opts.RequestType = DefaultRequestType
	}
	return &MetricsRoundTripper{Delegate: delegate, RequestType: opts.RequestType, Collector: opts.Collector}
}

func (rt *MetricsRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	status := "0"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	rt.Collector.RequestDuration(rt.RequestType, r.URL.Host, r.Method, status, start)
	return resp, err
}
