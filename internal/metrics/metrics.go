/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package metrics holds the process-lifetime Prometheus registry of the batch proxy.
// It is created once in the application and injected into the components that report metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-batchproxy/connpool"
	"github.com/acronis/go-batchproxy/httpclient"
	"github.com/acronis/go-batchproxy/httpserver/middleware"
	"github.com/acronis/go-batchproxy/internal/batch"
	"github.com/acronis/go-batchproxy/internal/buildinfo"
	"github.com/acronis/go-batchproxy/queue"
)

// Namespace is prepended to the batch proxy specific metrics.
// HTTP server counters keep their unprefixed names (http_request, http_200, http_4xx, http_5xx).
const Namespace = "batchproxy"

// StatsProvider provides snapshots of the queue and the connection pool.
type StatsProvider interface {
	QueueStats() queue.Stats
	PoolStats() connpool.Stats
}

// Registry is a Prometheus registry with all batch proxy collectors.
type Registry struct {
	*prometheus.Registry

	HTTPRequests *middleware.HTTPRequestMetricsCollector
	Downstream   *httpclient.PrometheusMetricsCollector
	Items        *prometheus.CounterVec
}

var _ batch.MetricsCollector = (*Registry)(nil)

// NewRegistry creates a new Registry with the runtime, build info, HTTP server,
// downstream client and batch item collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		Registry:     prometheus.NewRegistry(),
		HTTPRequests: middleware.NewHTTPRequestMetricsCollector(),
		Downstream:   httpclient.NewPrometheusMetricsCollector(Namespace),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batch_items_total",
			Help:      "The total number of reported batch items by outcome.",
		}, []string{"outcome"}),
	}
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildinfo.NewPrometheusCollector(Namespace),
		r.Items,
	)
	r.HTTPRequests.MustRegister(r.Registry)
	r.Downstream.MustRegister(r.Registry)
	for _, outcome := range batch.Outcomes {
		r.Items.WithLabelValues(outcome.String())
	}
	return r
}

// IncItems increments the counter of items with the given outcome.
func (r *Registry) IncItems(outcome batch.Outcome) {
	r.Items.WithLabelValues(outcome.String()).Inc()
}

// MustRegisterStats registers gauges reading the queue and pool snapshots on every scrape.
func (r *Registry) MustRegisterStats(p StatsProvider) {
	r.MustRegister(newStatsCollector(p))
}

// Handler returns an HTTP handler exposing the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{Registry: r.Registry})
}

type statsCollector struct {
	provider StatsProvider

	queueLength    *prometheus.Desc
	queueCapacity  *prometheus.Desc
	queueFreeSpace *prometheus.Desc
	queueWaiters   *prometheus.Desc
	poolResident   *prometheus.Desc
	poolIdle       *prometheus.Desc
	poolCapacity   *prometheus.Desc
	poolWaiters    *prometheus.Desc
	poolCreated    *prometheus.Desc
	poolReused     *prometheus.Desc
}

func newStatsCollector(p StatsProvider) *statsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", name), help, nil, nil)
	}
	return &statsCollector{
		provider:       p,
		queueLength:    desc("queue_length", "Current number of queued items."),
		queueCapacity:  desc("queue_capacity", "Current capacity of the queue."),
		queueFreeSpace: desc("queue_free_space", "Capacity minus length of the queue."),
		queueWaiters:   desc("queue_waiters", "Current number of workers waiting for items."),
		poolResident:   desc("pool_resident", "Current number of downstream connection handles."),
		poolIdle:       desc("pool_idle", "Current number of idle downstream connection handles."),
		poolCapacity:   desc("pool_capacity", "Current capacity of the connection pool."),
		poolWaiters:    desc("pool_waiters", "Current number of workers waiting for a connection handle."),
		poolCreated:    desc("pool_created_total", "The total number of created connection handles."),
		poolReused:     desc("pool_reused_total", "The total number of connection handle reuses."),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.queueLength, c.queueCapacity, c.queueFreeSpace, c.queueWaiters,
		c.poolResident, c.poolIdle, c.poolCapacity, c.poolWaiters, c.poolCreated, c.poolReused,
	} {
		ch <- d
	}
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	qs := c.provider.QueueStats()
	ps := c.provider.PoolStats()
	gauge := func(d *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge(c.queueLength, qs.Length)
	gauge(c.queueCapacity, qs.Capacity)
	gauge(c.queueFreeSpace, qs.FreeSpace)
	gauge(c.queueWaiters, qs.Waiters)
	gauge(c.poolResident, ps.Resident)
	gauge(c.poolIdle, ps.Idle)
	gauge(c.poolCapacity, ps.Capacity)
	gauge(c.poolWaiters, ps.Waiters)
	counter(c.poolCreated, ps.Created)
	counter(c.poolReused, ps.Reused)
}
