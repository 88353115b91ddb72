// Package metrics exposes the Prometheus collectors of the bed allocation
// service.  A Collector is bound to a registerer so tests can use a fresh
// registry; a nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medilink"

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	TransitionsTotal *prometheus.CounterVec
	NotifyTotal      *prometheus.CounterVec

	SweeperRunsTotal *prometheus.CounterVec
	SweeperReclaimed *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_transitions_total",
			Help:      "Allocation lifecycle operations by operation and outcome.",
		}, []string{"op", "outcome"}),

		NotifyTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Allocation notifications by stage and outcome.",
		}, []string{"stage", "outcome"}),

		SweeperRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Sweeper ticks by outcome (ok, error, skipped).",
		}, []string{"outcome"}),

		SweeperReclaimed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "reclaimed_total",
			Help:      "Allocations reclaimed by the sweeper, by action (expired, deleted, purged).",
		}, []string{"action"}),
	}
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) Transition(op, outcome string) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(op, outcome).Inc()
}

func (c *Collector) Notify(stage, outcome string) {
	if c == nil {
		return
	}
	c.NotifyTotal.WithLabelValues(stage, outcome).Inc()
}

func (c *Collector) SweepRun(outcome string) {
	if c == nil {
		return
	}
	c.SweeperRunsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) Reclaimed(action string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.SweeperReclaimed.WithLabelValues(action).Add(float64(n))
}

// Handler serves the metrics gathered by g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
