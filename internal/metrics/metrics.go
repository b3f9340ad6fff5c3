// Package metrics holds the Prometheus collectors for the device loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several devices (or tests) do not collide
// on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	FilterSteps      prometheus.Counter
	FilterRejections prometheus.Counter
	Heading          prometheus.Gauge
	ButtonEvents     *prometheus.CounterVec
	FetchAttempts    *prometheus.CounterVec
	FetchFailures    *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	NavigationState  prometheus.Gauge
	LoopOverruns     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		FilterSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indoor_nav_filter_steps_total",
			Help: "Accepted attitude filter updates.",
		}),
		FilterRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indoor_nav_filter_rejections_total",
			Help: "Samples that did not produce a filter update.",
		}),
		Heading: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indoor_nav_heading_degrees",
			Help: "Current compass heading.",
		}),
		ButtonEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indoor_nav_button_events_total",
			Help: "Button presses by kind.",
		}, []string{"kind"}),
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indoor_nav_fetch_attempts_total",
			Help: "Remote service requests by kind.",
		}, []string{"kind"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indoor_nav_fetch_failures_total",
			Help: "Failed remote service requests by kind.",
		}, []string{"kind"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indoor_nav_fetch_duration_seconds",
			Help:    "Remote service request latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		}, []string{"kind"}),
		NavigationState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indoor_nav_navigation_state",
			Help: "Navigation state (0 idle, 1 locating, 2 routing, 3 navigating).",
		}),
		LoopOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indoor_nav_loop_overruns_total",
			Help: "Loop iterations that took longer than the loop interval.",
		}),
	}
	m.Registry.MustRegister(
		m.FilterSteps, m.FilterRejections, m.Heading, m.ButtonEvents,
		m.FetchAttempts, m.FetchFailures, m.FetchDuration,
		m.NavigationState, m.LoopOverruns,
	)
	return m
}

// ObserveFetch records one remote request.
func (m *Metrics) ObserveFetch(kind string, d time.Duration, err error) {
	m.FetchAttempts.WithLabelValues(kind).Inc()
	m.FetchDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.FetchFailures.WithLabelValues(kind).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
