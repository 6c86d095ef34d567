// Package metrics defines the Prometheus instrumentation surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	RecordsTotal   *prometheus.CounterVec
	ImagesStored   prometheus.Counter
	ImagesFailed   prometheus.Counter
	ActiveListings prometheus.Gauge
	FetchesTotal   *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floorsync",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by terminal result.",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "floorsync",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of sync runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		RecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floorsync",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Records processed by outcome.",
		}, []string{"outcome"}),
		ImagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floorsync",
			Subsystem: "images",
			Name:      "stored_total",
			Help:      "Images downloaded into blob storage.",
		}),
		ImagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floorsync",
			Subsystem: "images",
			Name:      "failed_total",
			Help:      "Image downloads or attachments that failed.",
		}),
		ActiveListings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floorsync",
			Name:      "active_listings",
			Help:      "Listings currently marked active.",
		}),
		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floorsync",
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Page fetches by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RecordsTotal,
		m.ImagesStored,
		m.ImagesFailed,
		m.ActiveListings,
		m.FetchesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
