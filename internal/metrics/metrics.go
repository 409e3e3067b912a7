// Package metrics holds the Prometheus collectors for PagePress.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	RendersTotal      *prometheus.CounterVec
	RenderDuration    prometheus.Histogram
	RendersInFlight   prometheus.Gauge
	BytesStreamed     prometheus.Counter
	SettleTimeouts    prometheus.Counter
	ClientDisconnects prometheus.Counter
	OrphansQueued     prometheus.Counter
	OrphansSwept      *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry that also carries
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RendersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pagepress_renders_total",
			Help: "Render jobs by outcome (ok or error code).",
		}, []string{"outcome"}),
		RenderDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagepress_render_duration_seconds",
			Help:    "Wall time of render jobs from validation to record.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120, 180},
		}),
		RendersInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "pagepress_renders_in_flight",
			Help: "Render jobs currently running.",
		}),
		BytesStreamed: f.NewCounter(prometheus.CounterOpts{
			Name: "pagepress_render_bytes_total",
			Help: "PDF bytes relayed from the browser.",
		}),
		SettleTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "pagepress_image_settle_timeouts_total",
			Help: "Renders that printed with images still pending.",
		}),
		ClientDisconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "pagepress_client_disconnects_total",
			Help: "Renders whose response stream failed mid-transfer.",
		}),
		OrphansQueued: f.NewCounter(prometheus.CounterOpts{
			Name: "pagepress_orphans_queued_total",
			Help: "Stored objects queued for the sweeper.",
		}),
		OrphansSwept: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pagepress_orphans_swept_total",
			Help: "Sweeper decisions by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
