package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the aggregation pipeline.
// Per-tile outcomes are recorded individually so a degraded upstream is
// visible even though partial tile failure is not surfaced to clients.
type Metrics struct {
	TileFetches     *prometheus.CounterVec // labels: outcome={success,network_error,parse_error}
	AlertsDiscarded prometheus.Counter
	CyclesTotal     *prometheus.CounterVec // labels: outcome={ok,upstream_down}
	CycleDuration   prometheus.Histogram
	TilesSucceeded  prometheus.Gauge
	IncidentsStored *prometheus.GaugeVec // labels: category
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.TileFetches,
		m.AlertsDiscarded,
		m.CyclesTotal,
		m.CycleDuration,
		m.TilesSucceeded,
		m.IncidentsStored,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "traffic_watch",
			Name:      "tile_fetches_total",
			Help:      "Tile fetch attempts by outcome; success means the body also parsed.",
		}, []string{"outcome"}),
		AlertsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "traffic_watch",
			Name:      "alerts_discarded_total",
			Help:      "Raw alerts dropped by classification.",
		}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "traffic_watch",
			Name:      "cycles_total",
			Help:      "Aggregation cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "traffic_watch",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-store cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		TilesSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "traffic_watch",
			Name:      "tiles_succeeded",
			Help:      "Tiles that contributed alerts in the last cycle.",
		}),
		IncidentsStored: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "traffic_watch",
			Name:      "incidents_stored",
			Help:      "Incidents in the current snapshot by category.",
		}, []string{"category"}),
	}
}
