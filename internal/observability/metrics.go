package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hotspot"

// Metrics holds the Prometheus counters, histograms, and gauges for hot-spot runs.
type Metrics struct {
	Runs        *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration prometheus.Histogram
	Regions     prometheus.Gauge

	// Classification of the latest run.
	Spots   *prometheus.GaugeVec // labels: label={hot,cold,not_significant}
	Islands prometheus.Gauge

	PermutationDuration prometheus.Histogram
	Warnings            *prometheus.CounterVec // labels: kind={low_resolution,islands,alpha_unreachable}
	SinkErrors          *prometheus.CounterVec // labels: sink={geojson,kafka,...}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Runs,
		m.RunDuration,
		m.Regions,
		m.Spots,
		m.Islands,
		m.PermutationDuration,
		m.Warnings,
		m.SinkErrors,
	)
	return m
}

// NewUnregisteredMetrics creates Metrics attached to no registry, for
// library calls that run outside the service process.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics()
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Hot-spot runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete load-weights-compute-sink run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		Regions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "regions",
			Help:      "Number of regions analysed in the latest run.",
		}),
		Spots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "regions_by_label",
			Help:      "Regions per classification label in the latest run.",
		}, []string{"label"}),
		Islands: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "islands",
			Help:      "Regions without neighbours in the latest run.",
		}),
		PermutationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "local_statistic_duration_seconds",
			Help:      "Duration of the G* computation including permutations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Non-fatal warnings raised by runs.",
		}, []string{"kind"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed sink attempts by sink.",
		}, []string{"sink"}),
	}
}
