package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// fusion pipeline and the validation sweep.
type Metrics struct {
	SeriesConsumed     prometheus.Counter
	ParseErrors        prometheus.Counter
	BundlesProcessed   prometheus.Counter
	EventsDetected     prometheus.Counter
	EventsFused        prometheus.Counter
	ForecastsPersisted prometheus.Counter
	ForecastsPublished prometheus.Counter
	PipelineRunning    prometheus.Gauge

	// Bundle processing metrics.
	BundleSources  prometheus.Histogram
	FusionDuration prometheus.Histogram

	// Validation metrics.
	ValidationOutcomes       *prometheus.CounterVec // labels: state={validated,unvalidatable}
	ObservationFetches       *prometheus.CounterVec // labels: outcome={success,error}
	ObservationFetchDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SeriesConsumed,
		m.ParseErrors,
		m.BundlesProcessed,
		m.EventsDetected,
		m.EventsFused,
		m.ForecastsPersisted,
		m.ForecastsPublished,
		m.PipelineRunning,
		m.BundleSources,
		m.FusionDuration,
		m.ValidationOutcomes,
		m.ObservationFetches,
		m.ObservationFetchDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SeriesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swell_fusion",
			Name:      "series_consumed_total",
			Help:      "Total per-source series messages read from the source topic.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swell_fusion",
			Name:      "parse_errors_total",
			Help:      "Total source messages that failed envelope parsing.",
		}),
		BundlesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swell_fusion",
			Name:      "bundles_processed_total",
			Help:      "Total bundles run through detection and fusion.",
		}),
		EventsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swell_fusion",
			Name:      "events_detected_total",
			Help:      "Total per-source swell events emitted by detection.",
		}),
		EventsFused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swell_fusion",
			Name:      "events_fused_total",
			Help:      "Total events in fused forecast outputs.",
		}),
		ForecastsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swell_fusion",
			Name:      "forecasts_persisted_total",
			Help:      "Total forecasts written to the store.",
		}),
		ForecastsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swell_fusion",
			Name:      "forecasts_published_total",
			Help:      "Total forecasts published to the sink topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swell_fusion",
			Name:      "pipeline_running",
			Help:      "1 when the fusion pipeline is active, 0 when shut down.",
		}),
		BundleSources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "swell_fusion",
			Name:      "bundle_sources",
			Help:      "Number of sources contributing to a processed bundle.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}),
		FusionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "swell_fusion",
			Name:      "fusion_duration_seconds",
			Help:      "Duration of a complete detect-fuse-score-persist cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		ValidationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swell_fusion",
			Name:      "validation_outcomes_total",
			Help:      "Validation terminal states by outcome.",
		}, []string{"state"}),
		ObservationFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swell_fusion",
			Name:      "observation_fetches_total",
			Help:      "NDBC observation fetches by outcome.",
		}, []string{"outcome"}),
		ObservationFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "swell_fusion",
			Name:      "observation_fetch_duration_seconds",
			Help:      "NDBC request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
