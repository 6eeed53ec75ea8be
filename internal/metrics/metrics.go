package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visemekit_cache_requests_total",
			Help: "Cache lookups by backend and result (hit, miss, corrupt, error)",
		},
		[]string{"backend", "result"},
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visemekit_cache_writes_total",
			Help: "Cache writes by backend and status",
		},
		[]string{"backend", "status"},
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visemekit_extraction_duration_seconds",
			Help:    "Phonetic extraction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"extractor", "status"},
	)

	AnalysisJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visemekit_analysis_jobs_total",
			Help: "Analysis jobs by outcome (cached, extracted, cancelled, failed)",
		},
		[]string{"outcome"},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "visemekit_analysis_active_jobs",
			Help: "Number of running analysis jobs",
		},
	)

	Generations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visemekit_generations_total",
			Help: "Generate calls by status",
		},
		[]string{"status"},
	)

	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "visemekit_generation_duration_seconds",
			Help: "Generate call duration in seconds",
		},
	)

	BindingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visemekit_bindings_created_total",
			Help: "Total number of bindings created",
		},
	)

	UnmappedSymbols = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visemekit_unmapped_symbols_total",
			Help: "Symbols that fell back to the rest class",
		},
	)

	PresetReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visemekit_preset_reloads_total",
			Help: "Preset files reloaded by the watcher",
		},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
