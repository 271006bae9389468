// Package metrics exports indexing, embedding and retrieval metrics in
// Prometheus format. A nil *PrometheusExporter is valid and records nothing.
package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports CineSense metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Indexing metrics
	indexRuns     *prometheus.CounterVec
	indexedItems  *prometheus.CounterVec
	indexBatches  prometheus.Counter
	indexDuration prometheus.Histogram

	// Embedding metrics
	embedRequests *prometheus.CounterVec
	embedLatency  *prometheus.HistogramVec
	embedTexts    prometheus.Counter

	// Query metrics
	retrievals       *prometheus.CounterVec
	retrievalLatency prometheus.Histogram
	recommendations  *prometheus.CounterVec

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	breakerState *prometheus.GaugeVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.indexRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinesense",
			Subsystem: "indexer",
			Name:      "runs_total",
			Help:      "Total number of catalog indexing runs",
		},
		[]string{"status"},
	)

	e.indexedItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinesense",
			Subsystem: "indexer",
			Name:      "items_total",
			Help:      "Catalog items seen by the indexer, by outcome",
		},
		[]string{"outcome"},
	)

	e.indexBatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cinesense",
			Subsystem: "indexer",
			Name:      "batches_total",
			Help:      "Total number of upserted batches",
		},
	)

	e.indexDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cinesense",
			Subsystem: "indexer",
			Name:      "run_duration_seconds",
			Help:      "Catalog indexing run duration in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.embedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinesense",
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	e.embedLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cinesense",
			Subsystem: "embedding",
			Name:      "latency_seconds",
			Help:      "Embedding request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"model"},
	)

	e.embedTexts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cinesense",
			Subsystem: "embedding",
			Name:      "texts_total",
			Help:      "Total number of texts embedded",
		},
	)

	e.retrievals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinesense",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total number of similarity retrievals",
		},
		[]string{"status"},
	)

	e.retrievalLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cinesense",
			Subsystem: "retrieval",
			Name:      "latency_seconds",
			Help:      "Similarity retrieval latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.recommendations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinesense",
			Subsystem: "recommend",
			Name:      "requests_total",
			Help:      "Total number of recommendation requests",
		},
		[]string{"status"},
	)

	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinesense",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinesense",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	e.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cinesense",
			Subsystem: "store",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"breaker"},
	)

	registry.MustRegister(
		e.indexRuns,
		e.indexedItems,
		e.indexBatches,
		e.indexDuration,
		e.embedRequests,
		e.embedLatency,
		e.embedTexts,
		e.retrievals,
		e.retrievalLatency,
		e.recommendations,
		e.cacheHits,
		e.cacheMisses,
		e.breakerState,
	)

	return e
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordIndexRun records a finished indexing run.
func (e *PrometheusExporter) RecordIndexRun(total, existing, indexed int, duration time.Duration, success bool) {
	if e == nil {
		return
	}
	e.indexRuns.WithLabelValues(status(success)).Inc()
	e.indexedItems.WithLabelValues("seen").Add(float64(total))
	e.indexedItems.WithLabelValues("existing").Add(float64(existing))
	e.indexedItems.WithLabelValues("indexed").Add(float64(indexed))
	e.indexDuration.Observe(duration.Seconds())
}

// RecordIndexBatch records one upserted batch.
func (e *PrometheusExporter) RecordIndexBatch() {
	if e == nil {
		return
	}
	e.indexBatches.Inc()
}

// RecordEmbedding records one embedding call covering n texts.
func (e *PrometheusExporter) RecordEmbedding(model string, n int, latency time.Duration, success bool) {
	if e == nil {
		return
	}
	e.embedRequests.WithLabelValues(model, status(success)).Inc()
	e.embedLatency.WithLabelValues(model).Observe(latency.Seconds())
	if success {
		e.embedTexts.Add(float64(n))
	}
}

// RecordRetrieval records a similarity retrieval.
func (e *PrometheusExporter) RecordRetrieval(latency time.Duration, success bool) {
	if e == nil {
		return
	}
	e.retrievals.WithLabelValues(status(success)).Inc()
	e.retrievalLatency.Observe(latency.Seconds())
}

// RecordRecommendation records a recommendation request outcome
// ("success", "empty" or "error").
func (e *PrometheusExporter) RecordRecommendation(outcome string) {
	if e == nil {
		return
	}
	e.recommendations.WithLabelValues(outcome).Inc()
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit(cacheType string) {
	if e == nil {
		return
	}
	e.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss(cacheType string) {
	if e == nil {
		return
	}
	e.cacheMisses.WithLabelValues(cacheType).Inc()
}

// SetBreakerState records a circuit breaker transition. state is the
// gobreaker state name.
func (e *PrometheusExporter) SetBreakerState(name, state string) {
	if e == nil {
		return
	}
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	e.breakerState.WithLabelValues(name).Set(v)
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}

// ExportText renders counters and gauges as "name{labels} value" lines,
// sorted by name. Histograms are reported by their sample count. Used by
// the stats command.
func (e *PrometheusExporter) ExportText() (string, error) {
	families, err := e.registry.Gather()
	if err != nil {
		return "", err
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var sb strings.Builder
			sb.WriteString(mf.GetName())
			if len(m.GetLabel()) > 0 {
				labels := make([]string, 0, len(m.GetLabel()))
				for _, label := range m.GetLabel() {
					labels = append(labels, label.GetName()+"=\""+label.GetValue()+"\"")
				}
				sort.Strings(labels)
				sb.WriteString("{" + strings.Join(labels, ",") + "}")
			}
			sb.WriteString(" ")

			switch {
			case m.GetCounter() != nil:
				sb.WriteString(strconv.FormatFloat(m.GetCounter().GetValue(), 'f', -1, 64))
			case m.GetGauge() != nil:
				sb.WriteString(strconv.FormatFloat(m.GetGauge().GetValue(), 'f', -1, 64))
			case m.GetHistogram() != nil:
				sb.WriteString(strconv.FormatUint(m.GetHistogram().GetSampleCount(), 10))
			default:
				continue
			}
			lines = append(lines, sb.String())
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n"), nil
}
