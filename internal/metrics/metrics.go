// Package metrics holds the Prometheus instruments shared by the core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trailmark"

// Metrics groups every instrument. A nil Registerer yields working but
// unregistered instruments, which is what tests and embedders that do not
// scrape want.
type Metrics struct {
	// CollectionOps counts collection operations.
	// Labels: collection (history, bookmark), op (upsert, delete, ...), result (ok, error)
	CollectionOps *prometheus.CounterVec

	// CollectionOpSeconds measures collection operation latency.
	// Labels: collection, op
	CollectionOpSeconds *prometheus.HistogramVec

	// IndexRebuilds counts full index rebuilds.
	// Labels: collection, reason (mismatch, recreated, manual)
	IndexRebuilds *prometheus.CounterVec

	// IndexDocuments reports the committed document count after each rebuild.
	// Labels: collection
	IndexDocuments *prometheus.GaugeVec

	// SuggestSeconds measures end-to-end suggestion latency.
	SuggestSeconds prometheus.Histogram

	// SuggestSourceErrors counts failed suggestion sources.
	// Labels: source (history, bookmarks, external, session)
	SuggestSourceErrors *prometheus.CounterVec

	// SessionSaves counts session snapshot writes.
	// Labels: result (ok, error, deferred)
	SessionSaves *prometheus.CounterVec

	// PolicyResolutions counts permission decisions handed out.
	// Labels: kind, decision
	PolicyResolutions *prometheus.CounterVec
}

// New creates the instruments and registers them with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CollectionOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "operations_total",
			Help:      "Collection operations by collection, operation and result",
		}, []string{"collection", "op", "result"}),

		CollectionOpSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "operation_duration_seconds",
			Help:      "Collection operation latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"collection", "op"}),

		IndexRebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Full text index rebuilds by collection and reason",
		}, []string{"collection", "reason"}),

		IndexDocuments: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents",
			Help:      "Documents in the text index after the last rebuild",
		}, []string{"collection"}),

		SuggestSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "suggest",
			Name:      "duration_seconds",
			Help:      "Suggestion query latency in seconds",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),

		SuggestSourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggest",
			Name:      "source_errors_total",
			Help:      "Suggestion sources that failed, by source",
		}, []string{"source"}),

		SessionSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "saves_total",
			Help:      "Session snapshot writes by result",
		}, []string{"result"}),

		PolicyResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "resolutions_total",
			Help:      "Permission decisions by kind and decision",
		}, []string{"kind", "decision"}),
	}
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
