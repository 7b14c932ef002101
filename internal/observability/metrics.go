// Package observability holds process-wide metrics, logging and error reporting.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "swimlog",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity written to Postgres.",
	})

	recordsNormalized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swimlog",
		Subsystem: "import",
		Name:      "records_normalized_total",
		Help:      "Raw activity records accepted by the normalizer.",
	})

	recordsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swimlog",
		Subsystem: "import",
		Name:      "records_rejected_total",
		Help:      "Raw activity records rejected by the normalizer, by reason.",
	}, []string{"reason"})

	lastImportGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "swimlog",
		Subsystem: "import",
		Name:      "last_import_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed import, by source.",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, recordsNormalized, recordsRejected, lastImportGauge)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordImport counts the outcome of one import from source ("api", "fit", "sync").
// rejected holds one reason per rejected record.
func RecordImport(source string, accepted int, rejected []string, at time.Time) {
	recordsNormalized.Add(float64(accepted))
	for _, reason := range rejected {
		recordsRejected.WithLabelValues(reason).Inc()
	}
	if !at.IsZero() {
		lastImportGauge.WithLabelValues(source).Set(float64(at.Unix()))
	}
}
