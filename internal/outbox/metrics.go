package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swimlog",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of outbox events successfully published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swimlog",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of outbox events that failed to publish and were routed to the DLQ.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "swimlog",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swimlog",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of outbox events routed to the dead-letter table, labeled by topic.",
	}, []string{"topic"})

	dlqRequeued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swimlog",
		Subsystem: "dlq",
		Name:      "messages_requeued_total",
		Help:      "Number of dead-lettered events reinserted into the outbox.",
	}, []string{"topic"})

	dlqRetryScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swimlog",
		Subsystem: "dlq",
		Name:      "retry_scheduled_total",
		Help:      "Number of times a dead-lettered event was scheduled for a later retry.",
	}, []string{"topic"})

	dlqQuarantined = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "swimlog",
		Subsystem: "dlq",
		Name:      "messages_quarantined_total",
		Help:      "Number of dead-lettered events quarantined after exhausting retries.",
	}, []string{"topic"})

	dlqBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "swimlog",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Dead-lettered events not yet requeued or quarantined.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter,
		dlqRequeued, dlqRetryScheduled, dlqQuarantined, dlqBacklog)
}
