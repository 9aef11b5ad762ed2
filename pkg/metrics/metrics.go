package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatcherTickDuration is how long one dispatcher tick takes,
	// broken out by the branch it took (timeout/active/passive/idle).
	DispatcherTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatcher_tick_duration_seconds",
			Help:    "Dispatcher tick duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"branch"},
	)

	// ChunkDuration is per-chunk wall clock for the active engine.
	ChunkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "active_chunk_duration_seconds",
			Help:    "Active engine chunk processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"outcome"}, // completed, error
	)

	// LLMCallLatency is classify() call latency by outcome.
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_latency_ms",
			Help:    "LLM classify() call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12),
		},
		[]string{"status"},
	)

	// DBQueryDuration is KV/Blob/outbox Postgres access latency.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	// HTTPRequestDuration is the latency of the MailStore adapter's
	// outgoing HTTP calls.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Outgoing MailStore HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// RunTransitions counts terminal active-run transitions.
	RunTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "active_run_transitions_total",
			Help: "Active run terminal transitions",
		},
		[]string{"status"}, // completed, error, timeout
	)

	// EmailsClassified counts findings produced by the batcher.
	EmailsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_classified_total",
			Help: "Emails classified into a bucket",
		},
		[]string{"bucket"}, // must_do, must_know
	)

	// DigestsSent counts daily digest send attempts by result.
	DigestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "digests_sent_total",
			Help: "Daily digest email send attempts by result",
		},
		[]string{"result"}, // sent, failed
	)

	// ArchiveSkips counts threads the safety guard kept in the inbox.
	ArchiveSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_guard_skips_total",
			Help: "Threads the archival safety guard refused to archive",
		},
		[]string{"reason"}, // starred, labeled, important
	)

	// LockContention counts refused lock acquisitions.
	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_contention_total",
			Help: "Lock acquisition attempts refused due to an existing holder",
		},
		[]string{"wanted_kind", "held_kind"},
	)

	// SlowQueries counts Postgres queries over the slow-query threshold.
	SlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slow_queries_total",
			Help: "Postgres queries that exceeded the slow-query threshold",
		},
		[]string{"command_tag"},
	)
)

func RecordDispatcherTick(branch string, d time.Duration) {
	DispatcherTickDuration.WithLabelValues(branch).Observe(d.Seconds())
}

func RecordChunkDuration(outcome string, d time.Duration) {
	ChunkDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func RecordLLMCallLatency(status string, d time.Duration) {
	LLMCallLatency.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func RecordDBQueryDuration(operation, table string, d time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func IncrementRunTransition(status string) {
	RunTransitions.WithLabelValues(status).Inc()
}

func IncrementEmailsClassified(bucket string, n int) {
	EmailsClassified.WithLabelValues(bucket).Add(float64(n))
}

func IncrementDigestSent(result string) {
	DigestsSent.WithLabelValues(result).Inc()
}

func IncrementArchiveSkip(reason string) {
	ArchiveSkips.WithLabelValues(reason).Inc()
}

func IncrementLockContention(wantedKind, heldKind string) {
	LockContention.WithLabelValues(wantedKind, heldKind).Inc()
}

func IncrementSlowQuery(commandTag string) {
	SlowQueries.WithLabelValues(commandTag).Inc()
}
