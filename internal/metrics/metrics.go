// Package metrics exposes Prometheus instrumentation for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts finished jobs by terminal status.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lintagent_jobs_total",
		Help: "Finished analysis jobs by terminal status.",
	}, []string{"status"})

	// ActiveJobs tracks jobs currently held by a worker.
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lintagent_active_jobs",
		Help: "Jobs currently being processed.",
	})

	// QueueDepth tracks the number of queued submissions.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lintagent_queue_depth",
		Help: "Submissions waiting in the priority queue.",
	})

	// FilesAnalyzed counts per-file analyzer runs by tool.
	FilesAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lintagent_files_analyzed_total",
		Help: "Files analyzed, by tool.",
	}, []string{"tool"})

	// CacheHits counts file-level cache hits and misses.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lintagent_cache_lookups_total",
		Help: "File analysis cache lookups by outcome.",
	}, []string{"outcome"})

	// JobDuration observes end-to-end job processing time.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lintagent_job_duration_seconds",
		Help:    "End-to-end job processing time.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// WebhookAttempts counts webhook delivery attempts by outcome.
	WebhookAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lintagent_webhook_attempts_total",
		Help: "Webhook delivery attempts by outcome.",
	}, []string{"outcome"})

	// RateLimited counts submissions rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lintagent_rate_limited_total",
		Help: "Submissions rejected by the rate limiter.",
	})
)
