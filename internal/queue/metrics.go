package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	// jobsEnqueued counts admitted jobs per queue.
	jobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companionbot",
			Name:      "queue_jobs_enqueued_total",
			Help:      "Total number of jobs admitted to the queue.",
		},
		[]string{"queue"},
	)

	// jobsProcessed counts handler executions by result:
	// completed, retried or failed (retries exhausted).
	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companionbot",
			Name:      "queue_jobs_processed_total",
			Help:      "Total number of job executions by result.",
		},
		[]string{"queue", "result"},
	)

	jobsInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "companionbot",
			Name:      "queue_jobs_inflight",
			Help:      "Current number of jobs being executed.",
		},
		[]string{"queue"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companionbot",
			Name:      "queue_job_duration_seconds",
			Help:      "Duration of job executions in seconds.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"queue"},
	)
)

func init() {
	prometheus.MustRegister(jobsEnqueued, jobsProcessed, jobsInflight, jobDuration)
}
