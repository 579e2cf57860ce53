// Package metrics exposes Prometheus collectors for authentication, admission and
// background work.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admission outcomes
const (
	OutcomeAdmitted     = "admitted"
	OutcomeAdminBypass  = "admin_bypass"
	OutcomeRateLimited  = "rate_limited"
	OutcomeQuotaDaily   = "quota_daily"
	OutcomeQuotaMonthly = "quota_monthly"
	OutcomeError        = "error"
)

// Background job statuses
const (
	JobOK      = "ok"
	JobFailed  = "failed"
	JobDropped = "dropped"
)

var (
	// AdmissionDecisionsTotal counts admission decisions by outcome.
	AdmissionDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metering_admission_decisions_total",
			Help: "Total number of admission decisions by outcome",
		},
		[]string{"outcome"},
	)

	// AdmissionDuration measures time spent in admission checks.
	AdmissionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "metering_admission_duration_seconds",
			Help:    "Duration of rate limit and quota checks in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
	)

	// AuthAttemptsTotal counts authentication attempts by tier and result.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metering_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"tier", "result"},
	)

	// BackgroundJobsTotal counts fire-and-forget jobs by name and status.
	BackgroundJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metering_background_jobs_total",
			Help: "Total number of background jobs by status",
		},
		[]string{"job", "status"},
	)

	// BackgroundQueueDepth reports jobs waiting for a worker.
	BackgroundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "metering_background_queue_depth",
			Help: "Number of background jobs waiting for a worker",
		},
	)
)

// RecordAdmission records one admission decision and its duration.
func RecordAdmission(outcome string, d time.Duration) {
	AdmissionDecisionsTotal.WithLabelValues(outcome).Inc()
	AdmissionDuration.Observe(d.Seconds())
}

// RecordAdminBypass counts an admin request that skipped admission. No checks ran,
// so nothing is observed in AdmissionDuration.
func RecordAdminBypass() {
	AdmissionDecisionsTotal.WithLabelValues(OutcomeAdminBypass).Inc()
}

// RecordAuth records an authentication attempt.
func RecordAuth(tier string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	AuthAttemptsTotal.WithLabelValues(tier, result).Inc()
}

// RecordJob records the terminal status of a background job.
func RecordJob(job, status string) {
	BackgroundJobsTotal.WithLabelValues(job, status).Inc()
}
