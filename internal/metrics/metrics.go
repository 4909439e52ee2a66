// Package metrics exposes Prometheus collectors for the automation service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal         *prometheus.CounterVec
	jobRetriesTotal   prometheus.Counter
	pagesCrawledTotal *prometheus.CounterVec
	recordsTotal      *prometheus.CounterVec
	registrationPages *prometheus.CounterVec
	activeJobs        prometheus.Gauge

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onch_jobs_total",
				Help: "Queue jobs finished, labeled by task and outcome.",
			},
			[]string{"task", "outcome"},
		)
		jobRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "onch_job_retries_total",
				Help: "Queue job retry reschedules.",
			},
		)
		pagesCrawledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onch_pages_crawled_total",
				Help: "Pages visited by the pagination engine, labeled by source.",
			},
			[]string{"source"},
		)
		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onch_records_extracted_total",
				Help: "Records produced by extraction, labeled by source.",
			},
			[]string{"source"},
		)
		registrationPages = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "onch_registration_pages_total",
				Help: "Bulk registration page attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "onch_active_jobs",
				Help: "Jobs currently executing.",
			},
		)
	})
}

// JobFinished increments the per-task outcome counter.
func JobFinished(task, outcome string) {
	if jobsTotal != nil {
		jobsTotal.WithLabelValues(task, outcome).Inc()
	}
}

// JobRetried counts a retry reschedule.
func JobRetried() {
	if jobRetriesTotal != nil {
		jobRetriesTotal.Inc()
	}
}

// PageCrawled counts one pagination step for a source.
func PageCrawled(source string) {
	if pagesCrawledTotal != nil {
		pagesCrawledTotal.WithLabelValues(source).Inc()
	}
}

// RecordsExtracted adds n extracted records for a source.
func RecordsExtracted(source string, n int) {
	if recordsTotal != nil && n > 0 {
		recordsTotal.WithLabelValues(source).Add(float64(n))
	}
}

// RegistrationPage counts one registration page attempt outcome.
func RegistrationPage(outcome string) {
	if registrationPages != nil {
		registrationPages.WithLabelValues(outcome).Inc()
	}
}

// JobStarted marks a job as active.
func JobStarted() {
	if activeJobs != nil {
		activeJobs.Inc()
	}
}

// JobDone marks a job as no longer active.
func JobDone() {
	if activeJobs != nil {
		activeJobs.Dec()
	}
}
