package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	orchestrator = "orchestrator"

	// Job metrics
	jobsSubmittedTotal = "jobs_submitted_total"
	jobsFinishedTotal  = "jobs_finished_total"

	// Dispatch metrics
	dispatchAttemptsTotal = "dispatch_attempts_total"

	// Worker metrics
	WorkerStatusCount = "worker_status_count"

	// Labels
	jobStateLabel       = "state"
	dispatchResultLabel = "result"
	workerStatusLabel   = "status"
)

/**
* Metrics definition
**/
var jobsSubmittedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: orchestrator,
		Name:      jobsSubmittedTotal,
		Help:      "number of calculations accepted for execution",
	},
)

var jobsFinishedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: orchestrator,
		Name:      jobsFinishedTotal,
		Help:      "number of calculations that reached a terminal state",
	},
	[]string{jobStateLabel},
)

var dispatchAttemptsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: orchestrator,
		Name:      dispatchAttemptsTotal,
		Help:      "number of sub-task dispatches to workers partitioned by outcome",
	},
	[]string{dispatchResultLabel},
)

var workerStatusCountMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: orchestrator,
		Name:      WorkerStatusCount,
		Help:      "number of registered workers in each status",
	},
	[]string{workerStatusLabel},
)

func IncreaseJobsSubmittedMetric() {
	jobsSubmittedTotalMetric.Inc()
}

func IncreaseJobsFinishedMetric(state string) {
	jobsFinishedTotalMetric.With(prometheus.Labels{jobStateLabel: state}).Inc()
}

func IncreaseDispatchAttemptsMetric(result string) {
	dispatchAttemptsTotalMetric.With(prometheus.Labels{dispatchResultLabel: result}).Inc()
}

func UpdateWorkerStatusMetric(running, stopped int) {
	workerStatusCountMetric.With(prometheus.Labels{workerStatusLabel: "running"}).Set(float64(running))
	workerStatusCountMetric.With(prometheus.Labels{workerStatusLabel: "stopped"}).Set(float64(stopped))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedTotalMetric)
	prometheus.MustRegister(jobsFinishedTotalMetric)
	prometheus.MustRegister(dispatchAttemptsTotalMetric)
	prometheus.MustRegister(workerStatusCountMetric)
}
