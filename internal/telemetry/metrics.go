package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsStarted counts attempts that reached the active state.
	AttemptsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quizgate_attempts_started_total",
		Help: "Attempts that entered the active state.",
	})

	// AttemptsSubmitted counts completed submissions by trigger.
	AttemptsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizgate_attempts_submitted_total",
		Help: "Attempts submitted, partitioned by what triggered the submission.",
	}, []string{"trigger"})

	// AttemptLoadFailures counts quiz loads that failed, by error kind.
	AttemptLoadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizgate_attempt_load_failures_total",
		Help: "Quiz loads that failed, partitioned by error kind.",
	}, []string{"kind"})
)
