package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "examination_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	attemptsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "examination_attempts_started_total",
		Help: "Attempts successfully opened.",
	})

	attemptConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "examination_attempt_conflicts_total",
		Help: "Attempt starts rejected as duplicates.",
	})

	attemptsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "examination_attempts_completed_total",
		Help: "Attempts graded at submission, by letter grade.",
	}, []string{"grade"})
)
