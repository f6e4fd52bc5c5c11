package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var passCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_detection_passes",
	Help: "Number of detection passes, by outcome",
}, []string{"status"})

var passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "modguard_detection_pass_duration_sec",
	Help: "Duration of detection passes",
})

var usersEvaluated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modguard_detection_users_evaluated",
	Help: "Number of users evaluated by detection passes",
})

var userErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_detection_user_errors",
	Help: "Number of users skipped during a pass because of a read, write, or rule failure",
}, []string{"phase"})

var predicateMatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_detection_predicate_matches",
	Help: "Number of predicate matches, including ones that did not extend an existing ban",
}, []string{"predicate"})

var suspensionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_new_suspensions",
	Help: "Number of suspensions written (and flagged), by ban type",
}, []string{"ban"})

var predicateCoveredCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_detection_predicate_covered",
	Help: "Number of predicate matches skipped because an existing ban already lasted at least as long",
}, []string{"predicate"})
