package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goandtell",
		Name:      "points_awarded_total",
		Help:      "Witness points awarded, by action type.",
	}, []string{"action_type"})

	awardsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goandtell",
		Name:      "awards_recorded_total",
		Help:      "Ledger entries written, by action type.",
	}, []string{"action_type"})

	awardFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goandtell",
		Name:      "award_failures_total",
		Help:      "AwardPoints calls that failed and were rolled back.",
	})

	summariesRepaired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goandtell",
		Name:      "summaries_repaired_total",
		Help:      "Summary rows rebuilt from the ledger because they had drifted.",
	})
)
