package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// votesTotal counts reaction events by how the round resolved them.
	votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizbot_votes_total",
		Help: "Reaction events applied to quiz rounds by outcome",
	}, []string{"outcome"})

	// roundsTotal counts finished rounds by result.
	roundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizbot_rounds_total",
		Help: "Quiz rounds by result",
	}, []string{"result"})

	roundParticipants = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quizbot_round_participants",
		Help:    "Players with a recorded vote when a round closes",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})

	partiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizbot_parties_total",
		Help: "Quiz parties by result",
	}, []string{"result"})

	// xpGranted sums requested XP deltas by source.
	xpGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizbot_xp_requests_total",
		Help: "XP delta requests sent to the member store by source",
	}, []string{"source"})
)
