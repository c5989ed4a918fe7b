package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Check-in methods.
const (
	MethodLiveness = "liveness"
	MethodManual   = "manual"
)

// Outcomes.
const (
	OutcomeMatched = "matched"
	OutcomeNoMatch = "no_match"
	OutcomeNotLive = "not_live"
	OutcomeIndexed = "indexed"
	OutcomeNoFace  = "no_face"
	OutcomeError   = "error"
)

var (
	// LivenessSessions counts created liveness sessions.
	LivenessSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "liveness_sessions_created_total",
		Help: "Number of liveness sessions created.",
	})

	// Checkins counts check-in attempts by method and outcome.
	Checkins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkins_total",
		Help: "Check-in attempts by method and outcome.",
	}, []string{"method", "outcome"})

	// FacesIndexed counts registration attempts by outcome.
	FacesIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faces_indexed_total",
		Help: "Face registration attempts by outcome.",
	}, []string{"outcome"})
)
