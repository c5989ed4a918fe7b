// Package liveness manages biometric liveness sessions. The video capture and
// analysis happen inside the external service; this package only creates
// sessions and interprets their verdicts.
package liveness

import (
	"context"
	"fmt"

	"faceattend/internal/rekog"
)

// Status values reported by the session service.
const (
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// Verdict is the caller-side interpretation of a session result.
// Confidence is re-expressed as a 0-1 fraction at this boundary.
type Verdict struct {
	SessionID  string
	Status     string
	Confidence float64
	Live       bool
	Reason     string
}

type sessions interface {
	CreateLivenessSession(ctx context.Context) (string, error)
	LivenessResults(ctx context.Context, sessionID string) (rekog.SessionResult, error)
}

// Manager applies the liveness acceptance policy on top of the session service.
type Manager struct {
	sessions  sessions
	threshold float64
}

// NewManager creates a manager. threshold is on the service's 0-100 scale and
// must be strictly exceeded for a session to count as live.
func NewManager(sessions sessions, threshold float32) *Manager {
	return &Manager{sessions: sessions, threshold: float64(threshold)}
}

// CreateSession requests a new session. No retry; failures surface unchanged.
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	return m.sessions.CreateLivenessSession(ctx)
}

// Verdict fetches and interprets a session result. A SUCCEEDED status with
// confidence at or below the threshold is still not live.
func (m *Manager) Verdict(ctx context.Context, sessionID string) (Verdict, error) {
	res, err := m.sessions.LivenessResults(ctx, sessionID)
	if err != nil {
		return Verdict{}, err
	}
	v := Verdict{
		SessionID:  sessionID,
		Status:     res.Status,
		Confidence: res.Confidence / 100,
	}
	switch {
	case res.Status == StatusSucceeded && res.Confidence > m.threshold:
		v.Live = true
	case res.Status == StatusFailed:
		v.Reason = "Liveness check failed"
	default:
		v.Reason = fmt.Sprintf("Low confidence score: %g%%", res.Confidence)
	}
	return v, nil
}
