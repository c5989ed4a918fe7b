package liveness

import (
	"context"
	"errors"
	"testing"

	"faceattend/internal/rekog"
)

type stubSessions struct {
	result rekog.SessionResult
	err    error
}

func (s *stubSessions) CreateLivenessSession(ctx context.Context) (string, error) {
	return "sess-1", s.err
}

func (s *stubSessions) LivenessResults(ctx context.Context, sessionID string) (rekog.SessionResult, error) {
	return s.result, s.err
}

func TestVerdictPolicy(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		confidence float64
		wantLive   bool
		wantReason string
	}{
		{"succeeded above threshold", StatusSucceeded, 86, true, ""},
		{"succeeded well above threshold", StatusSucceeded, 99.9, true, ""},
		{"succeeded at threshold is not live", StatusSucceeded, 85, false, "Low confidence score: 85%"},
		{"succeeded below threshold", StatusSucceeded, 60, false, "Low confidence score: 60%"},
		{"failed regardless of confidence", StatusFailed, 99, false, "Liveness check failed"},
		{"in progress", "CREATED", 0, false, "Low confidence score: 0%"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(&stubSessions{result: rekog.SessionResult{Status: tc.status, Confidence: tc.confidence}}, 85)
			v, err := m.Verdict(context.Background(), "sess-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v.Live != tc.wantLive {
				t.Fatalf("Live = %v, want %v", v.Live, tc.wantLive)
			}
			if v.Reason != tc.wantReason {
				t.Fatalf("Reason = %q, want %q", v.Reason, tc.wantReason)
			}
			if want := tc.confidence / 100; v.Confidence != want {
				t.Fatalf("Confidence = %g, want fraction %g", v.Confidence, want)
			}
		})
	}
}

func TestVerdictUpstreamError(t *testing.T) {
	m := NewManager(&stubSessions{err: errors.New("session not found")}, 85)
	if _, err := m.Verdict(context.Background(), "gone"); err == nil {
		t.Fatal("expected upstream error to surface")
	}
}
