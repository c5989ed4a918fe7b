// Package match bridges the liveness service and the face registry. The two
// services share nothing but the blob bucket, so a completed session is joined
// to its reference frame by listing the session's output prefix.
package match

import (
	"context"
	"log"
	"strings"

	"faceattend/internal/attendance"
	"faceattend/internal/blobstore"
	"faceattend/internal/liveness"
	"faceattend/internal/rekog"
)

// Result is the transient outcome of one matching attempt.
type Result struct {
	Found      bool          `json:"found"`
	Name       string        `json:"name,omitempty"`
	FaceID     string        `json:"faceId,omitempty"`
	Similarity float64       `json:"similarity,omitempty"`
	AllMatches []rekog.Match `json:"allMatches,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// CapturedImage describes the reference frame fetched from the bucket.
type CapturedImage struct {
	Key    string `json:"key"`
	Bytes  int    `json:"bytes"`
	Format string `json:"format"`
}

// SessionOutcome is the full result of processing a liveness session.
// Match and Captured are nil when liveness did not pass.
type SessionOutcome struct {
	Verdict  liveness.Verdict
	Match    *Result
	Captured *CapturedImage
}

type verdicts interface {
	Verdict(ctx context.Context, sessionID string) (liveness.Verdict, error)
}

type registry interface {
	SearchByImage(ctx context.Context, image []byte, threshold float32, maxFaces int32) ([]rekog.Match, error)
	CompareFaces(ctx context.Context, source, target []byte, threshold float32) ([]rekog.Match, error)
	CountFaces(ctx context.Context, image []byte) (int, error)
}

type blobs interface {
	List(ctx context.Context, prefix string) ([]blobstore.Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

type recorder interface {
	CheckIn(ctx context.Context, externalImageID string) (attendance.Record, bool, error)
}

// Config carries the orchestrator's policy constants.
type Config struct {
	// OutputPrefix is where the liveness service deposits session frames;
	// session X's objects live under OutputPrefix + X + "/".
	OutputPrefix    string
	MatchThreshold  float32
	ManualThreshold float32
	MaxSearchFaces  int32
}

// Orchestrator sequences liveness verdict, reference lookup, face matching
// and attendance recording.
type Orchestrator struct {
	verdicts verdicts
	registry registry
	blobs    blobs
	recorder recorder
	cfg      Config
}

// NewOrchestrator wires the orchestration flow.
func NewOrchestrator(verdicts verdicts, registry registry, blobs blobs, recorder recorder, cfg Config) *Orchestrator {
	if cfg.MaxSearchFaces <= 0 {
		cfg.MaxSearchFaces = 5
	}
	return &Orchestrator{verdicts: verdicts, registry: registry, blobs: blobs, recorder: recorder, cfg: cfg}
}

// ProcessSession runs the full flow for a completed liveness session. A failed
// liveness check is a terminal business outcome, not an error; any failure
// after liveness passed degrades the match result while keeping the verdict.
func (o *Orchestrator) ProcessSession(ctx context.Context, sessionID, compareFaceID string) (SessionOutcome, error) {
	verdict, err := o.verdicts.Verdict(ctx, sessionID)
	if err != nil {
		return SessionOutcome{}, err
	}
	if !verdict.Live {
		return SessionOutcome{Verdict: verdict}, nil
	}

	outcome := SessionOutcome{Verdict: verdict}
	result, captured := o.matchReference(ctx, sessionID, compareFaceID)
	outcome.Match = result
	outcome.Captured = captured

	if result.Found {
		if _, already, err := o.recorder.CheckIn(ctx, result.Name); err != nil {
			log.Printf("match: attendance write failed for %s: %v", result.Name, err)
			result.Found = false
			result.Err = err.Error()
		} else if already {
			log.Printf("match: %s already checked in today", result.Name)
		}
	}
	return outcome, nil
}

// matchReference locates the session's reference frame and matches it.
// Errors are folded into the result so the positive liveness verdict is not
// discarded.
func (o *Orchestrator) matchReference(ctx context.Context, sessionID, compareFaceID string) (*Result, *CapturedImage) {
	prefix := o.cfg.OutputPrefix + sessionID + "/"
	objects, err := o.blobs.List(ctx, prefix)
	if err != nil {
		return &Result{Err: err.Error()}, nil
	}

	key, ok := pickReference(objects)
	if !ok {
		return &Result{Err: "no reference image found for session"}, nil
	}

	image, err := o.blobs.Get(ctx, key)
	if err != nil {
		return &Result{Err: err.Error()}, nil
	}
	captured := &CapturedImage{Key: key, Bytes: len(image), Format: sniffFormat(image)}

	count, err := o.registry.CountFaces(ctx, image)
	if err != nil {
		return &Result{Err: err.Error()}, captured
	}
	if count == 0 {
		return &Result{Err: "no faces detected in the image"}, captured
	}

	if compareFaceID != "" {
		return o.compareWith(ctx, image, compareFaceID), captured
	}
	return o.search(ctx, image), captured
}

// compareWith runs a 1:1 comparison against one registered face's stored photo.
func (o *Orchestrator) compareWith(ctx context.Context, image []byte, compareFaceID string) *Result {
	reference, err := o.blobs.Get(ctx, blobstore.FaceKey(compareFaceID))
	if err != nil {
		return &Result{Err: err.Error()}
	}
	matches, err := o.registry.CompareFaces(ctx, image, reference, o.cfg.MatchThreshold)
	if err != nil {
		return &Result{Err: err.Error()}
	}
	if len(matches) == 0 {
		return &Result{}
	}
	return &Result{Found: true, Name: compareFaceID, Similarity: matches[0].Similarity}
}

// search runs a 1:N search of the whole registry; the top candidate wins and
// the rest are exposed as supplementary candidates.
func (o *Orchestrator) search(ctx context.Context, image []byte) *Result {
	matches, err := o.registry.SearchByImage(ctx, image, o.cfg.MatchThreshold, o.cfg.MaxSearchFaces)
	if err != nil {
		return &Result{Err: err.Error()}
	}
	if len(matches) == 0 {
		return &Result{}
	}
	best := matches[0]
	return &Result{
		Found:      true,
		Name:       best.ExternalImageID,
		FaceID:     best.FaceID,
		Similarity: best.Similarity,
		AllMatches: matches,
	}
}

// ManualCheckIn matches an uploaded photo directly, without liveness proof,
// at the stricter threshold. An empty registry yields a clean no-match.
func (o *Orchestrator) ManualCheckIn(ctx context.Context, image []byte) (Result, error) {
	matches, err := o.registry.SearchByImage(ctx, image, o.cfg.ManualThreshold, 1)
	if err != nil {
		return Result{}, err
	}
	if len(matches) == 0 {
		return Result{}, nil
	}
	best := matches[0]
	if _, _, err := o.recorder.CheckIn(ctx, best.ExternalImageID); err != nil {
		return Result{}, err
	}
	return Result{Found: true, Name: best.ExternalImageID, FaceID: best.FaceID, Similarity: best.Similarity}, nil
}

// pickReference selects the first object that looks like the session's
// reference image. There is no authoritative pointer from session to frame,
// so selection is by key convention.
func pickReference(objects []blobstore.Object) (string, bool) {
	for _, obj := range objects {
		key := strings.ToLower(obj.Key)
		if strings.Contains(key, "reference") ||
			strings.Contains(key, "image") ||
			strings.Contains(key, "face") ||
			strings.Contains(key, "frame") ||
			strings.HasSuffix(key, ".jpg") ||
			strings.HasSuffix(key, ".jpeg") ||
			strings.HasSuffix(key, ".png") {
			return obj.Key, true
		}
	}
	return "", false
}

// sniffFormat inspects the magic bytes of the captured frame.
func sniffFormat(image []byte) string {
	switch {
	case len(image) >= 2 && image[0] == 0xff && image[1] == 0xd8:
		return "JPEG"
	case len(image) >= 2 && image[0] == 0x89 && image[1] == 0x50:
		return "PNG"
	default:
		return "Unknown"
	}
}
