// Package face manages the registry of known faces: registration, listing
// and deletion. The registry and the blob bucket are joined by the derived
// external image identifier.
package face

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"faceattend/internal/blobstore"
	"faceattend/internal/rekog"
)

// ErrInvalidInput marks missing or malformed caller input.
var ErrInvalidInput = errors.New("face: name and photo are required")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.\-:]`)

// Entry is one registry entry projected with its derived storage key.
type Entry struct {
	FaceID          string `json:"FaceId"`
	ExternalImageID string `json:"ExternalImageId"`
	S3Key           string `json:"s3Key"`
}

// RegisterResult reports a registration attempt. Indexed is false when the
// photo contained no detectable face, which is a recoverable outcome.
type RegisterResult struct {
	ExternalImageID string
	FaceID          string
	S3Key           string
	Indexed         bool
}

type registry interface {
	IndexFace(ctx context.Context, s3Key, externalImageID string) (rekog.IndexResult, error)
	ListAllFaces(ctx context.Context) ([]rekog.Face, error)
	DeleteFace(ctx context.Context, faceID string) error
}

type blobs interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Service implements face registry management.
type Service struct {
	registry registry
	blobs    blobs
	now      func() time.Time
}

// NewService creates a service.
func NewService(registry registry, blobs blobs) *Service {
	return &Service{registry: registry, blobs: blobs, now: time.Now}
}

// SafeExternalID derives the unique external identifier for a display name:
// a millisecond timestamp prefix plus the name with disallowed characters
// replaced by underscores.
func SafeExternalID(name string, now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + unsafeChars.ReplaceAllString(name, "_")
}

// Register stores the photo and indexes it in the registry under a derived
// identifier. The photo is stored first so the registry can read it by key.
func (s *Service) Register(ctx context.Context, name string, photo []byte, contentType string) (RegisterResult, error) {
	if name == "" || len(photo) == 0 {
		return RegisterResult{}, ErrInvalidInput
	}

	externalID := SafeExternalID(name, s.now())
	key := blobstore.FaceKey(externalID)

	if err := s.blobs.Put(ctx, key, photo, contentType); err != nil {
		return RegisterResult{}, err
	}

	indexed, err := s.registry.IndexFace(ctx, key, externalID)
	if err != nil {
		return RegisterResult{}, err
	}

	return RegisterResult{
		ExternalImageID: externalID,
		FaceID:          indexed.FaceID,
		S3Key:           key,
		Indexed:         indexed.Indexed,
	}, nil
}

// Delete removes the registry entry first, then the backing photo. The two
// deletes are independent calls; a blob failure after the registry delete
// leaves an orphaned object and is surfaced to the caller.
func (s *Service) Delete(ctx context.Context, faceID, s3Key string) error {
	if faceID == "" || s3Key == "" {
		return ErrInvalidInput
	}
	if err := s.registry.DeleteFace(ctx, faceID); err != nil {
		return err
	}
	return s.blobs.Delete(ctx, s3Key)
}

// List enumerates the whole registry and derives each entry's storage key.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	faces, err := s.registry.ListAllFaces(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(faces))
	for _, f := range faces {
		entries = append(entries, Entry{
			FaceID:          f.FaceID,
			ExternalImageID: f.ExternalImageID,
			S3Key:           blobstore.FaceKey(f.ExternalImageID),
		})
	}
	return entries, nil
}
