package face

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"faceattend/internal/rekog"
)

type stubRegistry struct {
	indexResult rekog.IndexResult
	indexErr    error
	indexedKey  string
	indexedID   string
	faces       []rekog.Face
	listErr     error
	deleteErr   error
	deleted     []string
}

func (s *stubRegistry) IndexFace(ctx context.Context, s3Key, externalImageID string) (rekog.IndexResult, error) {
	s.indexedKey = s3Key
	s.indexedID = externalImageID
	return s.indexResult, s.indexErr
}

func (s *stubRegistry) ListAllFaces(ctx context.Context) ([]rekog.Face, error) {
	return s.faces, s.listErr
}

func (s *stubRegistry) DeleteFace(ctx context.Context, faceID string) error {
	s.deleted = append(s.deleted, faceID)
	return s.deleteErr
}

type stubBlobs struct {
	putKey    string
	putBody   []byte
	putErr    error
	deleteKey string
	deleteErr error
}

func (s *stubBlobs) Put(ctx context.Context, key string, body []byte, contentType string) error {
	s.putKey = key
	s.putBody = body
	return s.putErr
}

func (s *stubBlobs) Delete(ctx context.Context, key string) error {
	s.deleteKey = key
	return s.deleteErr
}

func fixedNow() time.Time {
	return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
}

var allowed = regexp.MustCompile(`^[0-9]+_[A-Za-z0-9_.\-:]*$`)

func TestSafeExternalID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Alice", "_Alice"},
		{"spaces replaced", "Alice Smith", "_Alice_Smith"},
		{"unicode replaced", "Ngô Bảo", "_Ng__B_o"},
		{"allowed punctuation kept", "a.b-c:d_e", "_a.b-c:d_e"},
		{"symbols replaced", "a/b\\c@d", "_a_b_c_d"},
	}
	now := fixedNow()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SafeExternalID(tc.in, now)
			if !allowed.MatchString(got) {
				t.Fatalf("id %q contains disallowed characters", got)
			}
			if !strings.HasSuffix(got, tc.want) {
				t.Fatalf("SafeExternalID(%q) = %q, want suffix %q", tc.in, got, tc.want)
			}
			if !strings.HasPrefix(got, "1788264000000_") {
				t.Fatalf("expected millisecond timestamp prefix, got %q", got)
			}
		})
	}
}

func TestSafeExternalIDDistinctAcrossTime(t *testing.T) {
	a := SafeExternalID("Alice", fixedNow())
	b := SafeExternalID("Alice", fixedNow().Add(time.Millisecond))
	if a == b {
		t.Fatal("identifiers for the same name at different times must differ")
	}
}

func TestRegisterStoresPhotoThenIndexes(t *testing.T) {
	registry := &stubRegistry{indexResult: rekog.IndexResult{FaceID: "f-1", Indexed: true}}
	blobs := &stubBlobs{}
	svc := &Service{registry: registry, blobs: blobs, now: fixedNow}

	res, err := svc.Register(context.Background(), "Alice", []byte{0xff, 0xd8}, "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExternalImageID != "1788264000000_Alice" {
		t.Fatalf("unexpected id %q", res.ExternalImageID)
	}
	if want := "faces/1788264000000_Alice.jpg"; res.S3Key != want || blobs.putKey != want || registry.indexedKey != want {
		t.Fatalf("key mismatch: result=%q blob=%q registry=%q", res.S3Key, blobs.putKey, registry.indexedKey)
	}
	if registry.indexedID != res.ExternalImageID {
		t.Fatalf("registry indexed under %q, want %q", registry.indexedID, res.ExternalImageID)
	}
	if !res.Indexed || res.FaceID != "f-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := &Service{registry: &stubRegistry{}, blobs: &stubBlobs{}, now: fixedNow}

	if _, err := svc.Register(context.Background(), "", []byte{1}, "image/jpeg"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing name: got %v", err)
	}
	if _, err := svc.Register(context.Background(), "Alice", nil, "image/jpeg"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing photo: got %v", err)
	}
}

func TestRegisterNoFaceDetectedIsSoftFailure(t *testing.T) {
	registry := &stubRegistry{indexResult: rekog.IndexResult{Indexed: false}}
	svc := &Service{registry: registry, blobs: &stubBlobs{}, now: fixedNow}

	res, err := svc.Register(context.Background(), "Alice", []byte{1}, "image/jpeg")
	if err != nil {
		t.Fatalf("zero-face registration must not error: %v", err)
	}
	if res.Indexed {
		t.Fatal("expected Indexed=false")
	}
}

func TestDeleteRegistryFirstThenBlob(t *testing.T) {
	registry := &stubRegistry{}
	blobs := &stubBlobs{}
	svc := &Service{registry: registry, blobs: blobs, now: fixedNow}

	if err := svc.Delete(context.Background(), "f-1", "faces/x.jpg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(registry.deleted) != 1 || registry.deleted[0] != "f-1" {
		t.Fatalf("registry delete calls: %v", registry.deleted)
	}
	if blobs.deleteKey != "faces/x.jpg" {
		t.Fatalf("blob delete key: %q", blobs.deleteKey)
	}
}

func TestDeleteRegistryFailureSkipsBlob(t *testing.T) {
	registry := &stubRegistry{deleteErr: errors.New("face not found")}
	blobs := &stubBlobs{}
	svc := &Service{registry: registry, blobs: blobs, now: fixedNow}

	if err := svc.Delete(context.Background(), "missing", "faces/x.jpg"); err == nil {
		t.Fatal("expected error")
	}
	if blobs.deleteKey != "" {
		t.Fatal("blob delete must not run after registry failure")
	}
}

func TestDeleteBlobFailureAfterRegistryMutation(t *testing.T) {
	// The registry entry is already gone when the blob delete fails; the
	// error surfaces and the orphaned state is the caller's to observe.
	registry := &stubRegistry{}
	blobs := &stubBlobs{deleteErr: errors.New("no such key")}
	svc := &Service{registry: registry, blobs: blobs, now: fixedNow}

	if err := svc.Delete(context.Background(), "f-1", "faces/gone.jpg"); err == nil {
		t.Fatal("expected blob error to surface")
	}
	if len(registry.deleted) != 1 {
		t.Fatal("registry delete should have run first")
	}
}

func TestListDerivesStorageKeys(t *testing.T) {
	registry := &stubRegistry{faces: []rekog.Face{
		{FaceID: "f-1", ExternalImageID: "100_Alice"},
		{FaceID: "f-2", ExternalImageID: "200_Bob"},
	}}
	svc := &Service{registry: registry, blobs: &stubBlobs{}, now: fixedNow}

	entries, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].S3Key != "faces/100_Alice.jpg" {
		t.Fatalf("derived key = %q", entries[0].S3Key)
	}
}
