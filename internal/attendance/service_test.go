package attendance

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubStore struct {
	putCalls   int
	putWritten bool
	putErr     error
	records    []Record
	queryErr   error
}

func (s *stubStore) Put(ctx context.Context, rec Record) (bool, error) {
	s.putCalls++
	return s.putWritten, s.putErr
}

func (s *stubStore) QueryDay(ctx context.Context, externalImageID, day string) ([]Record, error) {
	return s.records, s.queryErr
}

func fixedNow() time.Time {
	return time.Date(2026, 9, 1, 14, 30, 5, 0, time.UTC)
}

func TestNewRecordUsesUTCDayAndTime(t *testing.T) {
	rec := NewRecord("123_Alice", fixedNow())
	if rec.CheckinDay != "2026-09-01" {
		t.Fatalf("CheckinDay = %q", rec.CheckinDay)
	}
	if rec.CheckinTime != "14:30:05" {
		t.Fatalf("CheckinTime = %q", rec.CheckinTime)
	}
}

func TestNewRecordConvertsLocalTime(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	// 01:30 on Sep 2 local is still Sep 1 in UTC
	rec := NewRecord("x", time.Date(2026, 9, 2, 1, 30, 0, 0, loc))
	if rec.CheckinDay != "2026-09-01" {
		t.Fatalf("CheckinDay = %q, want UTC day", rec.CheckinDay)
	}
}

func TestCheckInWritesThroughStore(t *testing.T) {
	store := &stubStore{putWritten: true}
	svc := &Service{store: store, now: fixedNow}

	rec, already, err := svc.CheckIn(context.Background(), "123_Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already {
		t.Fatal("first check-in should not be reported as duplicate")
	}
	if store.putCalls != 1 {
		t.Fatalf("store.Put called %d times", store.putCalls)
	}
	if rec.ExternalImageID != "123_Alice" || rec.CheckinDay != "2026-09-01" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestCheckInIdempotentOnSameDay(t *testing.T) {
	store := &stubStore{putWritten: false} // conditional put rejected
	svc := &Service{store: store, now: fixedNow}

	_, already, err := svc.CheckIn(context.Background(), "123_Alice")
	if err != nil {
		t.Fatalf("duplicate check-in must not error: %v", err)
	}
	if !already {
		t.Fatal("expected already=true when the day is recorded")
	}
}

func TestCheckInRequiresIdentity(t *testing.T) {
	svc := &Service{store: &stubStore{}, now: fixedNow}
	if _, _, err := svc.CheckIn(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty identity")
	}
}

func TestCheckInStoreErrorSurfaces(t *testing.T) {
	store := &stubStore{putErr: errors.New("throttled")}
	svc := &Service{store: store, now: fixedNow}
	if _, _, err := svc.CheckIn(context.Background(), "x"); err == nil {
		t.Fatal("expected store error to surface")
	}
}

func TestTodayQueriesCurrentUTCDay(t *testing.T) {
	store := &stubStore{records: []Record{{ExternalImageID: "x", CheckinDay: "2026-09-01", CheckinTime: "09:00:00"}}}
	svc := &Service{store: store, now: fixedNow}

	items, err := svc.Today(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 record, got %d", len(items))
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var cache *DayCache
	if cache.MarkedToday(context.Background(), "x", "2026-09-01") {
		t.Fatal("nil cache must report a miss")
	}
	cache.MarkToday(context.Background(), "x", "2026-09-01", fixedNow())
	if err := cache.ClearToday(context.Background(), "2026-09-01"); err != nil {
		t.Fatalf("nil cache clear: %v", err)
	}
	if cache.Healthy(context.Background()) {
		t.Fatal("nil cache must not report healthy")
	}
}

func TestEndOfDay(t *testing.T) {
	d := endOfDay(fixedNow())
	want := 9*time.Hour + 29*time.Minute + 55*time.Second
	if d != want {
		t.Fatalf("endOfDay = %s, want %s", d, want)
	}
}
