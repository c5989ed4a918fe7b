package attendance

import (
	"context"
	"errors"
	"time"
)

type recordStore interface {
	Put(ctx context.Context, rec Record) (bool, error)
	QueryDay(ctx context.Context, externalImageID, day string) ([]Record, error)
}

// Service routes all attendance reads and writes through the persisted store,
// with an optional day cache in front of the write path.
type Service struct {
	store recordStore
	cache *DayCache
	now   func() time.Time
}

// NewService creates a service. cache may be nil.
func NewService(store *Store, cache *DayCache) *Service {
	return &Service{store: store, cache: cache, now: time.Now}
}

// CheckIn records attendance for the identity on the current UTC day.
// The returned flag is true when the identity had already checked in today;
// that is reported as a normal outcome, not an error.
func (s *Service) CheckIn(ctx context.Context, externalImageID string) (Record, bool, error) {
	if externalImageID == "" {
		return Record{}, false, errors.New("attendance: external image id required")
	}
	now := s.now()
	rec := NewRecord(externalImageID, now)

	if s.cache.MarkedToday(ctx, externalImageID, rec.CheckinDay) {
		return rec, true, nil
	}

	written, err := s.store.Put(ctx, rec)
	if err != nil {
		return Record{}, false, err
	}
	s.cache.MarkToday(ctx, externalImageID, rec.CheckinDay, now)
	return rec, !written, nil
}

// Today returns the identity's records for the current UTC day.
func (s *Service) Today(ctx context.Context, externalImageID string) ([]Record, error) {
	if externalImageID == "" {
		return nil, errors.New("attendance: external image id required")
	}
	return s.store.QueryDay(ctx, externalImageID, Day(s.now()))
}

// ResetDayCache clears today's cached marks. The store is untouched.
func (s *Service) ResetDayCache(ctx context.Context) error {
	return s.cache.ClearToday(ctx, Day(s.now()))
}
