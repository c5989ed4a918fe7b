package attendance

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DayCache marks identities already checked in today so repeat attempts skip
// the store round-trip. Keys expire at the end of the UTC day; the persisted
// store stays authoritative. All methods are safe on a nil cache.
type DayCache struct {
	client *redis.Client
}

// NewDayCache wraps a redis client. Pass nil to disable caching.
func NewDayCache(client *redis.Client) *DayCache {
	if client == nil {
		return nil
	}
	return &DayCache{client: client}
}

func dayKey(externalImageID, day string) string {
	return "checkin:" + day + ":" + externalImageID
}

// endOfDay returns the remaining duration of now's UTC day.
func endOfDay(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return next.Sub(now)
}

// MarkedToday reports whether the identity was cached for the given day.
// Cache errors degrade to a miss.
func (c *DayCache) MarkedToday(ctx context.Context, externalImageID, day string) bool {
	if c == nil {
		return false
	}
	n, err := c.client.Exists(ctx, dayKey(externalImageID, day)).Result()
	return err == nil && n > 0
}

// MarkToday caches the identity until the UTC day ends. Failures are ignored;
// the store already holds the record.
func (c *DayCache) MarkToday(ctx context.Context, externalImageID, day string, now time.Time) {
	if c == nil {
		return
	}
	c.client.Set(ctx, dayKey(externalImageID, day), "1", endOfDay(now))
}

// ClearToday drops every cached mark for the given day. Used by the dev
// reset endpoint; persisted records are never deleted.
func (c *DayCache) ClearToday(ctx context.Context, day string) error {
	if c == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, "checkin:"+day+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Healthy verifies redis connectivity.
func (c *DayCache) Healthy(ctx context.Context) bool {
	if c == nil {
		return false
	}
	return c.client.Ping(ctx).Err() == nil
}
