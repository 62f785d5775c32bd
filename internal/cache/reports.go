package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReportCache stores rendered productivity series per user. Entries are keyed
// by a per-user version; bumping the version orphans every cached report,
// which then expires through its TTL.
type ReportCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{redis: client, ttl: ttl}
}

func versionKey(userID int64) string {
	return fmt.Sprintf("productivity_version:%d", userID)
}

func entryKey(userID, version int64, name string) string {
	return fmt.Sprintf("productivity:%d:v%d:%s", userID, version, name)
}

func (c *ReportCache) version(ctx context.Context, userID int64) (int64, error) {
	v, err := c.redis.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Get looks up a cached report under the user's current version and returns
// that version, which Set must be given so a report computed before an
// Invalidate never lands under the newer version.
func (c *ReportCache) Get(ctx context.Context, userID int64, name string) ([]byte, int64, bool, error) {
	v, err := c.version(ctx, userID)
	if err != nil {
		return nil, 0, false, fmt.Errorf("read cache version: %w", err)
	}

	data, err := c.redis.Get(ctx, entryKey(userID, v, name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, v, false, nil
	}
	if err != nil {
		return nil, v, false, fmt.Errorf("read cached report: %w", err)
	}
	return data, v, true, nil
}

// Set stores data under the given version, as returned by Get.
func (c *ReportCache) Set(ctx context.Context, userID, version int64, name string, data []byte) error {
	if c.ttl <= 0 {
		return nil
	}
	return c.redis.Set(ctx, entryKey(userID, version, name), data, c.ttl).Err()
}

// Invalidate drops every cached report of the user.
func (c *ReportCache) Invalidate(ctx context.Context, userID int64) error {
	return c.redis.Incr(ctx, versionKey(userID)).Err()
}
