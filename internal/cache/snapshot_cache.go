// Package cache memoises leaderboard reads.
//
// Completed snapshots and their rows never change, so both are safe to keep
// in a process-local LRU keyed by snapshot id. What does change is which
// snapshot is the latest for a period; when Redis is configured that pointer
// is shared across instances and only ever moves forward in generatedAt.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-xp-backend/internal/domain"
)

const (
	latestKeyPrefix = "xp:leaderboard:latest:"
	versionKey      = "xp:leaderboard:version"
	// DefaultSize is used when a non-positive size is given.
	DefaultSize = 256
)

// publishScript moves the latest pointer of a period only if the new
// snapshot is newer, then bumps the global version. Pointer values are
// "<20-digit generatedAt nanos>:<snapshot id>" so string order is time order.
var publishScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and string.sub(cur, 1, 20) >= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1] .. ':' .. ARGV[2])
redis.call('INCR', KEYS[2])
return 1
`)

// SnapshotCache holds immutable snapshots and row pages. Redis is optional.
type SnapshotCache struct {
	snaps *lru.Cache
	rows  *lru.Cache
	rdb   redis.UniversalClient
}

// New builds a cache holding up to size snapshots and size row pages.
func New(size int, rdb redis.UniversalClient) (*SnapshotCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	snaps, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	rows, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &SnapshotCache{snaps: snaps, rows: rows, rdb: rdb}, nil
}

// Shared reports whether a Redis pointer is configured.
func (c *SnapshotCache) Shared() bool { return c != nil && c.rdb != nil }

// Snapshot returns a cached completed snapshot.
func (c *SnapshotCache) Snapshot(id string) (*domain.LeaderboardSnapshot, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.snaps.Get(id)
	if !ok {
		return nil, false
	}
	s := v.(domain.LeaderboardSnapshot)
	return &s, true
}

// PutSnapshot caches a completed snapshot. Other statuses are ignored.
func (c *SnapshotCache) PutSnapshot(s *domain.LeaderboardSnapshot) {
	if c == nil || s == nil || s.Status != domain.SnapshotCompleted {
		return
	}
	c.snaps.Add(s.ID, *s)
}

func rowsKey(snapshotID string, skip, limit int) string {
	return fmt.Sprintf("%s:%d:%d", snapshotID, skip, limit)
}

// Rows returns a cached page of a snapshot's rows.
func (c *SnapshotCache) Rows(snapshotID string, skip, limit int) ([]domain.LeaderboardRow, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.rows.Get(rowsKey(snapshotID, skip, limit))
	if !ok {
		return nil, false
	}
	return v.([]domain.LeaderboardRow), true
}

// PutRows caches a page of rows.
func (c *SnapshotCache) PutRows(snapshotID string, skip, limit int, rows []domain.LeaderboardRow) {
	if c == nil {
		return
	}
	c.rows.Add(rowsKey(snapshotID, skip, limit), rows)
}

// LatestID returns the shared latest snapshot id of a period. ok is false
// when Redis is not configured or holds no pointer yet.
func (c *SnapshotCache) LatestID(ctx context.Context, p domain.Period) (id string, ok bool, err error) {
	if !c.Shared() {
		return "", false, nil
	}
	v, err := c.rdb.Get(ctx, latestKeyPrefix+string(p)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	_, id, found := strings.Cut(v, ":")
	if !found || id == "" {
		return "", false, nil
	}
	return id, true, nil
}

// Publish caches a freshly completed snapshot and advances the shared
// pointer. It reports whether the pointer moved; an older snapshot never
// replaces a newer one.
func (c *SnapshotCache) Publish(ctx context.Context, s *domain.LeaderboardSnapshot) (bool, error) {
	if c == nil || s == nil {
		return false, nil
	}
	c.PutSnapshot(s)
	if !c.Shared() {
		return true, nil
	}
	stamp := fmt.Sprintf("%020d", s.GeneratedAt.UTC().UnixNano())
	n, err := publishScript.Run(ctx, c.rdb,
		[]string{latestKeyPrefix + string(s.Period), versionKey},
		stamp, s.ID,
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Version returns the number of pointer moves seen by Redis, or 0 without
// Redis. Clients may use it as a cheap change indicator.
func (c *SnapshotCache) Version(ctx context.Context) (int64, error) {
	if !c.Shared() {
		return 0, nil
	}
	v, err := c.rdb.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}
