// Package cache keeps serialized floors in redis in front of a slower floor
// source and drops them when a polygon is committed.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studiospace/plankit/internal/editor"
	"github.com/studiospace/plankit/internal/loader"
	"github.com/studiospace/plankit/internal/metrics"
	"github.com/studiospace/plankit/internal/plan"
)

const keyPrefix = "plankit:floor:"

// Client is the subset of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Open returns a client for addr, or nil when addr is empty.
func Open(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Key returns the redis key for a floor.
func Key(floorID string) string { return keyPrefix + floorID }

// Source is a read-through cache in front of another loader.Source.
type Source struct {
	rc   Client
	next loader.Source
	ttl  time.Duration
}

// NewSource wraps next with a redis cache.
func NewSource(rc Client, next loader.Source, ttl time.Duration) *Source {
	return &Source{rc: rc, next: next, ttl: ttl}
}

// LoadFloor implements loader.Source. Redis errors are logged and treated
// as misses.
func (s *Source) LoadFloor(ctx context.Context, floorID string) (*plan.Floor, error) {
	key := Key(floorID)
	raw, err := s.rc.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var f plan.Floor
		if jerr := json.Unmarshal(raw, &f); jerr == nil {
			metrics.PlanCacheHitsTotal.Inc()
			return &f, nil
		}
		slog.Warn("discarding undecodable cached floor", "floor", floorID)
	case !errors.Is(err, redis.Nil):
		slog.Warn("plan cache read failed", "floor", floorID, "error", err)
	}
	metrics.PlanCacheMissesTotal.Inc()

	f, err := s.next.LoadFloor(ctx, floorID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(f); err == nil {
		if err := s.rc.Set(ctx, key, data, s.ttl).Err(); err != nil {
			slog.Warn("plan cache write failed", "floor", floorID, "error", err)
		}
	}
	return f, nil
}

// Invalidator drops a floor's cache entry when one of its polygons is
// committed.
type Invalidator struct {
	rc Client
}

// NewInvalidator creates an Invalidator.
func NewInvalidator(rc Client) *Invalidator {
	return &Invalidator{rc: rc}
}

// Invalidate drops the cached copy of a floor.
func (i *Invalidator) Invalidate(ctx context.Context, floorID string) error {
	if err := i.rc.Del(ctx, Key(floorID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached floor %s: %w", floorID, err)
	}
	return nil
}

// PolygonCommitted implements editor.CommitSink.
func (i *Invalidator) PolygonCommitted(ctx context.Context, c editor.Commit) error {
	return i.Invalidate(ctx, c.FloorID)
}
