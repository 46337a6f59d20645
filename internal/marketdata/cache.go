package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const tickSnapshotKey = "gerun:ticks:latest"

// tickEnvelope is the stored snapshot shape: the ticks plus when they were
// taken, so consumers can judge staleness after a fallback read
type tickEnvelope struct {
	Ticks    map[int]Tick `json:"ticks"`
	CachedAt time.Time    `json:"cached_at"`
}

// TickCache persists tick snapshots in Redis so restarts and sibling
// processes share one upstream fetch, and outages can serve the last
// known snapshot.
type TickCache struct {
	client  redis.Cmdable
	ttl     time.Duration
	metrics CacheMetrics
}

// NewTickCache wraps an existing Redis client. A nil metrics sink is
// replaced with a no-op.
func NewTickCache(client redis.Cmdable, ttl time.Duration, metrics CacheMetrics) *TickCache {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &TickCache{client: client, ttl: ttl, metrics: metrics}
}

// SaveTicks stores the snapshot under the shared key with the cache TTL
func (tc *TickCache) SaveTicks(ctx context.Context, ticks map[int]Tick, asOf time.Time) error {
	payload, err := json.Marshal(tickEnvelope{Ticks: ticks, CachedAt: asOf})
	if err != nil {
		return fmt.Errorf("marshal tick snapshot: %w", err)
	}
	if err := tc.client.Set(ctx, tickSnapshotKey, payload, tc.ttl).Err(); err != nil {
		return fmt.Errorf("save tick snapshot: %w", err)
	}
	return nil
}

// LatestTicks returns the stored snapshot and its capture time;
// ErrCacheMiss when no live snapshot exists
func (tc *TickCache) LatestTicks(ctx context.Context) (map[int]Tick, time.Time, error) {
	raw, err := tc.client.Get(ctx, tickSnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		tc.metrics.RecordCacheMiss("ticks_redis")
		return nil, time.Time{}, ErrCacheMiss
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read tick snapshot: %w", err)
	}

	var envelope tickEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode tick snapshot: %w", err)
	}
	tc.metrics.RecordCacheHit("ticks_redis")
	return envelope.Ticks, envelope.CachedAt, nil
}

// Healthy reports whether Redis answers a ping
func (tc *TickCache) Healthy(ctx context.Context) bool {
	return tc.client.Ping(ctx).Err() == nil
}

// CachedSource layers the Redis snapshot behind a live source: fresh data
// preferred, last known snapshot served when the upstream is unavailable.
type CachedSource struct {
	upstream Source
	cache    *TickCache
}

var _ Source = (*CachedSource)(nil)

// NewCachedSource combines a live source with a Redis tick cache
func NewCachedSource(upstream Source, cache *TickCache) *CachedSource {
	return &CachedSource{upstream: upstream, cache: cache}
}

// LatestTicks fetches from the upstream and writes the snapshot through to
// Redis; when the upstream fails, the last stored snapshot is served instead
func (s *CachedSource) LatestTicks(ctx context.Context) (map[int]Tick, error) {
	ticks, err := s.upstream.LatestTicks(ctx)
	if err == nil {
		if saveErr := s.cache.SaveTicks(ctx, ticks, time.Now().UTC()); saveErr != nil {
			log.Warn().Err(saveErr).Msg("tick snapshot write-through failed")
		}
		return ticks, nil
	}

	cached, asOf, cacheErr := s.cache.LatestTicks(ctx)
	if cacheErr != nil {
		return nil, err
	}
	log.Warn().
		Err(err).
		Time("snapshot_at", asOf).
		Msg("upstream unavailable, serving cached ticks")
	return cached, nil
}

// ItemMeta delegates to the upstream, which holds the mapping in process
func (s *CachedSource) ItemMeta(ctx context.Context, itemID int) (Meta, error) {
	return s.upstream.ItemMeta(ctx, itemID)
}

// Healthy reports whether either layer can serve tick data
func (s *CachedSource) Healthy(ctx context.Context) bool {
	return s.upstream.Healthy(ctx) || s.cache.Healthy(ctx)
}
