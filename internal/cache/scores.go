// Package cache provides a short-lived Redis cache for derived engagement
// scores. Scores are recomputed from the signal set on every write, so the
// cache only ever serves reads between writes; a miss or a Redis outage falls
// back to recomputation and is never an error.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/solmere/go-wellness-backend/internal/domain"
)

// ScoreCache caches EngagementScore snapshots keyed by (user, session).
// A nil *ScoreCache is valid and disables caching entirely.
type ScoreCache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewScoreCache wraps an existing Redis client. TTL values <= 0 default to
// one minute.
func NewScoreCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ScoreCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ScoreCache{rdb: rdb, ttl: ttl, log: log}
}

func scoreKey(userID, sessionID string) string {
	return fmt.Sprintf("engagement:%s:%s", userID, sessionID)
}

// Get returns the cached score or (nil, false). Redis failures are logged and
// reported as misses.
func (c *ScoreCache) Get(ctx context.Context, userID, sessionID string) (*domain.EngagementScore, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, scoreKey(userID, sessionID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("score cache read failed")
		}
		return nil, false
	}
	var s domain.EngagementScore
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// Put stores a freshly computed score. Failures are logged, never returned.
func (c *ScoreCache) Put(ctx context.Context, s domain.EngagementScore) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, scoreKey(s.UserID, s.SessionID), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("score cache write failed")
	}
}

// Invalidate drops the cached score after a new signal lands.
func (c *ScoreCache) Invalidate(ctx context.Context, userID, sessionID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, scoreKey(userID, sessionID)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("score cache invalidation failed")
	}
}
