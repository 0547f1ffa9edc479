package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/postpilot/postpilot-backend/pkg/logger"
	"github.com/postpilot/postpilot-backend/pkg/redis"
)

const defaultCacheTTL = 30 * time.Second

type decisionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	PermissionKey(userID string) string
}

// CachedOracle memoizes decisions in Redis. Cache errors are logged and the
// wrapped oracle answers instead.
type CachedOracle struct {
	next  Oracle
	store decisionStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewCachedOracle wraps next. A nil store returns next unchanged.
func NewCachedOracle(next Oracle, store decisionStore, ttl time.Duration, logg *logger.Logger) Oracle {
	if store == nil {
		return next
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedOracle{next: next, store: store, ttl: ttl, logg: logg}
}

func (c *CachedOracle) CanAutoPost(ctx context.Context, userID uuid.UUID) (Decision, error) {
	key := c.store.PermissionKey(userID.String())

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var cached Decision
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return cached, nil
		}
		c.warn(ctx, "discarding unreadable cached decision", userID)
	case !errors.Is(err, redis.Nil):
		c.warn(ctx, "permission cache read failed", userID)
	}

	decision, err := c.next.CanAutoPost(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if payload, jsonErr := json.Marshal(decision); jsonErr == nil {
		if setErr := c.store.Set(ctx, key, payload, c.ttl); setErr != nil {
			c.warn(ctx, "permission cache write failed", userID)
		}
	}
	return decision, nil
}

// Invalidate drops a cached decision, for use after a plan change.
func (c *CachedOracle) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.store.Del(ctx, c.store.PermissionKey(userID.String()))
}

func (c *CachedOracle) warn(ctx context.Context, msg string, userID uuid.UUID) {
	if c.logg == nil {
		return
	}
	c.logg.Warn(c.logg.WithUserID(ctx, userID.String()), msg)
}
