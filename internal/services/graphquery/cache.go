package graphquery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduforge/knowledge-backend/internal/pkg/envutil"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/types"
)

// Cache is a best-effort read cache for graph responses. Failures never
// surface to callers; a broken cache just means every query hits Neo4j.
type Cache interface {
	Get(ctx context.Context, f GraphFilter) (*types.GraphResult, bool)
	Set(ctx context.Context, f GraphFilter, result *types.GraphResult)
	// InvalidateOwner drops every cached graph for one owner, used when
	// ingestion or deletion changes their graph.
	InvalidateOwner(ctx context.Context, ownerID string)
}

type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRedisCache(rdb *redis.Client, baseLog *logger.Logger) Cache {
	if rdb == nil {
		return nil
	}
	return &redisCache{
		rdb: rdb,
		ttl: envutil.Duration("GRAPH_CACHE_TTL", 30*time.Second),
		log: baseLog.With("cache", "GraphQueryCache"),
	}
}

func (c *redisCache) Get(ctx context.Context, f GraphFilter) (*types.GraphResult, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(f)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("graph cache get failed", "error", err)
		}
		return nil, false
	}
	var result types.GraphResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false
	}
	return &result, true
}

func (c *redisCache) Set(ctx context.Context, f GraphFilter, result *types.GraphResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(f), raw, c.ttl).Err(); err != nil {
		c.log.Debug("graph cache set failed", "error", err)
	}
}

func (c *redisCache) InvalidateOwner(ctx context.Context, ownerID string) {
	if ownerID == "" {
		return
	}
	pattern := "kgraph:" + ownerID + ":*"
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Debug("graph cache invalidation failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		c.log.Debug("graph cache scan failed", "owner_id", ownerID, "error", err)
	}
}

func cacheKey(f GraphFilter) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d",
		f.Subject, f.Grade, f.Topic, ParseScope(f.Scope), f.Limit)))
	return "kgraph:" + f.OwnerID + ":" + hex.EncodeToString(h[:8])
}
