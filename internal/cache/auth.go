package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/auralforge/auralforge/internal/model"
)

const (
	// authCachePrefix is the Redis key prefix for verified API key contexts.
	authCachePrefix = "auth:ctx:"
	// authIndexPrefix tracks the cache entries belonging to one key ID.
	authIndexPrefix = "auth:key:"
	// authCacheTTL is the time-to-live for cached auth contexts.
	authCacheTTL = 5 * time.Minute
)

// cachedAuthContext is the Redis representation of an API key principal.
type cachedAuthContext struct {
	KeyID     string   `json:"key_id"`
	KeyPrefix string   `json:"key_prefix"`
	ProjectID string   `json:"project_id"`
	TeamID    string   `json:"team_id"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
}

// GetAuthContext retrieves a cached API key principal by cache key.
// A miss, including an unreadable entry, returns nil without error.
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, authCachePrefix+cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auth context: %w", err)
	}

	var cached cachedAuthContext
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		Kind:      model.PrincipalAPIKey,
		KeyID:     cached.KeyID,
		KeyPrefix: cached.KeyPrefix,
		ProjectID: cached.ProjectID,
		TeamID:    cached.TeamID,
		UserID:    cached.UserID,
		Scopes:    cached.Scopes,
	}, nil
}

// SetAuthContext caches an API key principal and indexes it by key ID so
// revocation can drop it.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	data, err := json.Marshal(cachedAuthContext{
		KeyID:     auth.KeyID,
		KeyPrefix: auth.KeyPrefix,
		ProjectID: auth.ProjectID,
		TeamID:    auth.TeamID,
		UserID:    auth.UserID,
		Scopes:    auth.Scopes,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	indexKey := authIndexPrefix + auth.KeyID
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, authCachePrefix+cacheKey, data, authCacheTTL)
	pipe.SAdd(ctx, indexKey, cacheKey)
	pipe.Expire(ctx, indexKey, authCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache auth context: %w", err)
	}
	return nil
}

// InvalidateKey removes every cached context for a revoked key.
func (c *Cache) InvalidateKey(ctx context.Context, keyID string) error {
	indexKey := authIndexPrefix + keyID
	members, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("read auth index: %w", err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, authCachePrefix+m)
	}
	keys = append(keys, indexKey)
	return c.client.Del(ctx, keys...).Err()
}
