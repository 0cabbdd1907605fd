package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
)

// CacheRepository holds the short-lived chain read cache. Append invalidates,
// reads repopulate.
type CacheRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheRepository constructs the repository.
func NewCacheRepository(client *redis.Client, ttl time.Duration) *CacheRepository {
	return &CacheRepository{client: client, ttl: ttl}
}

func chainKey(projectID string) string {
	return "cache:chain:" + projectID
}

// GetChain returns the cached chain or ErrCacheMiss.
func (r *CacheRepository) GetChain(ctx context.Context, projectID string) ([]models.ChainBlock, error) {
	raw, err := r.client.Get(ctx, chainKey(projectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("read chain cache: %w", err)
	}

	var blocks []models.ChainBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("decode chain cache: %w", err)
	}
	return blocks, nil
}

// SetChain stores the chain with the configured TTL.
func (r *CacheRepository) SetChain(ctx context.Context, projectID string, blocks []models.ChainBlock) error {
	raw, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("encode chain cache: %w", err)
	}
	if err := r.client.Set(ctx, chainKey(projectID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("write chain cache: %w", err)
	}
	return nil
}

// InvalidateChain drops the cached chain for a project.
func (r *CacheRepository) InvalidateChain(ctx context.Context, projectID string) error {
	if err := r.client.Del(ctx, chainKey(projectID)).Err(); err != nil {
		return fmt.Errorf("invalidate chain cache: %w", err)
	}
	return nil
}
