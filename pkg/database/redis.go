package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/datakiln/ingest-engine/pkg/config"
)

// redisPingTimeout bounds the startup connectivity check so a wedged cache
// cannot stall boot.
const redisPingTimeout = 5 * time.Second

// NewRedisClient connects the ingest result cache. Returns nil without an
// error when no host is configured, which disables caching entirely.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: "ingest-engine",
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to result cache: %w", err)
	}

	return client, nil
}
