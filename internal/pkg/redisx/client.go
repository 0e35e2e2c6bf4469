package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tcJackClay/HuanuCanvas-sub001/internal/pkg/config"
	"go.uber.org/zap"
)

var client *redis.Client

// Init connects the shared Redis client. Redis is optional: callers fall back
// to in-process equivalents when this fails.
func Init(cfg *config.Config) error {
	client = redis.NewClient(&redis.Options{
		Addr: cfg.GetRedisAddr(),
		DB:   cfg.RedisService.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client = nil
		return err
	}

	zap.L().Info("Redis connected",
		zap.String("component", "redis"),
		zap.String("addr", cfg.GetRedisAddr()))
	return nil
}

// GetClient returns the Redis client, or nil when Redis is not configured.
func GetClient() *redis.Client {
	return client
}

// Close closes the Redis connection
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}
