package database

import (
	"context"
	"fmt"
	"playstats_backend/internal/config"
	"playstats_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InitRedis 连接 redis 并做一次 PING。redis 只承担跨实例心跳锁
func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: min(5, cfg.PoolSize),
		DialTimeout:  cfg.DialTimeout,
	})

	ctx := context.Background()
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}

	logger.Log.Info("Redis connection established",
		zap.String("addr", addr),
		zap.Int("db", cfg.DB),
		zap.Int("poolSize", cfg.PoolSize))
	return rdb, nil
}
