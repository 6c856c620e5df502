package data

import (
	"context"
	"fmt"
	"time"

	"OracleGate/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a Redis client with connection pool configuration.
// It returns the client, a cleanup function, and an error.
func NewRedisClient(c *conf.Data, logger log.Logger) (*redis.Client, func(), error) {
	helper := log.NewHelper(log.With(logger, "module", "data/redis"))

	if c == nil || c.Redis == nil {
		helper.Warn("Redis configuration is nil, skipping Redis initialization")
		return nil, func() {}, nil
	}

	addr := c.Redis.Addr
	if addr == "" {
		helper.Warn("Redis address is empty, skipping Redis initialization")
		return nil, func() {}, nil
	}

	network := c.Redis.Network
	if network == "" {
		network = "tcp"
	}

	rdb := redis.NewClient(&redis.Options{
		Network:         network,
		Addr:            addr,
		Password:        c.Redis.Password,
		DB:              c.Redis.DB,
		PoolSize:        100,
		MinIdleConns:    10,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     c.Redis.ReadTimeout.AsDuration(),
		WriteTimeout:    c.Redis.WriteTimeout.AsDuration(),
		ConnMaxIdleTime: 5 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		helper.Errorf("Failed to connect to Redis at %s: %v", addr, err)
		return rdb, func() {
			helper.Info("Closing Redis client (connection was unavailable)")
			_ = rdb.Close()
		}, fmt.Errorf("redis ping failed: %w", err)
	}

	helper.Infof("Successfully connected to Redis at %s", addr)

	cleanup := func() {
		helper.Info("Closing Redis client")
		if err := rdb.Close(); err != nil {
			helper.Errorf("Failed to close Redis client: %v", err)
		}
	}

	return rdb, cleanup, nil
}
