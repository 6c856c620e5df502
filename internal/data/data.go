// Package data provides the storage backends for breaker and rate-limit state
// and the clients for the external collaborators.
package data

import (
	"fmt"

	"OracleGate/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewCircuitBreakerRepo,
	NewRateLimitRepo,
	NewAuditLogger,
	NewGoldskySource,
	NewRPCSource,
	NewLitSigner,
	NewClaudeAnalyzer,
	NewOracleClient,
)

// Data holds the shared state backend selected by data.store.driver.
// Exactly one of rdb and db is set for the redis and mysql drivers; neither
// is set for the memory driver.
type Data struct {
	driver string
	rdb    *redis.Client
	db     *gorm.DB
	cache  CacheClient
}

// NewData opens the configured store. A store that cannot be reached fails
// startup, since breaker and limiter state must be shared between instances.
func NewData(c *conf.Data, logger log.Logger) (*Data, func(), error) {
	helper := log.NewHelper(log.With(logger, "module", "data"))

	driver := conf.StoreMemory
	if c != nil && c.Store != nil && c.Store.Driver != "" {
		driver = c.Store.Driver
	}

	d := &Data{driver: driver}
	cleanup := func() {}

	switch driver {
	case conf.StoreMemory:
		helper.Warn("using in-memory store, breaker and rate-limit state is not shared between instances")
	case conf.StoreRedis:
		rdb, redisCleanup, err := NewRedisClient(c, logger)
		if err != nil {
			redisCleanup()
			return nil, nil, err
		}
		if rdb == nil {
			return nil, nil, fmt.Errorf("redis store selected but redis is not configured")
		}
		d.rdb = rdb
		d.cache = NewCacheClient(rdb)
		cleanup = redisCleanup
	case conf.StoreMySQL:
		db, mysqlCleanup, err := NewMySQLClient(c, logger)
		if err != nil {
			return nil, nil, err
		}
		d.db = db
		cleanup = mysqlCleanup
	default:
		return nil, nil, fmt.Errorf("unknown store driver: %s", driver)
	}

	return d, func() {
		helper.Info("closing the data resources")
		cleanup()
	}, nil
}

// Driver returns the selected store driver.
func (d *Data) Driver() string {
	return d.driver
}

// GetRedisClient returns the Redis client, or nil when Redis is not the store.
func (d *Data) GetRedisClient() *redis.Client {
	return d.rdb
}

// GetDB returns the MySQL handle, or nil when MySQL is not the store.
func (d *Data) GetDB() *gorm.DB {
	return d.db
}
