package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"OracleGate/internal/conf"
	dberrors "OracleGate/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// RateLimitRecord is the MySQL row holding the last accepted request per key.
// Times are stored as unix milliseconds so the admission check is a single
// integer comparison inside the upsert.
type RateLimitRecord struct {
	RateKey       string    `gorm:"primaryKey;type:varchar(128)"`
	LastRequestMs int64     `gorm:"not null;index"`
	UpdatedAt     time.Time `gorm:"type:datetime(3)"`
}

func (RateLimitRecord) TableName() string {
	return "rate_limit_records"
}

// rateStore is implemented once per store driver.
type rateStore interface {
	tryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Time, error)
	getLast(ctx context.Context, key string) (time.Time, bool, error)
	pruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateLimitRepo implements biz.RateLimitRepo interface.
// Following Kratos v2 DDD architecture, interface is defined in biz layer.
type RateLimitRepo struct {
	store  rateStore
	logger *log.Helper
}

// NewRateLimitRepo creates a new rate limit repository on the configured store.
func NewRateLimitRepo(d *Data, logger log.Logger) *RateLimitRepo {
	helper := log.NewHelper(log.With(logger, "module", "data/rate_limit"))

	var store rateStore
	switch d.driver {
	case conf.StoreRedis:
		store = &redisRateStore{rdb: d.rdb}
	case conf.StoreMySQL:
		store = &mysqlRateStore{db: d.db, logger: helper}
	default:
		store = newMemoryRateStore()
	}

	return &RateLimitRepo{store: store, logger: helper}
}

// TryAcquire records now for key unless a request was accepted within window.
func (r *RateLimitRepo) TryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Time, error) {
	return r.store.tryAcquire(ctx, key, now, window)
}

// GetLastRequest returns the last accepted request time for key.
func (r *RateLimitRepo) GetLastRequest(ctx context.Context, key string) (time.Time, bool, error) {
	return r.store.getLast(ctx, key)
}

// PruneBefore deletes records last touched at or before cutoff.
func (r *RateLimitRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.store.pruneBefore(ctx, cutoff)
}

// acquireScript admits a request when the stored timestamp is absent or at
// least a window old. The key expires with the window, so Redis needs no pruning.
//
// KEYS[1] = rate key, ARGV[1] = now (ms), ARGV[2] = window (ms)
// Returns {1, now} when admitted, {0, last} otherwise.
var acquireScript = redis.NewScript(`
local last = redis.call('GET', KEYS[1])
if last then
  last = tonumber(last)
  if tonumber(ARGV[1]) - last < tonumber(ARGV[2]) then
    return {0, last}
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return {1, tonumber(ARGV[1])}
`)

type redisRateStore struct {
	rdb *redis.Client
}

func getRateLimitKey(key string) string {
	return BuildCacheKey(CacheKeyRate, key)
}

func (s *redisRateStore) tryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Time, error) {
	if s.rdb == nil {
		return false, time.Time{}, fmt.Errorf("redis client is nil")
	}

	res, err := acquireScript.Run(ctx, s.rdb, []string{getRateLimitKey(key)}, now.UnixMilli(), window.Milliseconds()).Slice()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, time.Time{}, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}

	acquired, ok1 := res[0].(int64)
	lastMs, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return false, time.Time{}, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}
	return acquired == 1, time.UnixMilli(lastMs), nil
}

func (s *redisRateStore) getLast(ctx context.Context, key string) (time.Time, bool, error) {
	if s.rdb == nil {
		return time.Time{}, false, fmt.Errorf("redis client is nil")
	}

	val, err := s.rdb.Get(ctx, getRateLimitKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last request: %w", err)
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse last request: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

func (s *redisRateStore) pruneBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// acquireSQL inserts the key or, when the stored request is at least a window
// old, moves it to now. updated_at is assigned first because MySQL evaluates
// the assignments left to right.
const acquireSQL = "INSERT INTO rate_limit_records (rate_key, last_request_ms, updated_at) VALUES (?, ?, ?) " +
	"ON DUPLICATE KEY UPDATE " +
	"updated_at = IF(last_request_ms <= ?, VALUES(updated_at), updated_at), " +
	"last_request_ms = IF(last_request_ms <= ?, VALUES(last_request_ms), last_request_ms)"

type mysqlRateStore struct {
	db     *gorm.DB
	logger *log.Helper
}

func (s *mysqlRateStore) tryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Time, error) {
	nowMs := now.UnixMilli()
	cutoffMs := nowMs - window.Milliseconds()

	exec := func() *gorm.DB {
		return s.db.WithContext(ctx).Exec(acquireSQL, key, nowMs, now.UTC(), cutoffMs, cutoffMs)
	}

	res := exec()
	if res.Error != nil && dberrors.IsTransientError(res.Error) {
		s.logger.Warnw("msg", "transient error acquiring rate limit slot, retrying once",
			"key", key,
			"error", res.Error)
		res = exec()
	}
	if res.Error != nil {
		return false, time.Time{}, dberrors.ClassifyDBError(res.Error)
	}

	// 1 row affected for an insert, 2 for a changed update, 0 when the slot is taken.
	if res.RowsAffected > 0 {
		return true, now, nil
	}

	last, ok, err := s.getLast(ctx, key)
	if err != nil {
		return false, time.Time{}, err
	}
	if !ok {
		return false, time.Time{}, fmt.Errorf("rate limit record for %s vanished", key)
	}
	return false, last, nil
}

func (s *mysqlRateStore) getLast(ctx context.Context, key string) (time.Time, bool, error) {
	var row RateLimitRecord
	err := s.db.WithContext(ctx).Where("rate_key = ?", key).First(&row).Error
	if err != nil {
		if dberrors.IsNotFoundError(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, dberrors.ClassifyDBError(err)
	}
	return time.UnixMilli(row.LastRequestMs), true, nil
}

func (s *mysqlRateStore) pruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("last_request_ms <= ?", cutoff.UnixMilli()).Delete(&RateLimitRecord{})
	if res.Error != nil {
		return 0, dberrors.ClassifyDBError(res.Error)
	}
	return res.RowsAffected, nil
}
