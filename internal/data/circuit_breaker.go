package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OracleGate/internal/conf"
	"OracleGate/internal/model"
	dberrors "OracleGate/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CircuitRecord is the MySQL row for one breaker.
type CircuitRecord struct {
	Name            string     `gorm:"primaryKey;type:varchar(64)"`
	State           string     `gorm:"type:varchar(16);not null;default:CLOSED"`
	FailureCount    int        `gorm:"not null;default:0"`
	LastFailureTime *time.Time `gorm:"type:datetime(3)"`
	LastSuccessTime *time.Time `gorm:"type:datetime(3)"`
	UpdatedAt       time.Time  `gorm:"type:datetime(3)"`
}

func (CircuitRecord) TableName() string {
	return "circuit_records"
}

func (r *CircuitRecord) toModel() *model.CircuitRecord {
	return &model.CircuitRecord{
		State:           model.CircuitState(r.State),
		FailureCount:    r.FailureCount,
		LastFailureTime: r.LastFailureTime,
		LastSuccessTime: r.LastSuccessTime,
	}
}

// circuitStore is implemented once per store driver.
type circuitStore interface {
	get(ctx context.Context, name string) (*model.CircuitRecord, error)
	save(ctx context.Context, name string, rec *model.CircuitRecord) error
	list(ctx context.Context) (map[string]*model.CircuitRecord, error)
}

// CircuitBreakerRepo implements biz.CircuitBreakerRepo on the configured store.
type CircuitBreakerRepo struct {
	store  circuitStore
	logger *log.Helper
}

// NewCircuitBreakerRepo creates a new circuit breaker repository.
func NewCircuitBreakerRepo(d *Data, logger log.Logger) *CircuitBreakerRepo {
	helper := log.NewHelper(log.With(logger, "module", "data/circuit_breaker"))

	var store circuitStore
	switch d.driver {
	case conf.StoreRedis:
		store = &redisCircuitStore{cache: d.cache}
	case conf.StoreMySQL:
		store = &mysqlCircuitStore{db: d.db}
	default:
		store = newMemoryCircuitStore()
	}

	return &CircuitBreakerRepo{store: store, logger: helper}
}

// GetCircuit returns the stored record, or (nil, nil) if none exists.
func (r *CircuitBreakerRepo) GetCircuit(ctx context.Context, name string) (*model.CircuitRecord, error) {
	rec, err := r.store.get(ctx, name)
	if err != nil {
		r.logger.Warnw("msg", "failed to read circuit record", "circuit", name, "error", err)
		return nil, err
	}
	return rec, nil
}

// SaveCircuit overwrites the record for name.
func (r *CircuitBreakerRepo) SaveCircuit(ctx context.Context, name string, rec *model.CircuitRecord) error {
	if rec == nil {
		return fmt.Errorf("circuit record for %s is nil", name)
	}
	if err := r.store.save(ctx, name, rec); err != nil {
		r.logger.Warnw("msg", "failed to save circuit record", "circuit", name, "error", err)
		return err
	}
	return nil
}

// ListCircuits returns every stored record keyed by breaker name.
func (r *CircuitBreakerRepo) ListCircuits(ctx context.Context) (map[string]*model.CircuitRecord, error) {
	return r.store.list(ctx)
}

type redisCircuitStore struct {
	cache CacheClient
}

func (s *redisCircuitStore) get(ctx context.Context, name string) (*model.CircuitRecord, error) {
	var rec model.CircuitRecord
	err := s.cache.Get(ctx, BuildCacheKey(CacheKeyCircuit, name), &rec)
	if errors.Is(err, ErrCacheNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *redisCircuitStore) save(ctx context.Context, name string, rec *model.CircuitRecord) error {
	return s.cache.Set(ctx, BuildCacheKey(CacheKeyCircuit, name), rec, 0)
}

func (s *redisCircuitStore) list(ctx context.Context) (map[string]*model.CircuitRecord, error) {
	keys, err := s.cache.Keys(ctx, CacheKeyCircuit)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.CircuitRecord, len(keys))
	for _, key := range keys {
		name := trimCacheKey(CacheKeyCircuit, key)
		rec, err := s.get(ctx, name)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out[name] = rec
		}
	}
	return out, nil
}

type mysqlCircuitStore struct {
	db *gorm.DB
}

func (s *mysqlCircuitStore) get(ctx context.Context, name string) (*model.CircuitRecord, error) {
	var row CircuitRecord
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if err != nil {
		if dberrors.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, dberrors.ClassifyDBError(err)
	}
	return row.toModel(), nil
}

func (s *mysqlCircuitStore) save(ctx context.Context, name string, rec *model.CircuitRecord) error {
	row := CircuitRecord{
		Name:            name,
		State:           string(rec.State),
		FailureCount:    rec.FailureCount,
		LastFailureTime: rec.LastFailureTime,
		LastSuccessTime: rec.LastSuccessTime,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "failure_count", "last_failure_time", "last_success_time", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return dberrors.ClassifyDBError(err)
	}
	return nil
}

func (s *mysqlCircuitStore) list(ctx context.Context) (map[string]*model.CircuitRecord, error) {
	var rows []CircuitRecord
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, dberrors.ClassifyDBError(err)
	}
	out := make(map[string]*model.CircuitRecord, len(rows))
	for i := range rows {
		out[rows[i].Name] = rows[i].toModel()
	}
	return out, nil
}
