package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"OracleGate/internal/model"
	"OracleGate/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitBreakerRepo persists circuit records keyed by collaborator name.
// GetCircuit returns (nil, nil) for a breaker that has never been saved.
type CircuitBreakerRepo interface {
	GetCircuit(ctx context.Context, name string) (*model.CircuitRecord, error)
	SaveCircuit(ctx context.Context, name string, record *model.CircuitRecord) error
	ListCircuits(ctx context.Context) (map[string]*model.CircuitRecord, error)
}

// CircuitBreakerConfig configures when a breaker opens and how long it stays open.
type CircuitBreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

// DefaultCircuitBreakerConfig opens after 3 consecutive failures for 60 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{Threshold: 3, Cooldown: 60 * time.Second}
}

// CircuitOpenError is returned by Execute when the breaker refuses to run the operation.
type CircuitOpenError struct {
	Name string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is OPEN for %s", e.Name)
}

// IsCircuitOpen reports whether err, or any error it wraps, is a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}

// CircuitBreaker gates calls to one named collaborator. Its state lives in the
// repo so that every gateway instance sees the same breaker. Record updates
// from concurrent calls in this process are serialized by mu; the guarded
// operation itself runs outside the lock.
//
//	CLOSED --threshold failures--> OPEN --cooldown--> HALF_OPEN --success--> CLOSED
//	                                 ^                    |
//	                                 +------failure-------+
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	repo      CircuitBreakerRepo
	metrics   *metrics.Metrics
	audit     AuditLogger
	logger    *log.Helper
	now       func() time.Time

	mu sync.Mutex
}

// NewCircuitBreaker creates a breaker for the collaborator called name.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, repo CircuitBreakerRepo, m *metrics.Metrics, logger log.Logger) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultCircuitBreakerConfig().Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCircuitBreakerConfig().Cooldown
	}
	return &CircuitBreaker{
		name:      name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		repo:      repo,
		metrics:   m,
		logger:    log.NewHelper(log.With(logger, "module", "biz/circuit_breaker", "circuit", name)),
		now:       time.Now,
	}
}

// SetAuditLogger makes the breaker report its transitions to a.
func (cb *CircuitBreaker) SetAuditLogger(a AuditLogger) {
	cb.audit = a
}

// Name returns the collaborator name the breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Execute runs op unless the circuit is open. The error returned by op is
// returned unchanged after being recorded as a failure.
//
// If the store cannot be read the breaker degrades to pass-through and op runs.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	allowed, err := cb.CanExecute(ctx)
	if err != nil {
		cb.logger.Warnw("msg", "circuit store unavailable, running operation unguarded",
			"event", model.EventCircuitDegraded,
			"error", err)
		allowed = true
	}
	if !allowed {
		return &CircuitOpenError{Name: cb.name}
	}

	if opErr := op(ctx); opErr != nil {
		if recErr := cb.RecordFailure(ctx); recErr != nil {
			cb.logger.Warnw("msg", "failed to record circuit failure",
				"event", model.EventCircuitDegraded,
				"error", recErr)
		}
		return opErr
	}

	if recErr := cb.RecordSuccess(ctx); recErr != nil {
		cb.logger.Warnw("msg", "failed to record circuit success",
			"event", model.EventCircuitDegraded,
			"error", recErr)
	}
	return nil
}

// CanExecute reports whether a call may proceed. An OPEN breaker whose
// cooldown has elapsed since the last failure moves to HALF_OPEN and allows
// the call.
func (cb *CircuitBreaker) CanExecute(ctx context.Context) (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rec, err := cb.load(ctx)
	if err != nil {
		return false, err
	}

	switch rec.State {
	case model.CircuitClosed, model.CircuitHalfOpen:
		return true, nil
	}

	if rec.LastFailureTime != nil && cb.now().Sub(*rec.LastFailureTime) < cb.cooldown {
		return false, nil
	}

	rec.State = model.CircuitHalfOpen
	if err := cb.repo.SaveCircuit(ctx, cb.name, rec); err != nil {
		return false, fmt.Errorf("save circuit %s: %w", cb.name, err)
	}
	cb.logger.Infow("msg", "circuit cooldown elapsed, allowing trial call",
		"event", model.EventCircuitHalfOpen,
		"failure_count", rec.FailureCount)
	cb.metrics.SetCircuitState(cb.name, metrics.CircuitHalfOpen, string(model.CircuitHalfOpen), true)
	return true, nil
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rec, err := cb.load(ctx)
	if err != nil {
		return err
	}

	prev := rec.State
	now := cb.now()
	rec.State = model.CircuitClosed
	rec.FailureCount = 0
	rec.LastSuccessTime = &now

	if err := cb.repo.SaveCircuit(ctx, cb.name, rec); err != nil {
		return fmt.Errorf("save circuit %s: %w", cb.name, err)
	}

	if prev != model.CircuitClosed {
		var openFor time.Duration
		if rec.LastFailureTime != nil {
			openFor = now.Sub(*rec.LastFailureTime)
		}
		cb.logger.Infow("msg", "circuit recovered",
			"event", model.EventCircuitRecovered,
			"from", string(prev),
			"open_for", openFor.String())
		if cb.audit != nil {
			cb.audit.LogCircuitRecovered(ctx, cb.name, prev, openFor)
		}
	}
	cb.metrics.SetCircuitState(cb.name, metrics.CircuitClosed, string(model.CircuitClosed), prev != model.CircuitClosed)
	return nil
}

// RecordFailure counts a failure. A failed HALF_OPEN trial call reopens the breaker
// immediately; otherwise it opens once the count reaches the threshold.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	rec, err := cb.load(ctx)
	if err != nil {
		return err
	}

	prev := rec.State
	now := cb.now()
	rec.FailureCount++
	rec.LastFailureTime = &now

	if prev == model.CircuitHalfOpen || rec.FailureCount >= cb.threshold {
		rec.State = model.CircuitOpen
	}

	if err := cb.repo.SaveCircuit(ctx, cb.name, rec); err != nil {
		return fmt.Errorf("save circuit %s: %w", cb.name, err)
	}

	if rec.State == model.CircuitOpen {
		if prev != model.CircuitOpen {
			cb.logger.Warnw("msg", "circuit breaker tripped",
				"event", model.EventCircuitTripped,
				"from", string(prev),
				"failure_count", rec.FailureCount,
				"threshold", cb.threshold,
				"cooldown", cb.cooldown.String())
			if cb.audit != nil {
				cb.audit.LogCircuitTripped(ctx, cb.name, prev, rec.FailureCount, now)
			}
		}
		cb.metrics.SetCircuitState(cb.name, metrics.CircuitOpen, string(model.CircuitOpen), prev != model.CircuitOpen)
	}
	return nil
}

// Reset forces the breaker back to a fresh CLOSED record.
func (cb *CircuitBreaker) Reset(ctx context.Context) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	prev, err := cb.load(ctx)
	if err != nil {
		return err
	}
	if err := cb.repo.SaveCircuit(ctx, cb.name, model.NewCircuitRecord()); err != nil {
		return fmt.Errorf("reset circuit %s: %w", cb.name, err)
	}
	cb.logger.Infow("msg", "circuit reset",
		"event", model.EventCircuitReset,
		"from", string(prev.State),
		"failure_count", prev.FailureCount)
	if cb.audit != nil {
		cb.audit.LogCircuitReset(ctx, cb.name, prev)
	}
	cb.metrics.SetCircuitState(cb.name, metrics.CircuitClosed, string(model.CircuitClosed), true)
	return nil
}

// State returns the current persisted record without changing it.
func (cb *CircuitBreaker) State(ctx context.Context) (*model.CircuitRecord, error) {
	return cb.load(ctx)
}

func (cb *CircuitBreaker) load(ctx context.Context) (*model.CircuitRecord, error) {
	rec, err := cb.repo.GetCircuit(ctx, cb.name)
	if err != nil {
		return nil, fmt.Errorf("get circuit %s: %w", cb.name, err)
	}
	if rec == nil {
		return model.NewCircuitRecord(), nil
	}
	return rec.Clone(), nil
}
