package biz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"OracleGate/internal/conf"
	"OracleGate/internal/model"
	"OracleGate/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// Breaker names, one per external collaborator.
const (
	BreakerGoldsky = "goldsky"
	BreakerAlchemy = "alchemy"
	BreakerLit     = "lit_protocol"
	BreakerClaude  = "claude"
)

// Per-attempt timeouts used when the collaborator config leaves them unset.
const (
	defaultCallTimeout     = 10 * time.Second
	defaultSignerTimeout   = 5 * time.Second
	defaultAnalyzerTimeout = 60 * time.Second
)

// ErrUnknownCircuit is returned for a breaker name that is not registered.
var ErrUnknownCircuit = errors.New("unknown circuit")

// CircuitBreakerConfigFrom maps resilience config onto breaker settings.
func CircuitBreakerConfigFrom(c *conf.Resilience) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if c == nil || c.CircuitBreaker == nil {
		return cfg
	}
	if c.CircuitBreaker.Threshold > 0 {
		cfg.Threshold = int(c.CircuitBreaker.Threshold)
	}
	if d := c.CircuitBreaker.Cooldown.AsDuration(); d > 0 {
		cfg.Cooldown = d
	}
	return cfg
}

// RetryConfigFrom maps resilience config onto retry settings.
func RetryConfigFrom(c *conf.Resilience) RetryConfig {
	cfg := DefaultRetryConfig()
	if c == nil || c.Retry == nil {
		return cfg
	}
	cfg.MaxRetries = int(c.Retry.MaxRetries)
	if d := c.Retry.InitialDelay.AsDuration(); d > 0 {
		cfg.InitialDelay = d
	}
	if d := c.Retry.MaxDelay.AsDuration(); d > 0 {
		cfg.MaxDelay = d
	}
	if c.Retry.Multiplier >= 1 {
		cfg.Multiplier = c.Retry.Multiplier
	}
	return cfg
}

// CircuitBreakerUsecase owns the breaker of every collaborator and serves the
// administrative read and reset operations.
type CircuitBreakerUsecase struct {
	breakers map[string]*CircuitBreaker
	repo     CircuitBreakerRepo
	logger   *log.Helper
}

// NewCircuitBreakerUsecase creates one breaker per collaborator, all sharing
// the same store and settings. audit may be nil.
func NewCircuitBreakerUsecase(c *conf.Resilience, repo CircuitBreakerRepo, audit AuditLogger, m *metrics.Metrics, logger log.Logger) *CircuitBreakerUsecase {
	cfg := CircuitBreakerConfigFrom(c)
	uc := &CircuitBreakerUsecase{
		breakers: make(map[string]*CircuitBreaker),
		repo:     repo,
		logger:   log.NewHelper(log.With(logger, "module", "biz/circuit_usecase")),
	}
	for _, name := range []string{BreakerGoldsky, BreakerAlchemy, BreakerLit, BreakerClaude} {
		cb := NewCircuitBreaker(name, cfg, repo, m, logger)
		if audit != nil {
			cb.SetAuditLogger(audit)
		}
		uc.breakers[name] = cb
	}
	return uc
}

// Get returns the named breaker, or nil.
func (uc *CircuitBreakerUsecase) Get(name string) *CircuitBreaker {
	return uc.breakers[name]
}

// Names returns the registered breaker names in sorted order.
func (uc *CircuitBreakerUsecase) Names() []string {
	names := make([]string, 0, len(uc.breakers))
	for name := range uc.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// State returns the persisted record of the named breaker.
func (uc *CircuitBreakerUsecase) State(ctx context.Context, name string) (*model.CircuitRecord, error) {
	cb, ok := uc.breakers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCircuit, name)
	}
	return cb.State(ctx)
}

// Reset forces the named breaker back to CLOSED.
func (uc *CircuitBreakerUsecase) Reset(ctx context.Context, name string) error {
	cb, ok := uc.breakers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCircuit, name)
	}
	return cb.Reset(ctx)
}

// Snapshot reads every registered breaker in one store call. Breakers that
// were never saved are reported as fresh CLOSED records; records of names that
// are not registered are ignored. A store error yields an empty snapshot.
func (uc *CircuitBreakerUsecase) Snapshot(ctx context.Context) map[string]*model.CircuitRecord {
	out := make(map[string]*model.CircuitRecord, len(uc.breakers))
	stored, err := uc.repo.ListCircuits(ctx)
	if err != nil {
		uc.logger.Warnw("msg", "failed to list circuits for snapshot",
			"event", model.EventCircuitDegraded,
			"error", err)
		return out
	}
	for _, name := range uc.Names() {
		if rec := stored[name]; rec != nil {
			out[name] = rec
			continue
		}
		out[name] = model.NewCircuitRecord()
	}
	return out
}
