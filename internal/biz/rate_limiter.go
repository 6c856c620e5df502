package biz

import (
	"context"
	"fmt"
	"time"

	"OracleGate/internal/model"
	"OracleGate/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// DefaultRateLimitWindow allows one accepted request per key per hour.
const DefaultRateLimitWindow = time.Hour

// RateLimiterUseCase admits at most one request per key per window.
type RateLimiterUseCase struct {
	repo    RateLimitRepo
	window  time.Duration
	metrics *metrics.Metrics
	logger  *log.Helper
	now     func() time.Time
}

// NewRateLimiterUseCase creates a new rate limiter use case.
func NewRateLimiterUseCase(repo RateLimitRepo, window time.Duration, m *metrics.Metrics, logger log.Logger) *RateLimiterUseCase {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RateLimiterUseCase{
		repo:    repo,
		window:  window,
		metrics: m,
		logger:  log.NewHelper(log.With(logger, "module", "biz/rate_limiter")),
		now:     time.Now,
	}
}

// RateLimitExceededError carries the limited key and the time left until it is admitted again.
type RateLimitExceededError struct {
	Key       string
	Remaining time.Duration
}

// Error implements the error interface.
func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for key: %s. Retry after %ds",
		e.Key, int64((e.Remaining+time.Second-1)/time.Second))
}

// RemainingMs returns the wait in milliseconds.
func (e *RateLimitExceededError) RemainingMs() int64 {
	return e.Remaining.Milliseconds()
}

// Window returns the configured window.
func (uc *RateLimiterUseCase) Window() time.Duration {
	return uc.window
}

// IsAllowed reports whether key has no accepted request within the window.
func (uc *RateLimiterUseCase) IsAllowed(ctx context.Context, key string) (bool, error) {
	remaining, err := uc.Remaining(ctx, key)
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}

// Consume takes the slot for key or fails with *RateLimitExceededError.
// A store failure rejects the request: admitting it could break the
// one-per-window guarantee across instances.
func (uc *RateLimiterUseCase) Consume(ctx context.Context, key string) error {
	now := uc.now()

	acquired, last, err := uc.repo.TryAcquire(ctx, key, now, uc.window)
	if err != nil {
		uc.logger.Errorw("msg", "rate limit store failed, rejecting request",
			"key", key,
			"error", err)
		return fmt.Errorf("rate limit check failed for key %s: %w", key, err)
	}

	if !acquired {
		remaining := uc.remainingFrom(last, now)
		uc.logger.Warnw("msg", "rate limit exceeded",
			"event", model.EventRateLimitExceeded,
			"key", key,
			"remaining_ms", remaining.Milliseconds())
		uc.metrics.IncRateLimitRejected()
		return &RateLimitExceededError{Key: key, Remaining: remaining}
	}

	uc.logger.Debugw("msg", "rate limit slot consumed",
		"event", model.EventRateLimitOK,
		"key", key)
	return nil
}

// Remaining returns how long key must wait, or 0 if it is allowed now. It never mutates state.
func (uc *RateLimiterUseCase) Remaining(ctx context.Context, key string) (time.Duration, error) {
	last, ok, err := uc.repo.GetLastRequest(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("get last request for key %s: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	return uc.remainingFrom(last, uc.now()), nil
}

// RemainingMs is Remaining in milliseconds.
func (uc *RateLimiterUseCase) RemainingMs(ctx context.Context, key string) (int64, error) {
	d, err := uc.Remaining(ctx, key)
	return d.Milliseconds(), err
}

// PruneExpired removes records whose window has elapsed.
func (uc *RateLimiterUseCase) PruneExpired(ctx context.Context) (int64, error) {
	return uc.repo.PruneBefore(ctx, uc.now().Add(-uc.window))
}

func (uc *RateLimiterUseCase) remainingFrom(last, now time.Time) time.Duration {
	elapsed := now.Sub(last)
	if elapsed >= uc.window {
		return 0
	}
	if elapsed < 0 {
		return uc.window
	}
	return uc.window - elapsed
}
