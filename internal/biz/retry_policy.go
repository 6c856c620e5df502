package biz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"slices"
	"strings"
	"time"

	"OracleGate/internal/model"
	"OracleGate/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// Retryable error types recognised by the default retry configuration.
const (
	RetryTypeTimeout            = "TIMEOUT"
	RetryTypeNetwork            = "NETWORK_ERROR"
	RetryTypeRateLimit          = "RATE_LIMIT"
	RetryTypeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// RetryConfig bounds the number of attempts and the backoff between them.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	RetryableTypes []string
}

// DefaultRetryConfig retries twice starting at 500ms, doubling up to 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		RetryableTypes: []string{
			RetryTypeTimeout,
			RetryTypeNetwork,
			RetryTypeRateLimit,
			RetryTypeServiceUnavailable,
		},
	}
}

// RetryableError tags an error with a type the retry policy can match against
// its allow-list without inspecting the message.
type RetryableError struct {
	Type string
	Err  error
}

// NewRetryableError wraps err with a retry type tag.
func NewRetryableError(retryType string, err error) *RetryableError {
	return &RetryableError{Type: retryType, Err: err}
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// transientMarkers are matched against lower-cased error messages when no
// typed classification applies.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"econnrefused",
	"connection refused",
	"econnreset",
	"connection reset",
	"network",
	"503",
	"429",
}

// RetryPolicy retries an operation with exponential backoff and jitter. When a
// breaker is attached every attempt goes through it, and an open circuit stops
// the loop at once.
type RetryPolicy struct {
	cfg     RetryConfig
	breaker *CircuitBreaker
	metrics *metrics.Metrics
	logger  *log.Helper
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func() float64
}

// NewRetryPolicy creates a retry policy. breaker may be nil.
func NewRetryPolicy(cfg RetryConfig, breaker *CircuitBreaker, m *metrics.Metrics, logger log.Logger) *RetryPolicy {
	def := DefaultRetryConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.RetryableTypes == nil {
		cfg.RetryableTypes = def.RetryableTypes
	}
	return &RetryPolicy{
		cfg:     cfg,
		breaker: breaker,
		metrics: m,
		logger:  log.NewHelper(log.With(logger, "module", "biz/retry_policy")),
		sleep:   sleepWithContext,
		jitter:  rand.Float64,
	}
}

// Breaker returns the attached breaker, or nil.
func (p *RetryPolicy) Breaker() *CircuitBreaker {
	return p.breaker
}

// Execute runs op up to MaxRetries+1 times. The error of the last attempt is
// returned unmodified.
func (p *RetryPolicy) Execute(ctx context.Context, operation string, op func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		lastErr = p.attempt(ctx, op)
		if lastErr == nil {
			return nil
		}

		if IsCircuitOpen(lastErr) {
			return lastErr
		}
		if !p.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.cfg.MaxRetries {
			p.logger.Warnw("msg", "retries exhausted",
				"event", model.EventRetryExhausted,
				"operation", operation,
				"attempts", attempt+1,
				"error", lastErr)
			return lastErr
		}

		delay := p.CalculateDelay(attempt)
		p.logger.Warnw("msg", "attempt failed, retrying",
			"event", model.EventRetryAttempt,
			"operation", operation,
			"attempt", attempt+1,
			"max_retries", p.cfg.MaxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", lastErr)
		p.metrics.IncRetry(operation)

		if err := p.sleep(ctx, delay); err != nil {
			return lastErr
		}
	}

	return lastErr
}

func (p *RetryPolicy) attempt(ctx context.Context, op func(context.Context) error) error {
	if p.breaker != nil {
		return p.breaker.Execute(ctx, op)
	}
	return op(ctx)
}

// CalculateDelay returns the jittered backoff before retry number attempt+1:
// a uniform value in [base/2, base] where
// base = min(InitialDelay * Multiplier^attempt, MaxDelay).
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	base := p.baseDelay(attempt)
	half := base / 2
	return half + time.Duration(p.jitter()*float64(base-half))
}

func (p *RetryPolicy) baseDelay(attempt int) time.Duration {
	d := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.Multiplier, float64(attempt))
	if d > float64(p.cfg.MaxDelay) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.cfg.MaxDelay
	}
	return time.Duration(d)
}

// IsRetryable classifies err. Typed signals are checked first; the message
// heuristics are an approximation for errors from libraries that carry no type.
func (p *RetryPolicy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var (
		coe *CircuitOpenError
		rle *RateLimitExceededError
		ve  *ValidationError
		cre *ContractRevertError
		ide *InsufficientDataError
	)
	if errors.As(err, &coe) || errors.As(err, &rle) || errors.As(err, &ve) ||
		errors.As(err, &cre) || errors.As(err, &ide) || errors.Is(err, context.Canceled) {
		return false
	}

	// A typed error is decided by the allow-list alone; its message is not
	// consulted.
	var re *RetryableError
	if errors.As(err, &re) {
		return slices.Contains(p.cfg.RetryableTypes, re.Type)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return slices.Contains(p.cfg.RetryableTypes, RetryTypeTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return slices.Contains(p.cfg.RetryableTypes, RetryTypeTimeout)
		}
		return slices.Contains(p.cfg.RetryableTypes, RetryTypeNetwork)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// sleepWithContext waits for d or until ctx is done, whichever comes first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
