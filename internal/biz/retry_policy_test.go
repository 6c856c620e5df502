package biz

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	p := fastRetry(2, nil)
	attempts := 0

	err := p.Execute(context.Background(), "goldsky_base", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("request failed: connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_ExhaustedReturnsLastError(t *testing.T) {
	p := fastRetry(2, nil)
	attempts := 0

	err := p.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return fmt.Errorf("http 503: attempt %d", attempts)
	})
	require.Error(t, err)
	assert.Equal(t, "http 503: attempt 3", err.Error())
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_NonRetryableAttemptedOnce(t *testing.T) {
	p := fastRetry(2, nil)
	attempts := 0
	want := errors.New("schema mismatch")

	err := p.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return want
	})
	assert.Same(t, want, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicy_CircuitOpenAttemptedOnce(t *testing.T) {
	repo := newMemoryCircuitRepo()
	cb, _ := newTestBreaker(repo)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failOp)
	}

	p := fastRetry(5, cb)
	calls := 0
	err := p.Execute(ctx, "op", func(context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, 0, calls)
}

func TestRetryPolicy_TripsBreakerMidLoop(t *testing.T) {
	repo := newMemoryCircuitRepo()
	cb, _ := newTestBreaker(repo)

	p := fastRetry(5, cb)
	calls := 0
	err := p.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return errors.New("timeout")
	})
	require.Error(t, err)
	assert.True(t, IsCircuitOpen(err))
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_IsRetryable(t *testing.T) {
	p := NewRetryPolicy(DefaultRetryConfig(), nil, nil, testLogger)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout message", errors.New("request timed out"), true},
		{"econnreset", errors.New("read: ECONNRESET"), true},
		{"network", errors.New("network unreachable"), true},
		{"429", errors.New("http 429: slow down"), true},
		{"503", errors.New("http 503: overloaded"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"typed allowed", NewRetryableError(RetryTypeRateLimit, errors.New("x")), true},
		{"typed not allowed", NewRetryableError("AUTH", errors.New("timeout")), false},
		{"circuit open", &CircuitOpenError{Name: "x"}, false},
		{"validation", &ValidationError{Subject: "request", Issues: []string{"timeout"}}, false},
		{"plain", errors.New("bad request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsRetryable(tt.err))
		})
	}
}

func TestRetryPolicy_CalculateDelayBounds(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	for attempt, base := range []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	} {
		p := NewRetryPolicy(cfg, nil, nil, testLogger)

		p.jitter = func() float64 { return 0 }
		assert.Equal(t, base/2, p.CalculateDelay(attempt), "attempt %d lower bound", attempt)

		p.jitter = func() float64 { return 0.999999 }
		d := p.CalculateDelay(attempt)
		assert.LessOrEqual(t, d, base)
		assert.Greater(t, d, base/2)

		p = NewRetryPolicy(cfg, nil, nil, testLogger)
		for i := 0; i < 50; i++ {
			d := p.CalculateDelay(attempt)
			assert.GreaterOrEqual(t, d, base/2)
			assert.LessOrEqual(t, d, base)
		}
	}
}

func TestRetryPolicy_SleepInterruptedByContext(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour
	p := NewRetryPolicy(cfg, nil, nil, testLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	start := time.Now()
	err := p.Execute(ctx, "op", func(context.Context) error {
		attempts++
		return errors.New("timeout")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRetryPolicy_ZeroRetries(t *testing.T) {
	p := fastRetry(0, nil)
	attempts := 0
	_ = p.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errors.New("timeout")
	})
	assert.Equal(t, 1, attempts)
}
