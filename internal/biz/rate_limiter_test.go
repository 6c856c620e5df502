package biz

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRateLimitRepo is a mock implementation of RateLimitRepo for testing.
type MockRateLimitRepo struct {
	mock.Mock
}

func (m *MockRateLimitRepo) TryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, time.Time, error) {
	args := m.Called(ctx, key, now, window)
	return args.Bool(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockRateLimitRepo) GetLastRequest(ctx context.Context, key string) (time.Time, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

func (m *MockRateLimitRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

var limiterNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// Helper function to create a test RateLimiterUseCase with a fixed clock
func newTestRateLimiter(repo RateLimitRepo) *RateLimiterUseCase {
	logger := log.NewStdLogger(os.Stdout)
	uc := NewRateLimiterUseCase(repo, time.Hour, nil, logger)
	uc.now = func() time.Time { return limiterNow }
	return uc
}

func TestConsume_Acquired(t *testing.T) {
	mockRepo := new(MockRateLimitRepo)
	uc := newTestRateLimiter(mockRepo)
	ctx := context.Background()

	mockRepo.On("TryAcquire", ctx, "0xkey", limiterNow, time.Hour).Return(true, limiterNow, nil)

	assert.NoError(t, uc.Consume(ctx, "0xkey"))
	mockRepo.AssertExpectations(t)
}

func TestConsume_Exceeded(t *testing.T) {
	mockRepo := new(MockRateLimitRepo)
	uc := newTestRateLimiter(mockRepo)
	ctx := context.Background()

	last := limiterNow.Add(-20 * time.Minute)
	mockRepo.On("TryAcquire", ctx, "0xkey", limiterNow, time.Hour).Return(false, last, nil)

	err := uc.Consume(ctx, "0xkey")
	require.Error(t, err)

	var rle *RateLimitExceededError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "0xkey", rle.Key)
	assert.Equal(t, 40*time.Minute, rle.Remaining)
	assert.Equal(t, int64(2_400_000), rle.RemainingMs())
	assert.Equal(t, "rate limit exceeded for key: 0xkey. Retry after 2400s", err.Error())
	assert.Equal(t, ErrorTypeRateLimitExceeded, ClassifyError(err))
}

func TestConsume_StoreErrorRejects(t *testing.T) {
	mockRepo := new(MockRateLimitRepo)
	uc := newTestRateLimiter(mockRepo)
	ctx := context.Background()

	storeErr := errors.New("redis: connection refused")
	mockRepo.On("TryAcquire", ctx, "0xkey", limiterNow, time.Hour).Return(false, time.Time{}, storeErr)

	err := uc.Consume(ctx, "0xkey")
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)

	var rle *RateLimitExceededError
	assert.False(t, errors.As(err, &rle))
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		name     string
		last     time.Time
		ok       bool
		expected time.Duration
	}{
		{"unknown key", time.Time{}, false, 0},
		{"within window", limiterNow.Add(-15 * time.Minute), true, 45 * time.Minute},
		{"window elapsed", limiterNow.Add(-time.Hour), true, 0},
		{"clock skew", limiterNow.Add(time.Minute), true, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRateLimitRepo)
			uc := newTestRateLimiter(mockRepo)
			ctx := context.Background()
			mockRepo.On("GetLastRequest", ctx, "0xkey").Return(tt.last, tt.ok, nil)

			remaining, err := uc.Remaining(ctx, "0xkey")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, remaining)

			allowed, err := uc.IsAllowed(ctx, "0xkey")
			require.NoError(t, err)
			assert.Equal(t, tt.expected == 0, allowed)

			// Reads never acquire.
			mockRepo.AssertNotCalled(t, "TryAcquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestRemaining_StoreError(t *testing.T) {
	mockRepo := new(MockRateLimitRepo)
	uc := newTestRateLimiter(mockRepo)
	ctx := context.Background()
	mockRepo.On("GetLastRequest", ctx, "0xkey").Return(time.Time{}, false, errors.New("boom"))

	_, err := uc.RemainingMs(ctx, "0xkey")
	assert.Error(t, err)
}

func TestPruneExpired(t *testing.T) {
	mockRepo := new(MockRateLimitRepo)
	uc := newTestRateLimiter(mockRepo)
	ctx := context.Background()
	mockRepo.On("PruneBefore", ctx, limiterNow.Add(-time.Hour)).Return(int64(3), nil)

	n, err := uc.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestNewRateLimiterUseCase_DefaultWindow(t *testing.T) {
	uc := NewRateLimiterUseCase(new(MockRateLimitRepo), 0, nil, log.DefaultLogger)
	assert.Equal(t, DefaultRateLimitWindow, uc.Window())
}

// memoryRateRepo is a minimal in-process RateLimitRepo for workflow tests.
type memoryRateRepo struct {
	last map[string]time.Time
}

func newMemoryRateRepo() *memoryRateRepo {
	return &memoryRateRepo{last: map[string]time.Time{}}
}

func (r *memoryRateRepo) TryAcquire(_ context.Context, key string, now time.Time, window time.Duration) (bool, time.Time, error) {
	if last, ok := r.last[key]; ok && now.Sub(last) < window {
		return false, last, nil
	}
	r.last[key] = now
	return true, now, nil
}

func (r *memoryRateRepo) GetLastRequest(_ context.Context, key string) (time.Time, bool, error) {
	last, ok := r.last[key]
	return last, ok, nil
}

func (r *memoryRateRepo) PruneBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestConsume_SecondCallWithinWindowRejected(t *testing.T) {
	uc := newTestRateLimiter(newMemoryRateRepo())
	ctx := context.Background()

	require.NoError(t, uc.Consume(ctx, "0xkey"))
	err := uc.Consume(ctx, "0xkey")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeRateLimitExceeded, ClassifyError(err))

	require.NoError(t, uc.Consume(ctx, "0xother"))

	uc.now = func() time.Time { return limiterNow.Add(time.Hour) }
	assert.NoError(t, uc.Consume(ctx, "0xkey"))
}
