package biz

import (
	"context"
	"time"
)

// RateLimitRepo stores the last accepted request time per key.
type RateLimitRepo interface {
	// TryAcquire records now as the last request time for key if no request
	// was accepted within window. The check and the write are atomic per key.
	// When the slot is taken it returns false and the stored timestamp.
	TryAcquire(ctx context.Context, key string, now time.Time, window time.Duration) (acquired bool, last time.Time, err error)

	// GetLastRequest returns the last accepted request time; ok is false for unknown keys.
	GetLastRequest(ctx context.Context, key string) (last time.Time, ok bool, err error)

	// PruneBefore deletes records older than cutoff and returns how many were removed.
	// Stores that expire records on their own return 0.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
