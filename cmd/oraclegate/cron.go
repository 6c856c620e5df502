package main

import (
	"context"
	"time"

	"OracleGate/internal/biz"
	"OracleGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// Maintenance schedules, in cron format with seconds.
const (
	// every 10 minutes
	pruneSchedule = "0 */10 * * * *"
	// every minute
	snapshotSchedule = "30 * * * * *"
)

// newMaintenance starts the maintenance jobs:
//   - pruning rate-limit records whose window has elapsed
//   - logging every breaker that is not CLOSED
func newMaintenance(limiter *biz.RateLimiterUseCase, breakers *biz.CircuitBreakerUsecase, logger log.Logger) (*cron.Cron, func(), error) {
	helper := log.NewHelper(log.With(logger, "module", "cron/maintenance"))

	c := cron.New(cron.WithSeconds())

	if _, err := c.AddFunc(pruneSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		pruneRateLimits(ctx, limiter, helper)
	}); err != nil {
		return nil, nil, err
	}

	if _, err := c.AddFunc(snapshotSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logCircuitSnapshot(ctx, breakers, helper)
	}); err != nil {
		return nil, nil, err
	}

	c.Start()
	helper.Infow("msg", "maintenance cron started",
		"prune_schedule", pruneSchedule,
		"snapshot_schedule", snapshotSchedule)

	return c, func() {
		<-c.Stop().Done()
		helper.Info("maintenance cron stopped")
	}, nil
}

func pruneRateLimits(ctx context.Context, limiter *biz.RateLimiterUseCase, helper *log.Helper) int64 {
	n, err := limiter.PruneExpired(ctx)
	if err != nil {
		helper.Errorw("msg", "rate limit pruning failed", "error", err)
		return 0
	}
	if n > 0 {
		helper.Infow("msg", "pruned expired rate limit records", "count", n)
	}
	return n
}

// logCircuitSnapshot returns the names of the breakers that are not CLOSED.
func logCircuitSnapshot(ctx context.Context, breakers *biz.CircuitBreakerUsecase, helper *log.Helper) []string {
	var degraded []string
	for name, rec := range breakers.Snapshot(ctx) {
		if rec.State == model.CircuitClosed {
			continue
		}
		degraded = append(degraded, name)
		helper.Warnw("msg", "circuit not closed",
			"circuit", name,
			"state", rec.State,
			"failure_count", rec.FailureCount,
			"last_failure_time", rec.LastFailureTime)
	}
	return degraded
}
