package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper extends the Kratos log.Helper with typed methods. Each method adds
// a "type" field that EmojiConsoleEncoder maps to an emoji.
type LogHelper struct {
	*log.Helper
}

func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

func (h *LogHelper) typed(lvl log.Level, logType, msg string, kvs []interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", logType)
	switch lvl {
	case log.LevelDebug:
		h.Debugw(allKvs...)
	case log.LevelWarn:
		h.Warnw(allKvs...)
	case log.LevelError:
		h.Errorw(allKvs...)
	default:
		h.Infow(allKvs...)
	}
}

// Workflow logs workflow lifecycle events (🧭)
func (h *LogHelper) Workflow(msg string, kvs ...interface{}) {
	h.typed(log.LevelInfo, "workflow", msg, kvs)
}

// Circuit logs circuit breaker transitions (🔌)
func (h *LogHelper) Circuit(msg string, kvs ...interface{}) {
	h.typed(log.LevelWarn, "circuit", msg, kvs)
}

// Retry logs retry attempts (🔁)
func (h *LogHelper) Retry(msg string, kvs ...interface{}) {
	h.typed(log.LevelWarn, "retry", msg, kvs)
}

// RateLimit logs rate limit rejections (🚦)
func (h *LogHelper) RateLimit(msg string, kvs ...interface{}) {
	h.typed(log.LevelWarn, "rate_limit", msg, kvs)
}

// Provider logs data provider activity (🛰️)
func (h *LogHelper) Provider(msg string, kvs ...interface{}) {
	h.typed(log.LevelInfo, "provider", msg, kvs)
}

// Signer logs signing activity (✍️)
func (h *LogHelper) Signer(msg string, kvs ...interface{}) {
	h.typed(log.LevelInfo, "signer", msg, kvs)
}

// Analyzer logs analysis activity (🧠)
func (h *LogHelper) Analyzer(msg string, kvs ...interface{}) {
	h.typed(log.LevelInfo, "analyzer", msg, kvs)
}

// Oracle logs on-chain transactions (⛓️)
func (h *LogHelper) Oracle(msg string, kvs ...interface{}) {
	h.typed(log.LevelInfo, "oracle", msg, kvs)
}

// Success logs successful operations (✅)
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.typed(log.LevelInfo, "success", msg, kvs)
}

// Database logs database operations (💾)
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	h.typed(log.LevelDebug, "database", msg, kvs)
}

// Redis logs Redis operations (📦)
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	h.typed(log.LevelDebug, "redis", msg, kvs)
}

// Scheduler logs scheduled jobs (🎯)
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.typed(log.LevelInfo, "scheduler", msg, kvs)
}

// Startup logs startup events (🚀)
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.typed(log.LevelInfo, "startup", msg, kvs)
}

// Security logs security relevant events (🔒)
func (h *LogHelper) Security(msg string, kvs ...interface{}) {
	h.typed(log.LevelWarn, "security", msg, kvs)
}

// StepCompleted logs the outcome of one workflow step, tagged with the
// execution id from ctx.
func (h *LogHelper) StepCompleted(ctx context.Context, step, status string, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)
	msg := fmt.Sprintf("[%s] step %s %s (%dms)", reqCtx.ExecutionID, step, status, durationMs)
	allKvs := append([]interface{}{
		"request_id", reqCtx.RequestID,
		"execution_id", reqCtx.ExecutionID,
		"step", step,
		"status", status,
		"duration_ms", durationMs,
	}, kvs...)
	lvl := log.LevelInfo
	if status == "error" {
		lvl = log.LevelWarn
	}
	h.typed(lvl, "step", msg, allKvs)
}

// SlowRequest logs a request that exceeded threshold milliseconds (🐌)
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		reqCtx.RequestID, method, url, duration, threshold)

	allKvs := append([]interface{}{
		"request_id", reqCtx.RequestID,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
	}, kvs...)
	h.typed(log.LevelWarn, "slow_request", msg, allKvs)
}

// RequestWithContext logs an HTTP request and flags it when it took longer
// than slowThresholdMs.
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%dms) | RequestID: %s",
		method, url, status, durationMs, reqCtx.RequestID)

	allKvs := append([]interface{}{
		"request_id", reqCtx.RequestID,
		"source_module", reqCtx.SourceModule,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	}, kvs...)
	h.typed(log.LevelInfo, "request", msg, allKvs)

	if durationMs > slowThresholdMs {
		h.SlowRequest(ctx, method, url, durationMs, slowThresholdMs)
	}
}

// Workflows routinely take tens of seconds, so the slow threshold is far
// above a typical API gateway's.
const slowThresholdMs = 60_000
