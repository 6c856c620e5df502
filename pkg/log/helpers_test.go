package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogHelper_TypedMethods(t *testing.T) {
	tests := []struct {
		name     string
		call     func(h *LogHelper)
		logType  string
		logLevel string
	}{
		{"workflow", func(h *LogHelper) { h.Workflow("started") }, "workflow", "info"},
		{"circuit", func(h *LogHelper) { h.Circuit("opened") }, "circuit", "warn"},
		{"retry", func(h *LogHelper) { h.Retry("attempt failed") }, "retry", "warn"},
		{"rate limit", func(h *LogHelper) { h.RateLimit("rejected") }, "rate_limit", "warn"},
		{"provider", func(h *LogHelper) { h.Provider("queried") }, "provider", "info"},
		{"signer", func(h *LogHelper) { h.Signer("signed") }, "signer", "info"},
		{"analyzer", func(h *LogHelper) { h.Analyzer("analyzed") }, "analyzer", "info"},
		{"oracle", func(h *LogHelper) { h.Oracle("mined") }, "oracle", "info"},
		{"database", func(h *LogHelper) { h.Database("query") }, "database", "debug"},
		{"scheduler", func(h *LogHelper) { h.Scheduler("tick") }, "scheduler", "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := NewLogHelper(newBufferedAdapter(&buf))
			tt.call(h)
			out := buf.String()
			assert.Contains(t, out, `"type":"`+tt.logType+`"`)
			assert.Contains(t, out, `"level":"`+tt.logLevel+`"`)
		})
	}
}

func TestLogHelper_StepCompleted(t *testing.T) {
	var buf bytes.Buffer
	h := NewLogHelper(newBufferedAdapter(&buf))

	ctx := WithRequestContext(context.Background(), "req123", "API_Gateway")
	SetExecution(ctx, "exec_1_abcd", "0x01")

	h.StepCompleted(ctx, "signer", "error", 12, "error", "boom")

	out := buf.String()
	assert.Contains(t, out, `"execution_id":"exec_1_abcd"`)
	assert.Contains(t, out, `"step":"signer"`)
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "[exec_1_abcd] step signer error (12ms)")
}

func TestLogHelper_RequestWithContextFlagsSlowRequests(t *testing.T) {
	var buf bytes.Buffer
	h := NewLogHelper(newBufferedAdapter(&buf))

	ctx := WithRequestContext(context.Background(), "req123", "API_Gateway")
	h.RequestWithContext(ctx, "POST", "/v1/query", 200, slowThresholdMs+1)

	out := buf.String()
	assert.Contains(t, out, `"type":"request"`)
	assert.Contains(t, out, `"type":"slow_request"`)
}

func TestRequestContext_Defaults(t *testing.T) {
	assert.Equal(t, "unknown", GetRequestID(context.Background()))
	assert.Equal(t, int64(0), GetElapsedTime(context.Background()))

	ctx := WithRequestContext(context.Background(), GenerateRequestID(), "API_Gateway")
	assert.Len(t, GetRequestID(ctx), 10)

	SetMetadata(ctx, "chains", 2)
	v, ok := GetMetadata(ctx, "chains")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}
