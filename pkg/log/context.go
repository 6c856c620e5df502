package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type contextKey string

const requestContextKey contextKey = "oraclegate_request_context"

// RequestContext carries request tracing fields through a workflow execution.
type RequestContext struct {
	RequestID    string
	ExecutionID  string
	MessageID    string
	SourceModule string
	StartTime    time.Time
	Metadata     map[string]interface{}
}

var (
	randSource  = rand.NewSource(time.Now().UnixNano())
	randMutex   sync.Mutex
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID returns a 10 character base36 id, e.g. mgrn0zfqda.
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext attaches a new RequestContext to ctx.
func WithRequestContext(ctx context.Context, requestID, sourceModule string) context.Context {
	reqCtx := &RequestContext{
		RequestID:    requestID,
		SourceModule: sourceModule,
		StartTime:    time.Now(),
		Metadata:     make(map[string]interface{}),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext returns the RequestContext stored in ctx, or an empty one
// with RequestID "unknown".
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
			return reqCtx
		}
	}

	return &RequestContext{
		RequestID: "unknown",
		Metadata:  make(map[string]interface{}),
	}
}

func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// SetExecution records the workflow execution id and message id on the request context.
func SetExecution(ctx context.Context, executionID, messageID string) {
	reqCtx := GetRequestContext(ctx)
	reqCtx.ExecutionID = executionID
	reqCtx.MessageID = messageID
}

func GetExecutionID(ctx context.Context) string {
	return GetRequestContext(ctx).ExecutionID
}

func SetMetadata(ctx context.Context, key string, value interface{}) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		reqCtx.Metadata = make(map[string]interface{})
	}
	reqCtx.Metadata[key] = value
}

func GetMetadata(ctx context.Context, key string) (interface{}, bool) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		return nil, false
	}
	value, ok := reqCtx.Metadata[key]
	return value, ok
}

// GetElapsedTime returns milliseconds since the request context was created.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
