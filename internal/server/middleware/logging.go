package middleware

import (
	"context"
	"strings"
	"time"

	pkglog "OracleGate/pkg/log"
	"OracleGate/pkg/metrics"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// SourceModuleHeader names the calling module, e.g. CCIP_Receiver.
const SourceModuleHeader = "X-Source-Module"

// Logging returns a middleware that logs every request with its duration and
// status. It injects the request context (request id, source module) so that
// every later log line carries them, and records HTTP metrics when m is set.
//
// Log output example:
//
//	🟢 POST /v1/query - 200 (542ms) | RequestID: mgrn0zfqda
//	🐌 [mgrn0zfqda] Slow request detected | POST /v1/query | 73438ms
func Logging(logger *pkglog.LogHelper, m *metrics.Metrics) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method       string
				path         string
				operation    string
				ip           string
				userAgent    string
				requestID    string
				sourceModule string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				operation = tr.Operation()
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}
					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")
					requestID = httpReq.Header.Get("X-Request-ID")
					sourceModule = httpReq.Header.Get(SourceModuleHeader)
				}
			}
			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, sourceModule)

			reply, err := handler(ctx, req)

			elapsed := time.Since(startTime)
			status := extractHTTPStatus(err)

			logger.RequestWithContext(ctx, method, path, status, elapsed.Milliseconds(),
				"ip", ip,
				"user_agent", userAgent,
				"operation", operation,
			)
			m.ObserveHTTP(operation, status, elapsed.Seconds())

			return reply, err
		}
	}
}

// extractClientIP returns the caller address.
// Priority: X-Real-IP > X-Forwarded-For > RemoteAddr
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	return req.RemoteAddr
}

// extractHTTPStatus maps a handler error to the status code kratos will write.
func extractHTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	return int(kerrors.FromError(err).Code)
}
