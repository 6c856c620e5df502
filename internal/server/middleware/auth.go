// Package middleware provides HTTP middleware for request logging and admin authentication.
package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	pkglog "OracleGate/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// ReasonUnauthorized is returned when an admin call carries no valid token.
const ReasonUnauthorized = "UNAUTHORIZED"

// AdminAuth rejects requests whose bearer token (or X-Admin-Token header)
// does not match token. An empty token disables the check.
//
// Log output example:
//
//	🔒 Rejected admin call /oraclegate.v1.Oracle/ResetCircuit with token: [masked] (sk-12345***)
func AdminAuth(token string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if token == "" {
				return handler(ctx, req)
			}

			var (
				presented string
				operation string
				userAgent string
			)
			if tr, ok := transport.FromServerContext(ctx); ok {
				operation = tr.Operation()
				if ht, ok := tr.(http.Transporter); ok {
					r := ht.Request()
					if authHeader := r.Header.Get("Authorization"); authHeader != "" {
						presented = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
					}
					if presented == "" {
						presented = r.Header.Get("X-Admin-Token")
					}
					userAgent = r.Header.Get("User-Agent")
				}
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				masked := maskToken(presented)
				logger.Security("Rejected admin call "+operation+" with token: [masked] ("+masked+")",
					"operation", operation,
					"token_masked", masked,
					"user_agent", userAgent,
				)
				return nil, kerrors.Unauthorized(ReasonUnauthorized, "admin token required")
			}

			pkglog.SetMetadata(ctx, "admin", true)
			return handler(ctx, req)
		}
	}
}

// maskToken shows only the first 8 characters.
// Example: "sk-1234567890abcdef" -> "sk-12345***"
func maskToken(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "***"
}
