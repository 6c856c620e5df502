package biz

import (
	"context"
	"time"

	"OracleGate/internal/model"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	AuditEventCircuitTripped   AuditEventType = "CIRCUIT_TRIPPED"
	AuditEventCircuitRecovered AuditEventType = "CIRCUIT_RECOVERED"
	AuditEventCircuitReset     AuditEventType = "CIRCUIT_RESET"
)

// AuditLogger records breaker transitions. Implementations must not block the
// caller; a dropped audit event never fails the guarded call.
type AuditLogger interface {
	// LogCircuitTripped logs a breaker opening
	LogCircuitTripped(ctx context.Context, circuit string, from model.CircuitState, failureCount int, trippedAt time.Time)

	// LogCircuitRecovered logs a breaker closing after a successful call
	LogCircuitRecovered(ctx context.Context, circuit string, from model.CircuitState, openFor time.Duration)

	// LogCircuitReset logs a manual reset through the admin API
	LogCircuitReset(ctx context.Context, circuit string, previous *model.CircuitRecord)
}
