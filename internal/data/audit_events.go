package data

// AuditEventType defines audit event type constants.
// These constants are used for audit logging in circuit_audit_logs table.
type AuditEventType string

const (
	// AuditEventCircuitTripped is logged when a breaker opens
	AuditEventCircuitTripped AuditEventType = "CIRCUIT_TRIPPED"

	// AuditEventCircuitRecovered is logged when a breaker closes after a success
	AuditEventCircuitRecovered AuditEventType = "CIRCUIT_RECOVERED"

	// AuditEventCircuitReset is logged when an operator resets a breaker
	AuditEventCircuitReset AuditEventType = "CIRCUIT_RESET"
)

// String returns the string representation of AuditEventType
func (e AuditEventType) String() string {
	return string(e)
}
