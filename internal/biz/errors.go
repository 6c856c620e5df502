package biz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Error types reported in OrchestratorResult.Error.Type.
const (
	ErrorTypeValidation         = "VALIDATION_ERROR"
	ErrorTypeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrorTypeTimeout            = "TIMEOUT"
	ErrorTypeCircuitBreakerOpen = "CIRCUIT_BREAKER_OPEN"
	ErrorTypeContractRevert     = "CONTRACT_REVERT"
	ErrorTypeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	ErrorTypeExecution          = "EXECUTION_ERROR"
)

// ValidationError lists every problem found in a request or collaborator output.
type ValidationError struct {
	Subject string
	Issues  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Subject, strings.Join(e.Issues, "; "))
}

// InsufficientDataError is returned when too few chains answered a query,
// even though the provider itself did not fail.
type InsufficientDataError struct {
	SuccessRate float64
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("Insufficient data: only %d%% of chains succeeded", int(math.Round(e.SuccessRate*100)))
}

// ContractRevertError is returned when a mined transaction has a failed status.
type ContractRevertError struct {
	Operation string
	TxHash    string
}

func (e *ContractRevertError) Error() string {
	return fmt.Sprintf("%s transaction reverted", e.Operation)
}

// ClassifyError maps the error that aborted a workflow to one of the reported
// error types. Typed errors are matched first. Message matching is a fallback
// for errors raised by third-party clients and is only an approximation.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var (
		rle *RateLimitExceededError
		ve  *ValidationError
		coe *CircuitOpenError
		cre *ContractRevertError
		ide *InsufficientDataError
	)
	switch {
	case errors.As(err, &rle):
		return ErrorTypeRateLimitExceeded
	case errors.As(err, &ve):
		return ErrorTypeValidation
	case errors.As(err, &coe):
		return ErrorTypeCircuitBreakerOpen
	case errors.As(err, &cre):
		return ErrorTypeContractRevert
	case errors.As(err, &ide):
		return ErrorTypeExecution
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "validation"), strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ErrorTypeValidation
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "circuit breaker"):
		return ErrorTypeCircuitBreakerOpen
	case strings.Contains(msg, "revert"):
		return ErrorTypeContractRevert
	case strings.Contains(msg, "insufficient funds"):
		return ErrorTypeInsufficientFunds
	}
	return ErrorTypeExecution
}
