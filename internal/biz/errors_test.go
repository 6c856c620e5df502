package biz

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"rate limit", &RateLimitExceededError{Key: "0xkey", Remaining: time.Minute}, ErrorTypeRateLimitExceeded},
		{"wrapped rate limit", fmt.Errorf("step: %w", &RateLimitExceededError{Key: "0xkey"}), ErrorTypeRateLimitExceeded},
		{"validation", &ValidationError{Subject: "query request", Issues: []string{"key: required"}}, ErrorTypeValidation},
		{"circuit open", &CircuitOpenError{Name: BreakerLit}, ErrorTypeCircuitBreakerOpen},
		{"revert", &ContractRevertError{Operation: "Oracle update"}, ErrorTypeContractRevert},
		{"insufficient data", &InsufficientDataError{SuccessRate: 0.25}, ErrorTypeExecution},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), ErrorTypeTimeout},
		{"message invalid", errors.New("invalid signature format: 0x12"), ErrorTypeValidation},
		{"message timeout", errors.New("request timed out"), ErrorTypeTimeout},
		{"message circuit", errors.New("Circuit breaker tripped upstream"), ErrorTypeCircuitBreakerOpen},
		{"message revert", errors.New("execution reverted: not owner"), ErrorTypeContractRevert},
		{"message funds", errors.New("insufficient funds for gas * price + value"), ErrorTypeInsufficientFunds},
		{"anything else", errors.New("boom"), ErrorTypeExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "Insufficient data: only 33% of chains succeeded", (&InsufficientDataError{SuccessRate: 1.0 / 3.0}).Error())
	assert.Equal(t, "CCIP sendResponse transaction reverted", (&ContractRevertError{Operation: "CCIP sendResponse"}).Error())
	assert.Equal(t, "query request validation failed: key: required; chains: required",
		(&ValidationError{Subject: "query request", Issues: []string{"key: required", "chains: required"}}).Error())
}
