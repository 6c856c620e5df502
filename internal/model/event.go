package model

// Structured log event names. Every component logs an "event" field with one
// of these values so log pipelines can filter without parsing messages.
const (
	EventWorkflowStart   = "WORKFLOW_START"
	EventWorkflowSuccess = "WORKFLOW_SUCCESS"
	EventWorkflowError   = "WORKFLOW_ERROR"

	EventValidationSuccess = "VALIDATION_SUCCESS"
	EventRateLimitOK       = "RATE_LIMIT_OK"
	EventRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	EventDataFetchSuccess  = "DATA_FETCH_SUCCESS"
	EventAnalysisSuccess   = "ANALYSIS_SUCCESS"
	EventSignSuccess       = "SIGN_SUCCESS"
	EventOracleUpdated     = "ORACLE_UPDATE_SUCCESS"
	EventCCIPResponse      = "CCIP_RESPONSE_SUCCESS"

	EventCircuitTripped   = "CIRCUIT_BREAKER_TRIPPED"
	EventCircuitHalfOpen  = "CIRCUIT_BREAKER_HALF_OPEN"
	EventCircuitRecovered = "CIRCUIT_BREAKER_RECOVERED"
	EventCircuitReset     = "CIRCUIT_BREAKER_RESET"
	EventCircuitDegraded  = "CIRCUIT_BREAKER_STORE_DEGRADED"

	EventRetryAttempt   = "RETRY_ATTEMPT"
	EventRetryExhausted = "RETRY_EXHAUSTED"

	EventProviderFallback = "PROVIDER_FALLBACK"
	EventChainFailure     = "CHAIN_QUERY_FAILURE"
	EventSignerFallback   = "SIGNER_FALLBACK"
	EventSignerNoFallback = "SIGNER_NO_FALLBACK"

	EventAnalyzerLowConfidence = "ANALYZER_LOW_CONFIDENCE"
	EventHybridAIFallback      = "HYBRID_AI_FALLBACK"
)
