package model

import "time"

// QueryRequest is a validated oracle query.
type QueryRequest struct {
	Key             string         `json:"key"`
	SchemaHash      string         `json:"schemaHash"`
	Chains          []string       `json:"chains"`
	IncludeAnalysis bool           `json:"includeAnalysis"`
	Options         QueryOptions   `json:"options"`
	Metadata        *QueryMetadata `json:"metadata,omitempty"`
}

type QueryOptions struct {
	TimeoutMs         int  `json:"timeoutMs"`
	FallbackProviders bool `json:"fallbackProviders"`
}

// QueryMetadata carries the cross-chain request that triggered the query.
type QueryMetadata struct {
	MessageID   string `json:"messageId,omitempty"`
	SourceChain string `json:"sourceChain,omitempty"`
	Requester   string `json:"requester,omitempty"`
}

// MessageID returns the cross-chain message id, or "" when absent.
func (r *QueryRequest) MessageID() string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	return r.Metadata.MessageID
}

// ProviderQuery is the input to a data provider. ContractAddresses is only
// understood by the RPC provider.
type ProviderQuery struct {
	Key               string            `json:"key"`
	Chains            []string          `json:"chains"`
	SchemaHash        string            `json:"schemaHash"`
	ContractAddresses map[string]string `json:"contractAddresses,omitempty"`
}

// ProviderOutput is the envelope returned by every data provider.
type ProviderOutput struct {
	Data     map[string]interface{} `json:"data"`
	Metadata ProviderMetadata       `json:"metadata"`
}

type ProviderMetadata struct {
	Chains          []string  `json:"chains"`
	Timestamp       time.Time `json:"timestamp"`
	Provider        string    `json:"provider"`
	QueryDurationMs int64     `json:"queryDuration"`
	PartialData     bool      `json:"partialData,omitempty"`
	// SuccessRate is nil when the provider does not track per-chain outcomes.
	SuccessRate *float64 `json:"successRate,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// EffectiveSuccessRate treats a missing success rate as full success.
func (m ProviderMetadata) EffectiveSuccessRate() float64 {
	if m.SuccessRate == nil {
		return 1
	}
	return *m.SuccessRate
}
