package model

type AnalyzerInput struct {
	Data       *ProviderOutput
	SchemaHash string
	Options    AnalyzerOptions
}

type AnalyzerOptions struct {
	IncludeReasoning    bool
	ConfidenceThreshold float64
}

// AnalyzerOutput is the scored result of an analyzer. Result usually holds
// "score" and "tier".
type AnalyzerOutput struct {
	Result     map[string]interface{} `json:"result"`
	Confidence float64                `json:"confidence"`
	Reasoning  string                 `json:"reasoning"`
	Metadata   AnalyzerMetadata       `json:"metadata"`
}

type AnalyzerMetadata struct {
	Model            string `json:"model,omitempty"`
	Method           string `json:"method,omitempty"`
	ProcessingTimeMs int64  `json:"processingTime"`
	TokensUsed       *int   `json:"tokensUsed,omitempty"`
}
