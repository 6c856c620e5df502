package biz

import (
	"errors"
	"strings"
	"testing"
	"time"

	"OracleGate/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey        = "0x" + strings.Repeat("ab", 32)
	testSchemaHash = "0x" + strings.Repeat("cd", 32)
	testMessageID  = "0x" + strings.Repeat("ef", 32)
)

func newTestValidator(t *testing.T) *RequestValidator {
	t.Helper()
	v, err := NewRequestValidator()
	require.NoError(t, err)
	return v
}

func TestRequestValidator_AppliesDefaults(t *testing.T) {
	v := newTestValidator(t)

	req, err := v.Validate([]byte(`{"key":"` + testKey + `","schemaHash":"` + testSchemaHash + `","chains":["base"]}`))
	require.NoError(t, err)

	assert.Equal(t, testKey, req.Key)
	assert.Equal(t, testSchemaHash, req.SchemaHash)
	assert.Equal(t, []string{"base"}, req.Chains)
	assert.True(t, req.IncludeAnalysis)
	assert.Equal(t, DefaultTimeoutMs, req.Options.TimeoutMs)
	assert.True(t, req.Options.FallbackProviders)
	assert.Empty(t, req.MessageID())
}

func TestRequestValidator_ExplicitValues(t *testing.T) {
	v := newTestValidator(t)

	body := `{
		"key": "` + testKey + `",
		"schemaHash": "` + testSchemaHash + `",
		"chains": ["sepolia", "optimism"],
		"includeAnalysis": false,
		"options": {"timeoutMs": 20000, "fallbackProviders": false},
		"metadata": {"messageId": "` + testMessageID + `", "sourceChain": "base-sepolia"}
	}`
	req, err := v.Validate([]byte(body))
	require.NoError(t, err)

	assert.False(t, req.IncludeAnalysis)
	assert.Equal(t, 20000, req.Options.TimeoutMs)
	assert.False(t, req.Options.FallbackProviders)
	assert.Equal(t, testMessageID, req.MessageID())
	require.NotNil(t, req.Metadata)
	assert.Equal(t, "base-sepolia", req.Metadata.SourceChain)
}

func TestRequestValidator_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		expect []string
	}{
		{"invalid json", `{"key":`, []string{"invalid JSON"}},
		{"missing fields", `{}`, []string{"key", "schemaHash", "chains"}},
		{"short key", `{"key":"0x1234","schemaHash":"` + testSchemaHash + `","chains":["base"]}`, []string{"key"}},
		{"empty chains", `{"key":"` + testKey + `","schemaHash":"` + testSchemaHash + `","chains":[]}`, []string{"chains"}},
		{"unknown chain", `{"key":"` + testKey + `","schemaHash":"` + testSchemaHash + `","chains":["solana"]}`, []string{"chains"}},
		{"timeout too low", `{"key":"` + testKey + `","schemaHash":"` + testSchemaHash + `","chains":["base"],"options":{"timeoutMs":500}}`, []string{"options.timeoutMs"}},
		{"timeout too high", `{"key":"` + testKey + `","schemaHash":"` + testSchemaHash + `","chains":["base"],"options":{"timeoutMs":400000}}`, []string{"options.timeoutMs"}},
		{"bad requester", `{"key":"` + testKey + `","schemaHash":"` + testSchemaHash + `","chains":["base"],"metadata":{"requester":"0x12"}}`, []string{"metadata.requester"}},
	}

	v := newTestValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate([]byte(tt.body))
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, "query request", ve.Subject)
			for _, want := range tt.expect {
				assert.Contains(t, err.Error(), want)
			}
			assert.Equal(t, ErrorTypeValidation, ClassifyError(err))
		})
	}
}

func TestRequestValidator_ListsEveryIssue(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.Validate([]byte(`{"key":"nope","schemaHash":"nope","chains":["base"]}`))
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.GreaterOrEqual(t, len(ve.Issues), 2)
}

func TestValidateProviderOutput(t *testing.T) {
	rate := 0.5
	good := &model.ProviderOutput{
		Data: map[string]interface{}{},
		Metadata: model.ProviderMetadata{
			Chains:      []string{"base"},
			Timestamp:   time.Now(),
			Provider:    "Goldsky",
			SuccessRate: &rate,
		},
	}
	assert.NoError(t, ValidateProviderOutput(good))

	assert.Error(t, ValidateProviderOutput(nil))

	bad := -0.1
	err := ValidateProviderOutput(&model.ProviderOutput{
		Metadata: model.ProviderMetadata{QueryDurationMs: -1, SuccessRate: &bad},
	})
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Issues, 6)
}

func TestValidateAnalyzerOutput(t *testing.T) {
	assert.NoError(t, ValidateAnalyzerOutput(&model.AnalyzerOutput{Confidence: 0.7}))
	assert.Error(t, ValidateAnalyzerOutput(nil))
	assert.Error(t, ValidateAnalyzerOutput(&model.AnalyzerOutput{Confidence: 1.2}))

	negative := -1
	assert.Error(t, ValidateAnalyzerOutput(&model.AnalyzerOutput{
		Confidence: 0.5,
		Metadata:   model.AnalyzerMetadata{TokensUsed: &negative},
	}))
}

func TestValidateSignerOutput(t *testing.T) {
	assert.NoError(t, ValidateSignerOutput(&model.SignerOutput{Signature: validSignature, PublicKey: "0xpub"}))
	assert.Error(t, ValidateSignerOutput(nil))

	err := ValidateSignerOutput(&model.SignerOutput{Signature: "0x1234", SigningTimeMs: -1})
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Issues, 3)
}
