package biz

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"OracleGate/internal/model"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SupportedChains lists the chain names a request may target.
var SupportedChains = []string{"sepolia", "arbitrum", "base", "optimism"}

// Request option defaults applied after validation.
const (
	DefaultTimeoutMs = 180000
	MinTimeoutMs     = 10000
	MaxTimeoutMs     = 300000
)

const queryRequestSchemaURL = "https://oraclegate.schemas.local/query-request.schema.json"

const queryRequestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["key", "schemaHash", "chains"],
  "properties": {
    "key": {"$ref": "#/$defs/bytes32"},
    "schemaHash": {"$ref": "#/$defs/bytes32"},
    "chains": {
      "type": "array",
      "minItems": 1,
      "items": {"enum": ["sepolia", "arbitrum", "base", "optimism"]}
    },
    "includeAnalysis": {"type": "boolean"},
    "options": {
      "type": "object",
      "properties": {
        "timeoutMs": {"type": "integer", "minimum": 10000, "maximum": 300000},
        "fallbackProviders": {"type": "boolean"},
        "customConfig": {"type": "object"}
      }
    },
    "metadata": {
      "type": "object",
      "properties": {
        "messageId": {"$ref": "#/$defs/bytes32"},
        "sourceChain": {"type": "string", "minLength": 1},
        "requester": {"$ref": "#/$defs/address"}
      }
    }
  },
  "$defs": {
    "bytes32": {"type": "string", "pattern": "^0x[a-fA-F0-9]{64}$"},
    "address": {"type": "string", "pattern": "^0x[a-fA-F0-9]{40}$"}
  }
}`

var signaturePattern = regexp.MustCompile(`^0x[a-fA-F0-9]{130}$`)

// Validator turns a raw request body into a validated query request.
type Validator interface {
	Validate(raw []byte) (*model.QueryRequest, error)
}

// RequestValidator validates query requests against a compiled JSON schema
// and fills in option defaults.
type RequestValidator struct {
	schema *jsonschema.Schema
}

func NewRequestValidator() (*RequestValidator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(queryRequestSchemaURL, strings.NewReader(queryRequestSchema)); err != nil {
		return nil, fmt.Errorf("query request schema load failed: %w", err)
	}
	schema, err := c.Compile(queryRequestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("query request schema compile failed: %w", err)
	}
	return &RequestValidator{schema: schema}, nil
}

// rawQueryRequest keeps optional fields as pointers so defaults can be told
// apart from explicit values.
type rawQueryRequest struct {
	Key             string   `json:"key"`
	SchemaHash      string   `json:"schemaHash"`
	Chains          []string `json:"chains"`
	IncludeAnalysis *bool    `json:"includeAnalysis"`
	Options         *struct {
		TimeoutMs         *int  `json:"timeoutMs"`
		FallbackProviders *bool `json:"fallbackProviders"`
	} `json:"options"`
	Metadata *model.QueryMetadata `json:"metadata"`
}

// Validate checks raw against the request schema. Every violation is listed
// in the returned ValidationError.
func (v *RequestValidator) Validate(raw []byte) (*model.QueryRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, &ValidationError{Subject: "query request", Issues: []string{"body: invalid JSON: " + err.Error()}}
	}

	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return nil, &ValidationError{Subject: "query request", Issues: []string{err.Error()}}
		}
		return nil, &ValidationError{Subject: "query request", Issues: schemaIssues(ve)}
	}

	var r rawQueryRequest
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, &ValidationError{Subject: "query request", Issues: []string{"body: " + err.Error()}}
	}

	req := &model.QueryRequest{
		Key:             r.Key,
		SchemaHash:      r.SchemaHash,
		Chains:          r.Chains,
		IncludeAnalysis: true,
		Options: model.QueryOptions{
			TimeoutMs:         DefaultTimeoutMs,
			FallbackProviders: true,
		},
		Metadata: r.Metadata,
	}
	if r.IncludeAnalysis != nil {
		req.IncludeAnalysis = *r.IncludeAnalysis
	}
	if r.Options != nil {
		if r.Options.TimeoutMs != nil {
			req.Options.TimeoutMs = *r.Options.TimeoutMs
		}
		if r.Options.FallbackProviders != nil {
			req.Options.FallbackProviders = *r.Options.FallbackProviders
		}
	}
	return req, nil
}

// schemaIssues flattens the leaf causes of a schema error into
// "location: message" lines.
func schemaIssues(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := strings.TrimPrefix(ve.InstanceLocation, "/")
		if loc == "" {
			loc = "(root)"
		}
		return []string{fmt.Sprintf("%s: %s", strings.ReplaceAll(loc, "/", "."), ve.Message)}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, schemaIssues(c)...)
	}
	return out
}

// ValidateProviderOutput checks a provider result before it reaches the
// quality gate.
func ValidateProviderOutput(out *model.ProviderOutput) error {
	if out == nil {
		return &ValidationError{Subject: "provider output", Issues: []string{"output is empty"}}
	}
	var issues []string
	if out.Data == nil {
		issues = append(issues, "data: required")
	}
	md := out.Metadata
	if len(md.Chains) == 0 {
		issues = append(issues, "metadata.chains: at least one chain is required")
	}
	if md.Timestamp.IsZero() {
		issues = append(issues, "metadata.timestamp: required")
	}
	if md.Provider == "" {
		issues = append(issues, "metadata.provider: required")
	}
	if md.QueryDurationMs < 0 {
		issues = append(issues, "metadata.queryDuration: must be non-negative")
	}
	if md.SuccessRate != nil && (*md.SuccessRate < 0 || *md.SuccessRate > 1) {
		issues = append(issues, "metadata.successRate: must be within [0,1]")
	}
	if len(issues) > 0 {
		return &ValidationError{Subject: "provider output", Issues: issues}
	}
	return nil
}

// ValidateAnalyzerOutput checks an analyzer result.
func ValidateAnalyzerOutput(out *model.AnalyzerOutput) error {
	if out == nil {
		return &ValidationError{Subject: "analyzer output", Issues: []string{"output is empty"}}
	}
	var issues []string
	if out.Confidence < 0 || out.Confidence > 1 {
		issues = append(issues, "confidence: must be within [0,1]")
	}
	if out.Metadata.ProcessingTimeMs < 0 {
		issues = append(issues, "metadata.processingTime: must be non-negative")
	}
	if out.Metadata.TokensUsed != nil && *out.Metadata.TokensUsed < 0 {
		issues = append(issues, "metadata.tokensUsed: must be non-negative")
	}
	if len(issues) > 0 {
		return &ValidationError{Subject: "analyzer output", Issues: issues}
	}
	return nil
}

// ValidateSignerOutput checks a signer result.
func ValidateSignerOutput(out *model.SignerOutput) error {
	if out == nil {
		return &ValidationError{Subject: "signer output", Issues: []string{"output is empty"}}
	}
	var issues []string
	if !signaturePattern.MatchString(out.Signature) {
		issues = append(issues, "signature: must be 0x followed by 130 hex chars")
	}
	if out.SigningTimeMs < 0 {
		issues = append(issues, "signingTime: must be non-negative")
	}
	if out.PublicKey == "" {
		issues = append(issues, "pkpPublicKey: required")
	}
	if len(issues) > 0 {
		return &ValidationError{Subject: "signer output", Issues: issues}
	}
	return nil
}
