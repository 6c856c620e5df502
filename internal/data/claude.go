package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"OracleGate/internal/conf"
	"OracleGate/internal/model"
	"OracleGate/pkg/httpclient"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	ClaudeAnalyzerName = "Claude"

	anthropicVersion           = "2023-06-01"
	defaultClaudeEndpoint      = "https://api.anthropic.com/v1/messages"
	defaultClaudeModel         = "claude-sonnet-4-5-20250929"
	defaultClaudeMaxTokens     = 4096
	defaultConfidenceThreshold = 0.5
)

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int32           `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// claudeAnalysis is the JSON object the prompt asks the model to return.
type claudeAnalysis struct {
	Result     map[string]interface{} `json:"result"`
	Confidence *float64               `json:"confidence"`
	Reasoning  *string                `json:"reasoning"`
}

// ClaudeAnalyzer scores provider data with the Anthropic messages API.
type ClaudeAnalyzer struct {
	apiKey    string
	endpoint  string
	model     string
	maxTokens int32
	threshold float64
	client    *http.Client
	now       func() time.Time
	logger    *log.Helper
}

// NewClaudeAnalyzer returns nil without an error when no API key is
// configured, which leaves the rules analyzer in charge.
func NewClaudeAnalyzer(c *conf.Analyzer, logger log.Logger) (*ClaudeAnalyzer, error) {
	helper := log.NewHelper(log.With(logger, "module", "data/claude"))

	if c == nil || c.Claude == nil || c.Claude.ApiKey == "" {
		helper.Infow("msg", "claude api key not configured, AI analysis disabled")
		return nil, nil
	}
	cfg := c.Claude

	client, err := httpclient.New(cfg.ProxyUrl, cfg.Timeout.AsDuration())
	if err != nil {
		return nil, fmt.Errorf("failed to create claude http client: %w", err)
	}

	a := &ClaudeAnalyzer{
		apiKey:    cfg.ApiKey,
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		threshold: cfg.ConfidenceThreshold,
		client:    client,
		now:       time.Now,
		logger:    helper,
	}
	if a.endpoint == "" {
		a.endpoint = defaultClaudeEndpoint
	}
	if a.model == "" {
		a.model = defaultClaudeModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultClaudeMaxTokens
	}
	if a.threshold <= 0 {
		a.threshold = defaultConfidenceThreshold
	}
	return a, nil
}

func (a *ClaudeAnalyzer) Name() string {
	return ClaudeAnalyzerName
}

// Analyze sends one prompt and parses the JSON object out of the reply. A
// confidence below the threshold is logged, not rejected.
func (a *ClaudeAnalyzer) Analyze(ctx context.Context, in *model.AnalyzerInput) (*model.AnalyzerOutput, error) {
	start := a.now()
	if in == nil || in.Data == nil {
		return nil, fmt.Errorf("analyzer input has no provider data")
	}

	prompt, err := buildClaudePrompt(in)
	if err != nil {
		return nil, err
	}

	req := claudeRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	}
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp claudeResponse
	if err := httpclient.PostJSON(ctx, a.client, a.endpoint, headers, req, &resp); err != nil {
		return nil, fmt.Errorf("claude request: %w", err)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == "" {
		return nil, errors.New("empty response from Claude API")
	}

	parsed, err := parseClaudeAnalysis(resp.Content[0].Text)
	if err != nil {
		return nil, err
	}

	threshold := a.threshold
	if in.Options.ConfidenceThreshold > 0 {
		threshold = in.Options.ConfidenceThreshold
	}
	if *parsed.Confidence < threshold {
		a.logger.Warnw("msg", "low confidence analysis result",
			"event", model.EventAnalyzerLowConfidence,
			"confidence", *parsed.Confidence,
			"threshold", threshold)
	}

	result := parsed.Result
	if result == nil {
		result = map[string]interface{}{}
	}
	reasoning := *parsed.Reasoning
	if !in.Options.IncludeReasoning {
		reasoning = ""
	}
	tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens

	return &model.AnalyzerOutput{
		Result:     result,
		Confidence: *parsed.Confidence,
		Reasoning:  reasoning,
		Metadata: model.AnalyzerMetadata{
			Model:            a.model,
			ProcessingTimeMs: a.now().Sub(start).Milliseconds(),
			TokensUsed:       &tokens,
		},
	}, nil
}

func buildClaudePrompt(in *model.AnalyzerInput) (string, error) {
	data, err := json.MarshalIndent(in.Data.Data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal provider data: %w", err)
	}
	meta := in.Data.Metadata

	var b strings.Builder
	b.WriteString("Analyze the following blockchain data and provide a structured analysis.\n\n")
	fmt.Fprintf(&b, "Schema: %s\n\n", in.SchemaHash)
	fmt.Fprintf(&b, "Data:\n%s\n\n", data)
	b.WriteString("Metadata:\n")
	fmt.Fprintf(&b, "- Chains: %s\n", strings.Join(meta.Chains, ", "))
	fmt.Fprintf(&b, "- Provider: %s\n", meta.Provider)
	fmt.Fprintf(&b, "- Partial data: %t\n\n", meta.PartialData)
	b.WriteString("Respond ONLY with valid JSON in this exact format:\n")
	b.WriteString(`{
  "result": { "score": <0-100>, "tier": "<prime|standard|basic>", "patterns": {} },
  "confidence": <0.0-1.0>,
  "reasoning": "<your analysis reasoning>"
}`)
	return b.String(), nil
}

// parseClaudeAnalysis extracts the outermost JSON object, which may be wrapped
// in a markdown fence, and checks confidence and reasoning.
func parseClaudeAnalysis(text string) (*claudeAnalysis, error) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return nil, errors.New("could not extract JSON from Claude response")
	}

	var parsed claudeAnalysis
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil, fmt.Errorf("could not parse JSON from Claude response: %w", err)
	}
	if parsed.Confidence == nil || *parsed.Confidence < 0 || *parsed.Confidence > 1 {
		return nil, errors.New("Claude response has no confidence in [0, 1]")
	}
	if parsed.Reasoning == nil {
		return nil, errors.New("missing reasoning in Claude response")
	}
	return &parsed, nil
}
