package biz

import (
	"context"
	"fmt"
	"math"
	"time"

	"OracleGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// Analysis methods reported in AnalyzerMetadata.Method.
const (
	MethodHeuristic         = "heuristic"
	MethodHybrid            = "hybrid"
	MethodHeuristicFallback = "heuristic_fallback"
)

// Reputation tiers derived from a 0..100 score.
const (
	TierPrime    = "prime"
	TierStandard = "standard"
	TierBasic    = "basic"
)

const (
	rulesBaseScore   = 50
	hybridAIWeight   = 0.6
	hybridRuleWeight = 0.4
)

// Analyzer scores provider data.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, in *model.AnalyzerInput) (*model.AnalyzerOutput, error)
}

// AnalyzerFactory picks the analyzer for a schema.
type AnalyzerFactory interface {
	GetAnalyzer(schemaHash string) Analyzer
}

// Rule adjusts the score when Evaluate returns a non-zero delta.
type Rule struct {
	Name        string
	Description string
	Evaluate    func(data map[string]interface{}) int
}

// DefaultRules returns the built-in reputation rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        "wallet_age_bonus",
			Description: "wallets older than two years",
			Evaluate: func(data map[string]interface{}) int {
				if age, ok := toFloat(data["walletAge"]); ok && age > 2*365*24*3600 {
					return 10
				}
				return 0
			},
		},
		{
			Name:        "tx_count_bonus",
			Description: "transaction history depth",
			Evaluate: func(data map[string]interface{}) int {
				count, ok := toFloat(data["txCount"])
				if !ok {
					count, _ = toFloat(data["transactionCount"])
				}
				switch {
				case count > 1000:
					return 20
				case count > 100:
					return 10
				}
				return 0
			},
		},
		{
			Name:        "defi_usage_bonus",
			Description: "more than three DeFi protocols used",
			Evaluate: func(data map[string]interface{}) int {
				if protocols, ok := data["defiProtocols"].([]interface{}); ok && len(protocols) > 3 {
					return 15
				}
				if protocols, ok := data["defiProtocols"].([]string); ok && len(protocols) > 3 {
					return 15
				}
				return 0
			},
		},
		{
			Name:        "liquidation_penalty",
			Description: "any past liquidation",
			Evaluate: func(data map[string]interface{}) int {
				if n, ok := toFloat(data["liquidations"]); ok && n > 0 {
					return -20
				}
				return 0
			},
		},
		{
			Name:        "multi_chain_bonus",
			Description: "activity on several chains",
			Evaluate: func(data map[string]interface{}) int {
				chains, ok := toFloat(data["chainCount"])
				if !ok {
					chains = 1
				}
				switch {
				case chains >= 3:
					return 10
				case chains >= 2:
					return 5
				}
				return 0
			},
		},
	}
}

// TierFor maps a score to its tier.
func TierFor(score int) string {
	switch {
	case score >= 80:
		return TierPrime
	case score >= 50:
		return TierStandard
	}
	return TierBasic
}

// RulesAnalyzer applies deterministic rules to the provider data.
type RulesAnalyzer struct {
	rules []Rule
	now   func() time.Time
}

// NewRulesAnalyzer uses DefaultRules when rules is empty.
func NewRulesAnalyzer(rules ...Rule) *RulesAnalyzer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &RulesAnalyzer{rules: rules, now: time.Now}
}

func (a *RulesAnalyzer) Name() string {
	return "rules"
}

func (a *RulesAnalyzer) Analyze(_ context.Context, in *model.AnalyzerInput) (*model.AnalyzerOutput, error) {
	start := a.now()

	var data map[string]interface{}
	if in != nil && in.Data != nil {
		data = in.Data.Data
	}

	score := rulesBaseScore
	applied := make([]string, 0, len(a.rules))
	for _, r := range a.rules {
		delta := r.Evaluate(data)
		if delta == 0 {
			continue
		}
		score += delta
		applied = append(applied, fmt.Sprintf("%s: %+d", r.Name, delta))
	}
	score = min(max(score, 0), 100)

	return &model.AnalyzerOutput{
		Result: map[string]interface{}{
			"score":        score,
			"tier":         TierFor(score),
			"appliedRules": applied,
		},
		Confidence: 1,
		Reasoning: fmt.Sprintf("Rules-based calculation (deterministic). Applied %d rules. Base score: %d, final: %d.",
			len(applied), rulesBaseScore, score),
		Metadata: model.AnalyzerMetadata{
			Method:           MethodHeuristic,
			ProcessingTimeMs: a.now().Sub(start).Milliseconds(),
		},
	}, nil
}

// GuardedAnalyzer runs a remote analyzer through a retry policy and its breaker.
type GuardedAnalyzer struct {
	inner       Analyzer
	retry       *RetryPolicy
	callTimeout time.Duration
}

func NewGuardedAnalyzer(inner Analyzer, retry *RetryPolicy, callTimeout time.Duration) *GuardedAnalyzer {
	return &GuardedAnalyzer{inner: inner, retry: retry, callTimeout: callTimeout}
}

func (a *GuardedAnalyzer) Name() string {
	return a.inner.Name()
}

// Breaker returns the breaker guarding the remote analyzer, or nil.
func (a *GuardedAnalyzer) Breaker() *CircuitBreaker {
	return a.retry.Breaker()
}

func (a *GuardedAnalyzer) Analyze(ctx context.Context, in *model.AnalyzerInput) (*model.AnalyzerOutput, error) {
	var out *model.AnalyzerOutput
	err := a.retry.Execute(ctx, a.inner.Name()+"_analyze", func(ctx context.Context) error {
		callCtx, cancel := withOptionalTimeout(ctx, a.callTimeout)
		defer cancel()
		o, err := a.inner.Analyze(callCtx, in)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HybridAnalyzer blends an AI score with the rules score. The rules always
// run; if the AI call fails the rules result is returned on its own.
type HybridAnalyzer struct {
	ai     Analyzer
	rules  *RulesAnalyzer
	logger *log.Helper
	now    func() time.Time
}

func NewHybridAnalyzer(ai Analyzer, rules *RulesAnalyzer, logger log.Logger) *HybridAnalyzer {
	return &HybridAnalyzer{
		ai:     ai,
		rules:  rules,
		logger: log.NewHelper(log.With(logger, "module", "biz/hybrid_analyzer")),
		now:    time.Now,
	}
}

func (a *HybridAnalyzer) Name() string {
	return "hybrid"
}

func (a *HybridAnalyzer) Analyze(ctx context.Context, in *model.AnalyzerInput) (*model.AnalyzerOutput, error) {
	start := a.now()

	rulesOut, err := a.rules.Analyze(ctx, in)
	if err != nil {
		return nil, err
	}

	aiOut, err := a.ai.Analyze(ctx, in)
	if err != nil {
		a.logger.Warnw("msg", "AI analysis failed, using rules result",
			"event", model.EventHybridAIFallback,
			"analyzer", a.ai.Name(),
			"error", err)
		rulesOut.Metadata.Method = MethodHeuristicFallback
		rulesOut.Metadata.ProcessingTimeMs = a.now().Sub(start).Milliseconds()
		return rulesOut, nil
	}

	aiScore := extractScore(aiOut.Result)
	rulesScore := extractScore(rulesOut.Result)
	combined := int(math.Round(float64(aiScore)*hybridAIWeight + float64(rulesScore)*hybridRuleWeight))
	confidence := math.Round((aiOut.Confidence*hybridAIWeight+rulesOut.Confidence*hybridRuleWeight)*100) / 100

	return &model.AnalyzerOutput{
		Result: map[string]interface{}{
			"score":      combined,
			"tier":       TierFor(combined),
			"aiScore":    aiScore,
			"rulesScore": rulesScore,
			"weights": map[string]float64{
				"ai":    hybridAIWeight,
				"rules": hybridRuleWeight,
			},
		},
		Confidence: confidence,
		Reasoning: fmt.Sprintf("Hybrid analysis: AI score %d (weight %.1f), rules score %d (weight %.1f). AI: %s",
			aiScore, hybridAIWeight, rulesScore, hybridRuleWeight, aiOut.Reasoning),
		Metadata: model.AnalyzerMetadata{
			Model:            aiOut.Metadata.Model,
			Method:           MethodHybrid,
			ProcessingTimeMs: a.now().Sub(start).Milliseconds(),
			TokensUsed:       aiOut.Metadata.TokensUsed,
		},
	}, nil
}

// extractScore reads result["score"], defaulting to 50.
func extractScore(result map[string]interface{}) int {
	if v, ok := toFloat(result["score"]); ok {
		return int(math.Round(v))
	}
	return rulesBaseScore
}

// DefaultAnalyzerFactory serves the hybrid analyzer when one is configured and
// the rules analyzer otherwise.
type DefaultAnalyzerFactory struct {
	hybrid *HybridAnalyzer
	rules  *RulesAnalyzer
}

func NewDefaultAnalyzerFactory(hybrid *HybridAnalyzer, rules *RulesAnalyzer) *DefaultAnalyzerFactory {
	if rules == nil {
		rules = NewRulesAnalyzer()
	}
	return &DefaultAnalyzerFactory{hybrid: hybrid, rules: rules}
}

func (f *DefaultAnalyzerFactory) GetAnalyzer(_ string) Analyzer {
	if f.hybrid != nil {
		return f.hybrid
	}
	return f.rules
}
