// Package biz contains the gateway's business logic: resilience primitives,
// provider/signer/analyzer selection and the query workflow.
package biz

import (
	"OracleGate/internal/conf"
	"OracleGate/internal/data"
	"OracleGate/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewCircuitBreakerUsecase,
	NewRateLimiter,
	NewProviders,
	NewSigners,
	NewAnalyzers,
	NewRequestValidator,
	NewOracleContract,
	NewWorkflowOrchestrator,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(CircuitBreakerRepo), new(*data.CircuitBreakerRepo)),
	wire.Bind(new(RateLimitRepo), new(*data.RateLimitRepo)),
	wire.Bind(new(AuditLogger), new(*data.AuditLoggerImpl)),
	wire.Bind(new(Validator), new(*RequestValidator)),
	wire.Bind(new(AnalyzerFactory), new(*DefaultAnalyzerFactory)),
)

// NewRateLimiter builds the per-key limiter with the configured window.
func NewRateLimiter(c *conf.Resilience, repo RateLimitRepo, m *metrics.Metrics, logger log.Logger) *RateLimiterUseCase {
	window := DefaultRateLimitWindow
	if c != nil && c.RateLimit != nil && c.RateLimit.Window.AsDuration() > 0 {
		window = c.RateLimit.Window.AsDuration()
	}
	return NewRateLimiterUseCase(repo, window, m, logger)
}

// NewProviders wires the GraphQL source as primary and the RPC source as
// fallback, each behind its own breaker.
func NewProviders(
	c *conf.Provider,
	r *conf.Resilience,
	breakers *CircuitBreakerUsecase,
	goldsky *data.GoldskySource,
	rpc *data.RPCSource,
	m *metrics.Metrics,
	logger log.Logger,
) *ProviderFactory {
	retryCfg := RetryConfigFrom(r)

	var goldskyTimeout, rpcTimeout = defaultCallTimeout, defaultCallTimeout
	if c != nil && c.Goldsky != nil && c.Goldsky.Timeout.AsDuration() > 0 {
		goldskyTimeout = c.Goldsky.Timeout.AsDuration()
	}
	if c != nil && c.Rpc != nil && c.Rpc.Timeout.AsDuration() > 0 {
		rpcTimeout = c.Rpc.Timeout.AsDuration()
	}

	primary := NewDataProvider(goldsky,
		NewRetryPolicy(retryCfg, breakers.Get(BreakerGoldsky), m, logger), goldskyTimeout, logger)
	fallback := NewDataProvider(rpc,
		NewRetryPolicy(retryCfg, breakers.Get(BreakerAlchemy), m, logger), rpcTimeout, logger)
	return NewProviderFactory(primary, fallback, m, logger)
}

// NewSigners wires the Lit signer as primary. The dev wallet fallback is only
// constructed outside production and only when a key is configured.
func NewSigners(
	app *conf.App,
	c *conf.Signer,
	r *conf.Resilience,
	breakers *CircuitBreakerUsecase,
	lit *data.LitSigner,
	m *metrics.Metrics,
	logger log.Logger,
) *SignerFactory {
	timeout := defaultSignerTimeout
	var devKey string
	if c != nil && c.Lit != nil && c.Lit.Timeout.AsDuration() > 0 {
		timeout = c.Lit.Timeout.AsDuration()
	}
	if c != nil && c.DevWallet != nil {
		devKey = c.DevWallet.PrivateKey
	}

	var newFallback func() (Signer, error)
	if devKey != "" {
		newFallback = func() (Signer, error) {
			s, err := data.NewDevWalletSigner(app.Environment, devKey, logger)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}

	retry := NewRetryPolicy(RetryConfigFrom(r), breakers.Get(BreakerLit), m, logger)
	return NewSignerFactory(app.Environment, lit, retry, timeout, newFallback, m, logger)
}

// NewAnalyzers returns a factory serving the hybrid analyzer when the Claude
// client is configured, and the rules analyzer otherwise.
func NewAnalyzers(
	c *conf.Analyzer,
	r *conf.Resilience,
	breakers *CircuitBreakerUsecase,
	claude *data.ClaudeAnalyzer,
	m *metrics.Metrics,
	logger log.Logger,
) *DefaultAnalyzerFactory {
	rules := NewRulesAnalyzer(DefaultRules()...)
	if claude == nil {
		return NewDefaultAnalyzerFactory(nil, rules)
	}

	timeout := defaultAnalyzerTimeout
	if c != nil && c.Claude != nil && c.Claude.Timeout.AsDuration() > 0 {
		timeout = c.Claude.Timeout.AsDuration()
	}
	guarded := NewGuardedAnalyzer(claude,
		NewRetryPolicy(RetryConfigFrom(r), breakers.Get(BreakerClaude), m, logger), timeout)
	return NewDefaultAnalyzerFactory(NewHybridAnalyzer(guarded, rules, logger), rules)
}

// NewOracleContract keeps a disabled oracle a nil interface.
func NewOracleContract(c *data.OracleClient) OracleContract {
	if c == nil {
		return nil
	}
	return c
}
