package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OracleGate/internal/model"
	"OracleGate/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// ChainSource fetches one chain's data for one key. Implementations live in
// the data layer and know nothing about retries or breakers.
type ChainSource interface {
	Name() string
	FetchChain(ctx context.Context, q *model.ProviderQuery, chain string) (map[string]interface{}, error)
}

// summedFields are per-chain numeric fields added up into the aggregated data.
var summedFields = []string{"txCount", "transactionCount", "liquidations"}

// DataProvider queries every requested chain of a ChainSource concurrently.
// Each chain query runs through the provider's own retry policy and breaker,
// and one chain failing does not cancel the others.
type DataProvider struct {
	source      ChainSource
	retry       *RetryPolicy
	callTimeout time.Duration
	logger      *log.Helper
	now         func() time.Time
}

// NewDataProvider wraps source. callTimeout bounds every single chain attempt.
func NewDataProvider(source ChainSource, retry *RetryPolicy, callTimeout time.Duration, logger log.Logger) *DataProvider {
	return &DataProvider{
		source:      source,
		retry:       retry,
		callTimeout: callTimeout,
		logger:      log.NewHelper(log.With(logger, "module", "biz/provider", "provider", source.Name())),
		now:         time.Now,
	}
}

// Name returns the provider name reported in ProviderMetadata.Provider.
func (p *DataProvider) Name() string {
	return p.source.Name()
}

// Breaker returns the breaker guarding the provider, or nil.
func (p *DataProvider) Breaker() *CircuitBreaker {
	return p.retry.Breaker()
}

type chainResult struct {
	data map[string]interface{}
	err  error
}

// Query fetches all chains and reports the fraction that answered. It fails
// only when no chain answered.
func (p *DataProvider) Query(ctx context.Context, q *model.ProviderQuery) (*model.ProviderOutput, error) {
	start := p.now()
	if len(q.Chains) == 0 {
		return nil, &ValidationError{Subject: "provider query", Issues: []string{"chains: at least one chain is required"}}
	}

	results := make([]chainResult, len(q.Chains))
	var g errgroup.Group
	for i, chain := range q.Chains {
		i, chain := i, chain
		g.Go(func() error {
			var data map[string]interface{}
			err := p.retry.Execute(ctx, fmt.Sprintf("%s_%s", p.Name(), chain), func(ctx context.Context) error {
				callCtx, cancel := p.withTimeout(ctx)
				defer cancel()
				d, err := p.source.FetchChain(callCtx, q, chain)
				if err != nil {
					return err
				}
				data = d
				return nil
			})
			results[i] = chainResult{data: data, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		collected []interface{}
		warnings  []string
		errs      []error
	)
	for i, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			warnings = append(warnings, fmt.Sprintf("Chain %s failed: %v", q.Chains[i], r.err))
			p.logger.Warnw("msg", "chain query failed",
				"event", model.EventChainFailure,
				"chain", q.Chains[i],
				"error", r.err)
			continue
		}
		collected = append(collected, r.data)
	}

	if len(collected) == 0 {
		return nil, fmt.Errorf("%s: all %d chains failed: %w", p.Name(), len(q.Chains), errors.Join(errs...))
	}

	successRate := float64(len(collected)) / float64(len(q.Chains))
	duration := p.now().Sub(start).Milliseconds()

	p.logger.Infow("msg", "provider query completed",
		"key", q.Key,
		"success_rate", successRate,
		"duration_ms", duration)

	return &model.ProviderOutput{
		Data: aggregate(collected),
		Metadata: model.ProviderMetadata{
			Chains:          append([]string(nil), q.Chains...),
			Timestamp:       p.now().UTC(),
			Provider:        p.Name(),
			QueryDurationMs: duration,
			PartialData:     successRate < 1,
			SuccessRate:     &successRate,
			Warnings:        warnings,
		},
	}, nil
}

func (p *DataProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.callTimeout)
}

// aggregate builds the provider data object: the per-chain results, the number
// of chains that answered, and the sums of known counters.
func aggregate(results []interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"results":    results,
		"chainCount": len(results),
	}
	for _, field := range summedFields {
		var (
			sum   float64
			found bool
		)
		for _, r := range results {
			m, _ := r.(map[string]interface{})
			if v, ok := toFloat(m[field]); ok {
				sum += v
				found = true
			}
		}
		if found {
			out[field] = sum
		}
	}
	return out
}

// ProviderFactory serves queries from the primary provider and falls back to
// the secondary when the primary fails for any reason.
type ProviderFactory struct {
	primary  *DataProvider
	fallback *DataProvider
	metrics  *metrics.Metrics
	logger   *log.Helper
}

func NewProviderFactory(primary, fallback *DataProvider, m *metrics.Metrics, logger log.Logger) *ProviderFactory {
	return &ProviderFactory{
		primary:  primary,
		fallback: fallback,
		metrics:  m,
		logger:   log.NewHelper(log.With(logger, "module", "biz/provider_factory")),
	}
}

// Primary returns the primary provider.
func (f *ProviderFactory) Primary() *DataProvider {
	return f.primary
}

// Fallback returns the secondary provider, or nil.
func (f *ProviderFactory) Fallback() *DataProvider {
	return f.fallback
}

// Breakers returns the breakers of both providers.
func (f *ProviderFactory) Breakers() []*CircuitBreaker {
	var out []*CircuitBreaker
	for _, p := range []*DataProvider{f.primary, f.fallback} {
		if p != nil && p.Breaker() != nil {
			out = append(out, p.Breaker())
		}
	}
	return out
}

// QueryPrimary queries the primary provider only.
func (f *ProviderFactory) QueryPrimary(ctx context.Context, q *model.ProviderQuery) (*model.ProviderOutput, error) {
	return f.primary.Query(ctx, q)
}

// QueryWithFallback tries the primary provider, then the secondary. Fields the
// secondary does not understand are dropped from the query. If both fail the
// secondary's error is returned.
func (f *ProviderFactory) QueryWithFallback(ctx context.Context, q *model.ProviderQuery) (*model.ProviderOutput, error) {
	out, err := f.primary.Query(ctx, q)
	if err == nil {
		return out, nil
	}
	if f.fallback == nil {
		return nil, err
	}

	f.logger.Warnw("msg", "primary provider failed, falling back",
		"event", model.EventProviderFallback,
		"primary_provider", f.primary.Name(),
		"fallback_provider", f.fallback.Name(),
		"error", err)
	f.metrics.IncFallback("provider", f.fallback.Name())

	return f.fallback.Query(ctx, &model.ProviderQuery{
		Key:        q.Key,
		Chains:     append([]string(nil), q.Chains...),
		SchemaHash: q.SchemaHash,
	})
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
