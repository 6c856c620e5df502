package biz

import (
	"context"
	"time"

	"OracleGate/internal/conf"
	"OracleGate/internal/model"
	"OracleGate/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// Signer signs a payload digest. Implementations live in the data layer.
type Signer interface {
	Name() string
	Sign(ctx context.Context, p *model.SignPayload) (*model.SignerOutput, error)
}

// SignerFactory signs with the primary signer and, outside production, falls
// back to a local signer. In production the fallback constructor is never
// called, so no local key is ever loaded there.
type SignerFactory struct {
	primary     Signer
	retry       *RetryPolicy
	callTimeout time.Duration
	fallback    Signer
	metrics     *metrics.Metrics
	logger      *log.Helper
}

// NewSignerFactory builds the factory. retry wraps every primary call and
// should carry the primary's breaker. newFallback may be nil.
func NewSignerFactory(
	environment string,
	primary Signer,
	retry *RetryPolicy,
	callTimeout time.Duration,
	newFallback func() (Signer, error),
	m *metrics.Metrics,
	logger log.Logger,
) *SignerFactory {
	f := &SignerFactory{
		primary:     primary,
		retry:       retry,
		callTimeout: callTimeout,
		metrics:     m,
		logger:      log.NewHelper(log.With(logger, "module", "biz/signer_factory")),
	}

	if environment == conf.EnvProduction || newFallback == nil {
		return f
	}

	fallback, err := newFallback()
	if err != nil {
		f.logger.Warnw("msg", "fallback signer unavailable, primary failures will be fatal",
			"environment", environment,
			"error", err)
		return f
	}
	f.fallback = fallback
	return f
}

// Primary returns the primary signer.
func (f *SignerFactory) Primary() Signer {
	return f.primary
}

// Fallback returns the fallback signer, or nil in production.
func (f *SignerFactory) Fallback() Signer {
	return f.fallback
}

// Breaker returns the breaker guarding the primary signer, or nil.
func (f *SignerFactory) Breaker() *CircuitBreaker {
	return f.retry.Breaker()
}

// SignWithFallback signs with the primary signer. If it fails and a fallback
// exists the fallback signs instead; otherwise the primary's error is returned.
func (f *SignerFactory) SignWithFallback(ctx context.Context, p *model.SignPayload) (*model.SignerOutput, error) {
	var out *model.SignerOutput
	err := f.retry.Execute(ctx, f.primary.Name()+"_sign", func(ctx context.Context) error {
		callCtx, cancel := withOptionalTimeout(ctx, f.callTimeout)
		defer cancel()
		o, err := f.primary.Sign(callCtx, p)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err == nil {
		return out, nil
	}

	if f.fallback == nil {
		f.logger.Errorw("msg", "primary signer failed and no fallback is available",
			"event", model.EventSignerNoFallback,
			"primary_signer", f.primary.Name(),
			"error", err)
		return nil, err
	}

	f.logger.Warnw("msg", "primary signer failed, falling back",
		"event", model.EventSignerFallback,
		"primary_signer", f.primary.Name(),
		"fallback_signer", f.fallback.Name(),
		"error", err)
	f.metrics.IncFallback("signer", f.fallback.Name())

	callCtx, cancel := withOptionalTimeout(ctx, f.callTimeout)
	defer cancel()
	return f.fallback.Sign(callCtx, p)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
