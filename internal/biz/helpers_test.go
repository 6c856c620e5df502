package biz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"OracleGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

var testLogger = log.DefaultLogger

// memoryCircuitRepo is an in-process CircuitBreakerRepo that can be told to fail.
type memoryCircuitRepo struct {
	mu      sync.Mutex
	records map[string]*model.CircuitRecord
	getErr  error
	saveErr error
	listErr error
}

func newMemoryCircuitRepo() *memoryCircuitRepo {
	return &memoryCircuitRepo{records: map[string]*model.CircuitRecord{}}
}

func (r *memoryCircuitRepo) GetCircuit(_ context.Context, name string) (*model.CircuitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.records[name].Clone(), nil
}

func (r *memoryCircuitRepo) SaveCircuit(_ context.Context, name string, rec *model.CircuitRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.records[name] = rec.Clone()
	return nil
}

func (r *memoryCircuitRepo) ListCircuits(context.Context) (map[string]*model.CircuitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make(map[string]*model.CircuitRecord, len(r.records))
	for k, v := range r.records {
		out[k] = v.Clone()
	}
	return out, nil
}

// fastRetry returns a retry policy that never sleeps.
func fastRetry(maxRetries int, breaker *CircuitBreaker) *RetryPolicy {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = maxRetries
	p := NewRetryPolicy(cfg, breaker, nil, testLogger)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

// fakeSource answers per chain from a table; chains missing from the table fail.
type fakeSource struct {
	name  string
	data  map[string]map[string]interface{}
	err   error
	calls atomic.Int32

	mu      sync.Mutex
	queries []*model.ProviderQuery
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) FetchChain(_ context.Context, q *model.ProviderQuery, chain string) (map[string]interface{}, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	d, ok := s.data[chain]
	if !ok {
		return nil, errors.New("chain " + chain + " unavailable")
	}
	return d, nil
}

func (s *fakeSource) lastQuery() *model.ProviderQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return nil
	}
	return s.queries[len(s.queries)-1]
}

// fakeSigner returns a fixed signature or error.
type fakeSigner struct {
	name  string
	sig   string
	err   error
	calls atomic.Int32
}

func (s *fakeSigner) Name() string { return s.name }

func (s *fakeSigner) Sign(context.Context, *model.SignPayload) (*model.SignerOutput, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &model.SignerOutput{Signature: s.sig, SigningTimeMs: 3, PublicKey: "0xpub-" + s.name}, nil
}

var validSignature = "0x" + strings.Repeat("1b", 65)

// fakeAnalyzer returns a fixed output or error.
type fakeAnalyzer struct {
	out   *model.AnalyzerOutput
	err   error
	calls atomic.Int32
}

func (a *fakeAnalyzer) Name() string { return "fake" }

func (a *fakeAnalyzer) Analyze(context.Context, *model.AnalyzerInput) (*model.AnalyzerOutput, error) {
	a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return a.out, nil
}

// fakeTx is a PendingTx with a fixed receipt.
type fakeTx struct {
	hash    string
	receipt *model.Receipt
	err     error
}

func (t *fakeTx) Hash() string { return t.hash }

func (t *fakeTx) Wait(context.Context) (*model.Receipt, error) {
	return t.receipt, t.err
}

// fakeOracle records calls and returns the configured transactions.
type fakeOracle struct {
	update    *fakeTx
	response  *fakeTx
	updateErr error

	updates   atomic.Int32
	responses atomic.Int32
	lastValue string
}

func (o *fakeOracle) UpdateData(_ context.Context, _, value, _ string) (model.PendingTx, error) {
	o.updates.Add(1)
	o.lastValue = value
	if o.updateErr != nil {
		return nil, o.updateErr
	}
	return o.update, nil
}

func (o *fakeOracle) SendResponse(context.Context, string, string) (model.PendingTx, error) {
	o.responses.Add(1)
	return o.response, nil
}
