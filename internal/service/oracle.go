package service

import (
	"context"
	"errors"
	"strings"

	"OracleGate/internal/biz"
	"OracleGate/internal/conf"
	"OracleGate/internal/model"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// Error reasons returned by the administrative endpoints.
const (
	ReasonCircuitNotFound = "CIRCUIT_NOT_FOUND"
	ReasonInvalidArgument = "INVALID_ARGUMENT"
	ReasonStoreError      = "STORE_ERROR"
)

// QueryRequest is the raw body of POST /v1/query plus the caller's module.
type QueryRequest struct {
	Body         []byte
	SourceModule string
}

type CircuitRequest struct {
	Name string
}

// CircuitReply is the state of one breaker.
type CircuitReply struct {
	Name string `json:"name"`
	*model.CircuitRecord
}

type ListCircuitsReply struct {
	Circuits map[string]*model.CircuitRecord `json:"circuits"`
}

type RateLimitRequest struct {
	Key string
}

type RateLimitReply struct {
	Key         string `json:"key"`
	RemainingMs int64  `json:"remainingMs"`
	Allowed     bool   `json:"allowed"`
}

// OracleService exposes the workflow and the breaker and limiter admin operations.
type OracleService struct {
	orchestrator *biz.WorkflowOrchestrator
	breakers     *biz.CircuitBreakerUsecase
	limiter      *biz.RateLimiterUseCase
	sourceModule string
	logger       *log.Helper
}

// NewOracleService creates a new OracleService instance.
func NewOracleService(
	app *conf.App,
	orchestrator *biz.WorkflowOrchestrator,
	breakers *biz.CircuitBreakerUsecase,
	limiter *biz.RateLimiterUseCase,
	logger log.Logger,
) *OracleService {
	sourceModule := "API_Gateway"
	if app != nil && app.SourceModule != "" {
		sourceModule = app.SourceModule
	}
	return &OracleService{
		orchestrator: orchestrator,
		breakers:     breakers,
		limiter:      limiter,
		sourceModule: sourceModule,
		logger:       log.NewHelper(log.With(logger, "module", "service/oracle")),
	}
}

// Query runs the workflow. Workflow failures are part of the result, not errors.
func (s *OracleService) Query(ctx context.Context, req *QueryRequest) (*biz.OrchestratorResult, error) {
	source := req.SourceModule
	if source == "" {
		source = s.sourceModule
	}
	s.logger.Debugw("msg", "Query called", "source_module", source, "body_bytes", len(req.Body))

	return s.orchestrator.Execute(ctx, req.Body, source), nil
}

func (s *OracleService) ListCircuits(ctx context.Context) (*ListCircuitsReply, error) {
	return &ListCircuitsReply{Circuits: s.breakers.Snapshot(ctx)}, nil
}

// GetCircuit returns the persisted state of one breaker.
func (s *OracleService) GetCircuit(ctx context.Context, req *CircuitRequest) (*CircuitReply, error) {
	rec, err := s.breakers.State(ctx, req.Name)
	if err != nil {
		return nil, s.circuitError(req.Name, err)
	}
	return &CircuitReply{Name: req.Name, CircuitRecord: rec}, nil
}

// ResetCircuit forces a breaker back to CLOSED and returns its new state.
func (s *OracleService) ResetCircuit(ctx context.Context, req *CircuitRequest) (*CircuitReply, error) {
	if err := s.breakers.Reset(ctx, req.Name); err != nil {
		return nil, s.circuitError(req.Name, err)
	}
	s.logger.Warnw("msg", "circuit reset by operator",
		"event", model.EventCircuitReset,
		"circuit", req.Name)
	return s.GetCircuit(ctx, req)
}

// GetRateLimit reports how long the key must wait before its next request.
func (s *OracleService) GetRateLimit(ctx context.Context, req *RateLimitRequest) (*RateLimitReply, error) {
	if req.Key == "" {
		return nil, kerrors.BadRequest(ReasonInvalidArgument, "key is required")
	}
	remaining, err := s.limiter.Remaining(ctx, req.Key)
	if err != nil {
		s.logger.Errorw("msg", "failed to read rate limit", "key", req.Key, "error", err)
		return nil, kerrors.ServiceUnavailable(ReasonStoreError, "rate limit store unavailable")
	}
	return &RateLimitReply{
		Key:         req.Key,
		RemainingMs: remaining.Milliseconds(),
		Allowed:     remaining <= 0,
	}, nil
}

func (s *OracleService) circuitError(name string, err error) error {
	if errors.Is(err, biz.ErrUnknownCircuit) {
		return kerrors.NotFound(ReasonCircuitNotFound, "unknown circuit: "+name).
			WithMetadata(map[string]string{"known": strings.Join(s.breakers.Names(), ",")})
	}
	s.logger.Errorw("msg", "circuit store error", "circuit", name, "error", err)
	return kerrors.ServiceUnavailable(ReasonStoreError, "circuit store unavailable")
}
