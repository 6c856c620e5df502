package service

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"OracleGate/internal/biz"
	"OracleGate/internal/conf"
	"OracleGate/internal/data"
	"OracleGate/internal/model"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey        = "0x" + strings.Repeat("ab", 32)
	testSchemaHash = "0x" + strings.Repeat("cd", 32)
)

type stubSource struct{}

func (stubSource) Name() string { return "Goldsky" }

func (stubSource) FetchChain(_ context.Context, _ *model.ProviderQuery, chain string) (map[string]interface{}, error) {
	return map[string]interface{}{"chain": chain, "txCount": float64(10)}, nil
}

type stubSigner struct{}

func (stubSigner) Name() string { return "Lit" }

func (stubSigner) Sign(context.Context, *model.SignPayload) (*model.SignerOutput, error) {
	return &model.SignerOutput{Signature: "0x" + strings.Repeat("1b", 65), PublicKey: "0xpkp"}, nil
}

func newTestOracleService(t *testing.T) *OracleService {
	t.Helper()
	logger := log.DefaultLogger

	d, cleanup, err := data.NewData(&conf.Data{Store: &conf.Data_Store{Driver: conf.StoreMemory}}, logger)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	audit, auditCleanup := data.NewAuditLogger(d, logger)
	t.Cleanup(auditCleanup)
	breakers := biz.NewCircuitBreakerUsecase(nil, data.NewCircuitBreakerRepo(d, logger), audit, nil, logger)
	limiter := biz.NewRateLimiter(nil, data.NewRateLimitRepo(d, logger), nil, logger)

	retryCfg := biz.DefaultRetryConfig()
	retryCfg.MaxRetries = 0
	retry := biz.NewRetryPolicy(retryCfg, nil, nil, logger)

	validator, err := biz.NewRequestValidator()
	require.NoError(t, err)

	orchestrator := biz.NewWorkflowOrchestrator(
		validator,
		limiter,
		biz.NewProviderFactory(biz.NewDataProvider(stubSource{}, retry, 0, logger), nil, nil, logger),
		biz.NewDefaultAnalyzerFactory(nil, nil),
		biz.NewSignerFactory(conf.EnvTestnet, stubSigner{}, retry, 0, nil, nil, logger),
		nil,
		nil,
		logger,
	)
	return NewOracleService(&conf.App{SourceModule: "API_Gateway"}, orchestrator, breakers, limiter, logger)
}

func newTestHTTPServer(t *testing.T, svc *OracleService) *http.Server {
	t.Helper()
	srv := http.NewServer()
	RegisterOracleHTTPServer(srv, svc)
	return srv
}

func queryBody() string {
	return `{"key":"` + testKey + `","schemaHash":"` + testSchemaHash + `","chains":["base"]}`
}

func TestOracleService_Query(t *testing.T) {
	svc := newTestOracleService(t)

	res, err := svc.Query(context.Background(), &QueryRequest{Body: []byte(queryBody())})
	require.NoError(t, err)
	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, "API_Gateway", res.Context.SourceModule)

	res, err = svc.Query(context.Background(), &QueryRequest{Body: []byte(queryBody()), SourceModule: "CCIP_Receiver"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, biz.ErrorTypeRateLimitExceeded, res.Error.Type)
	assert.Equal(t, "CCIP_Receiver", res.Context.SourceModule)
}

func TestOracleService_GetCircuit(t *testing.T) {
	svc := newTestOracleService(t)

	reply, err := svc.GetCircuit(context.Background(), &CircuitRequest{Name: biz.BreakerLit})
	require.NoError(t, err)
	assert.Equal(t, biz.BreakerLit, reply.Name)
	assert.Equal(t, model.CircuitClosed, reply.State)

	_, err = svc.GetCircuit(context.Background(), &CircuitRequest{Name: "openai"})
	require.Error(t, err)
	assert.True(t, kerrors.IsNotFound(err))
	assert.Equal(t, ReasonCircuitNotFound, kerrors.Reason(err))
}

func TestOracleService_ResetCircuit(t *testing.T) {
	svc := newTestOracleService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = svc.breakers.Get(biz.BreakerGoldsky).Execute(ctx, func(context.Context) error {
			return assert.AnError
		})
	}

	before, err := svc.GetCircuit(ctx, &CircuitRequest{Name: biz.BreakerGoldsky})
	require.NoError(t, err)
	assert.Equal(t, model.CircuitOpen, before.State)

	after, err := svc.ResetCircuit(ctx, &CircuitRequest{Name: biz.BreakerGoldsky})
	require.NoError(t, err)
	assert.Equal(t, model.CircuitClosed, after.State)
	assert.Equal(t, 0, after.FailureCount)

	_, err = svc.ResetCircuit(ctx, &CircuitRequest{Name: "openai"})
	assert.True(t, kerrors.IsNotFound(err))
}

func TestOracleService_GetRateLimit(t *testing.T) {
	svc := newTestOracleService(t)
	ctx := context.Background()

	reply, err := svc.GetRateLimit(ctx, &RateLimitRequest{Key: testKey})
	require.NoError(t, err)
	assert.True(t, reply.Allowed)
	assert.Equal(t, int64(0), reply.RemainingMs)

	require.NoError(t, svc.limiter.Consume(ctx, testKey))

	reply, err = svc.GetRateLimit(ctx, &RateLimitRequest{Key: testKey})
	require.NoError(t, err)
	assert.False(t, reply.Allowed)
	assert.Greater(t, reply.RemainingMs, int64(0))

	_, err = svc.GetRateLimit(ctx, &RateLimitRequest{})
	assert.True(t, kerrors.IsBadRequest(err))
}

func TestOracleHTTP_Query(t *testing.T) {
	srv := newTestHTTPServer(t, newTestOracleService(t))

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/query", bytes.NewBufferString(queryBody()))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SourceModuleHeader, "CCIP_Receiver")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	ec := body["context"].(map[string]interface{})
	assert.Equal(t, "CCIP_Receiver", ec["sourceModule"])
	steps := ec["steps"].(map[string]interface{})
	assert.Equal(t, "skipped", steps["oracleUpdate"].(map[string]interface{})["status"])
}

func TestOracleHTTP_QueryFailureIsStill200(t *testing.T) {
	srv := newTestHTTPServer(t, newTestOracleService(t))

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/query", bytes.NewBufferString(`{"chains":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, biz.ErrorTypeValidation, body["error"].(map[string]interface{})["type"])
}

func TestOracleHTTP_Circuits(t *testing.T) {
	srv := newTestHTTPServer(t, newTestOracleService(t))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/v1/circuits/claude", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	var circuit map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &circuit))
	assert.Equal(t, "claude", circuit["name"])
	assert.Equal(t, "CLOSED", circuit["state"])

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/v1/circuits/unknown", nil))
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodPost, "/v1/circuits/claude/reset", nil))
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/v1/circuits", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var list ListCircuitsReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Circuits, 4)
}

func TestOracleHTTP_RateLimit(t *testing.T) {
	srv := newTestHTTPServer(t, newTestOracleService(t))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/v1/ratelimit/"+testKey, nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)

	var reply RateLimitReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, testKey, reply.Key)
	assert.True(t, reply.Allowed)
}
