package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"OracleGate/internal/model"
	plog "OracleGate/pkg/log"
	"OracleGate/pkg/metrics"
	"OracleGate/pkg/payload"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Workflow step names, in execution order.
const (
	StepValidation   = "validation"
	StepRateLimit    = "rateLimit"
	StepDataProvider = "dataProvider"
	StepAnalyzer     = "analyzer"
	StepSigner       = "signer"
	StepOracleUpdate = "oracleUpdate"
	StepCCIPResponse = "ccipResponse"
)

// StepStatus is the outcome of one workflow step.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusSkipped StepStatus = "skipped"
	StepStatusError   StepStatus = "error"
)

// minSuccessRate is the fraction of chains that must answer for the data to be used.
const minSuccessRate = 0.5

// analyzerConfidenceThreshold is passed to every analyzer call.
const analyzerConfidenceThreshold = 0.5

// StepResult records one step. Fields holds step specific values such as the
// provider name or the transaction hash, and is flattened into the JSON object.
type StepResult struct {
	Status     StepStatus
	DurationMs int64
	Error      string
	Fields     map[string]interface{}
}

func (s *StepResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Fields)+3)
	for k, v := range s.Fields {
		out[k] = v
	}
	out["status"] = s.Status
	out["duration"] = s.DurationMs
	if s.Error != "" {
		out["error"] = s.Error
	}
	return json.Marshal(out)
}

// ExecutionContext is the trace of one orchestrator invocation.
type ExecutionContext struct {
	ExecutionID  string                 `json:"executionId"`
	StartTime    time.Time              `json:"startTime"`
	Input        *model.QueryRequest    `json:"input,omitempty"`
	SourceModule string                 `json:"sourceModule"`
	MessageID    string                 `json:"messageId,omitempty"`
	Steps        map[string]*StepResult `json:"steps"`
}

// ResultData holds the artifacts of a workflow.
type ResultData struct {
	ProviderOutput *model.ProviderOutput `json:"providerOutput,omitempty"`
	AnalyzerOutput *model.AnalyzerOutput `json:"analyzerOutput,omitempty"`
	SignerOutput   *model.SignerOutput   `json:"signerOutput,omitempty"`
	EncodedValue   string                `json:"encodedValue,omitempty"`
	TxHash         string                `json:"txHash,omitempty"`
}

// ResultError describes the error that aborted a workflow.
type ResultError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
}

// OrchestratorResult is returned for every invocation, successful or not.
type OrchestratorResult struct {
	Success     bool              `json:"success"`
	ExecutionID string            `json:"executionId"`
	Data        *ResultData       `json:"data,omitempty"`
	Error       *ResultError      `json:"error,omitempty"`
	Context     *ExecutionContext `json:"context"`
}

// OracleContract writes signed values on chain and answers cross-chain requests.
type OracleContract interface {
	UpdateData(ctx context.Context, key, value, schemaHash string) (model.PendingTx, error)
	SendResponse(ctx context.Context, messageID, key string) (model.PendingTx, error)
}

// WorkflowOrchestrator runs the query pipeline: validation, rate limiting,
// data fetch, optional analysis, signing and the optional oracle update.
type WorkflowOrchestrator struct {
	validator Validator
	limiter   *RateLimiterUseCase
	providers *ProviderFactory
	analyzers AnalyzerFactory
	signers   *SignerFactory
	oracle    OracleContract
	metrics   *metrics.Metrics
	log       *plog.LogHelper
	now       func() time.Time
}

// NewWorkflowOrchestrator wires the pipeline. oracle may be nil, in which case
// the oracleUpdate step is skipped.
func NewWorkflowOrchestrator(
	validator Validator,
	limiter *RateLimiterUseCase,
	providers *ProviderFactory,
	analyzers AnalyzerFactory,
	signers *SignerFactory,
	oracle OracleContract,
	m *metrics.Metrics,
	logger log.Logger,
) *WorkflowOrchestrator {
	return &WorkflowOrchestrator{
		validator: validator,
		limiter:   limiter,
		providers: providers,
		analyzers: analyzers,
		signers:   signers,
		oracle:    oracle,
		metrics:   m,
		log:       plog.NewLogHelper(log.With(logger, "module", "biz/orchestrator")),
		now:       time.Now,
	}
}

// HasOracle reports whether an oracle contract is configured.
func (o *WorkflowOrchestrator) HasOracle() bool {
	return o.oracle != nil
}

func newExecutionID(now time.Time) string {
	return fmt.Sprintf("exec_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}

// Execute runs the pipeline on a raw request body. It never returns an error:
// every failure is reported in the result together with the step trace.
func (o *WorkflowOrchestrator) Execute(ctx context.Context, raw []byte, sourceModule string) (result *OrchestratorResult) {
	start := o.now()
	ec := &ExecutionContext{
		ExecutionID:  newExecutionID(start),
		StartTime:    start.UTC(),
		SourceModule: sourceModule,
		Steps:        make(map[string]*StepResult),
	}

	if plog.GetRequestContext(ctx).RequestID == "unknown" {
		ctx = plog.WithRequestContext(ctx, plog.GenerateRequestID(), sourceModule)
	}
	plog.SetExecution(ctx, ec.ExecutionID, "")

	o.log.Workflow("workflow execution started",
		"event", model.EventWorkflowStart,
		"execution_id", ec.ExecutionID,
		"source_module", sourceModule)

	// Steps recover their own panics; this catches the code between them.
	defer func() {
		if r := recover(); r != nil {
			result = o.fail(ec, "", fmt.Errorf("workflow panicked: %v", r), start)
		}
	}()

	data, failedStep, err := o.run(ctx, ec, raw)
	if err != nil {
		return o.fail(ec, failedStep, err, start)
	}

	total := o.now().Sub(start)
	o.metrics.ObserveWorkflow(true, "", total.Seconds())
	o.log.Workflow("workflow execution completed",
		"event", model.EventWorkflowSuccess,
		"execution_id", ec.ExecutionID,
		"total_duration_ms", total.Milliseconds())

	return &OrchestratorResult{
		Success:     true,
		ExecutionID: ec.ExecutionID,
		Data:        data,
		Context:     ec,
	}
}

func (o *WorkflowOrchestrator) fail(ec *ExecutionContext, step string, err error, start time.Time) *OrchestratorResult {
	errType := ClassifyError(err)
	total := o.now().Sub(start)
	o.metrics.ObserveWorkflow(false, errType, total.Seconds())
	o.log.Errorw("msg", "workflow execution failed",
		"event", model.EventWorkflowError,
		"execution_id", ec.ExecutionID,
		"step", step,
		"error_type", errType,
		"error", err,
		"total_duration_ms", total.Milliseconds())

	return &OrchestratorResult{
		Success:     false,
		ExecutionID: ec.ExecutionID,
		Error: &ResultError{
			Type:    errType,
			Message: err.Error(),
			Step:    step,
		},
		Context: ec,
	}
}

// run executes the steps in order and stops at the first error, returning the
// name of the step that failed.
func (o *WorkflowOrchestrator) run(ctx context.Context, ec *ExecutionContext, raw []byte) (*ResultData, string, error) {
	var input *model.QueryRequest
	if err := o.step(ctx, ec, StepValidation, func(context.Context) (map[string]interface{}, error) {
		req, err := o.validator.Validate(raw)
		if err != nil {
			return nil, err
		}
		input = req
		return nil, nil
	}); err != nil {
		return nil, StepValidation, err
	}
	ec.Input = input
	ec.MessageID = input.MessageID()
	plog.SetExecution(ctx, ec.ExecutionID, ec.MessageID)

	timeoutMs := input.Options.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeoutMs
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	if err := o.step(ctx, ec, StepRateLimit, func(ctx context.Context) (map[string]interface{}, error) {
		return nil, o.limiter.Consume(ctx, input.Key)
	}); err != nil {
		return nil, StepRateLimit, err
	}

	data := &ResultData{}

	if err := o.step(ctx, ec, StepDataProvider, func(ctx context.Context) (map[string]interface{}, error) {
		out, err := o.fetch(ctx, input)
		if err != nil {
			return nil, err
		}
		data.ProviderOutput = out
		return map[string]interface{}{
			"provider":    out.Metadata.Provider,
			"successRate": out.Metadata.EffectiveSuccessRate(),
		}, nil
	}); err != nil {
		return nil, StepDataProvider, err
	}

	if input.IncludeAnalysis {
		if err := o.step(ctx, ec, StepAnalyzer, func(ctx context.Context) (map[string]interface{}, error) {
			out, err := o.analyzers.GetAnalyzer(input.SchemaHash).Analyze(ctx, &model.AnalyzerInput{
				Data:       data.ProviderOutput,
				SchemaHash: input.SchemaHash,
				Options: model.AnalyzerOptions{
					IncludeReasoning:    true,
					ConfidenceThreshold: analyzerConfidenceThreshold,
				},
			})
			if err != nil {
				return nil, err
			}
			if err := ValidateAnalyzerOutput(out); err != nil {
				return nil, err
			}
			data.AnalyzerOutput = out
			return map[string]interface{}{"confidence": out.Confidence}, nil
		}); err != nil {
			return nil, StepAnalyzer, err
		}
	} else {
		o.skip(ctx, ec, StepAnalyzer)
	}

	var toEncode interface{} = data.ProviderOutput
	if data.AnalyzerOutput != nil {
		toEncode = data.AnalyzerOutput
	}
	encoded, err := payload.EncodeValue(toEncode)
	if err != nil {
		return nil, "encode", fmt.Errorf("encode payload: %w", err)
	}
	data.EncodedValue = encoded

	if err := o.step(ctx, ec, StepSigner, func(ctx context.Context) (map[string]interface{}, error) {
		out, err := o.signers.SignWithFallback(ctx, &model.SignPayload{
			Key:        input.Key,
			Value:      encoded,
			SchemaHash: input.SchemaHash,
			Timestamp:  o.now().Unix(),
		})
		if err != nil {
			return nil, err
		}
		if err := ValidateSignerOutput(out); err != nil {
			return nil, err
		}
		data.SignerOutput = out
		return map[string]interface{}{"signingTime": out.SigningTimeMs}, nil
	}); err != nil {
		return nil, StepSigner, err
	}

	if o.oracle == nil {
		o.skip(ctx, ec, StepOracleUpdate)
		return data, "", nil
	}

	if err := o.step(ctx, ec, StepOracleUpdate, func(ctx context.Context) (map[string]interface{}, error) {
		tx, err := o.oracle.UpdateData(ctx, input.Key, encoded, input.SchemaHash)
		if err != nil {
			return nil, err
		}
		receipt, err := tx.Wait(ctx)
		if err != nil {
			return nil, err
		}
		if receipt.Status != model.ReceiptStatusSuccessful {
			return nil, &ContractRevertError{Operation: "Oracle update", TxHash: tx.Hash()}
		}
		data.TxHash = tx.Hash()
		return map[string]interface{}{
			"txHash":  tx.Hash(),
			"gasUsed": strconv.FormatUint(receipt.GasUsed, 10),
		}, nil
	}); err != nil {
		return nil, StepOracleUpdate, err
	}

	if ec.MessageID == "" {
		return data, "", nil
	}

	if err := o.step(ctx, ec, StepCCIPResponse, func(ctx context.Context) (map[string]interface{}, error) {
		tx, err := o.oracle.SendResponse(ctx, ec.MessageID, input.Key)
		if err != nil {
			return nil, err
		}
		receipt, err := tx.Wait(ctx)
		if err != nil {
			return nil, err
		}
		if receipt.Status != model.ReceiptStatusSuccessful {
			return nil, &ContractRevertError{Operation: "CCIP sendResponse", TxHash: tx.Hash()}
		}
		return map[string]interface{}{"txHash": tx.Hash()}, nil
	}); err != nil {
		return nil, StepCCIPResponse, err
	}

	return data, "", nil
}

// fetch queries the providers and applies the output checks and the
// success-rate gate.
func (o *WorkflowOrchestrator) fetch(ctx context.Context, input *model.QueryRequest) (*model.ProviderOutput, error) {
	q := &model.ProviderQuery{
		Key:        input.Key,
		Chains:     append([]string(nil), input.Chains...),
		SchemaHash: input.SchemaHash,
	}

	var (
		out *model.ProviderOutput
		err error
	)
	if input.Options.FallbackProviders {
		out, err = o.providers.QueryWithFallback(ctx, q)
	} else {
		out, err = o.providers.QueryPrimary(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	if err := ValidateProviderOutput(out); err != nil {
		return nil, err
	}
	if rate := out.Metadata.EffectiveSuccessRate(); rate < minSuccessRate {
		return nil, &InsufficientDataError{SuccessRate: rate}
	}
	return out, nil
}

// step runs fn, records its outcome under name and returns fn's error.
func (o *WorkflowOrchestrator) step(ctx context.Context, ec *ExecutionContext, name string, fn func(context.Context) (map[string]interface{}, error)) error {
	start := o.now()
	fields, err := runStep(ctx, fn)
	elapsed := o.now().Sub(start)

	res := &StepResult{
		Status:     StepStatusSuccess,
		DurationMs: elapsed.Milliseconds(),
		Fields:     fields,
	}
	if err != nil {
		res.Status = StepStatusError
		res.Error = err.Error()
		res.Fields = nil
	}
	ec.Steps[name] = res

	o.metrics.ObserveStep(name, string(res.Status), elapsed.Seconds())
	kvs := []interface{}{"event", stepEvent(name, err)}
	for k, v := range fields {
		kvs = append(kvs, k, v)
	}
	if err != nil {
		kvs = append(kvs, "error", err)
	}
	o.log.StepCompleted(ctx, name, string(res.Status), res.DurationMs, kvs...)
	return err
}

// runStep turns a panic in fn into the step's error.
func runStep(ctx context.Context, fn func(context.Context) (map[string]interface{}, error)) (fields map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			fields, err = nil, fmt.Errorf("step panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (o *WorkflowOrchestrator) skip(ctx context.Context, ec *ExecutionContext, name string) {
	ec.Steps[name] = &StepResult{Status: StepStatusSkipped}
	o.metrics.ObserveStep(name, string(StepStatusSkipped), 0)
	o.log.StepCompleted(ctx, name, string(StepStatusSkipped), 0)
}

func stepEvent(step string, err error) string {
	if err != nil {
		if step == StepRateLimit && ClassifyError(err) == ErrorTypeRateLimitExceeded {
			return model.EventRateLimitExceeded
		}
		return model.EventWorkflowError
	}
	switch step {
	case StepValidation:
		return model.EventValidationSuccess
	case StepRateLimit:
		return model.EventRateLimitOK
	case StepDataProvider:
		return model.EventDataFetchSuccess
	case StepAnalyzer:
		return model.EventAnalysisSuccess
	case StepSigner:
		return model.EventSignSuccess
	case StepOracleUpdate:
		return model.EventOracleUpdated
	case StepCCIPResponse:
		return model.EventCCIPResponse
	}
	return ""
}
