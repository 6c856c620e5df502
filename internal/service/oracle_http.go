package service

import (
	"context"
	"io"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names reported to middleware and metrics.
const (
	OperationOracleQuery        = "/oraclegate.v1.Oracle/Query"
	OperationOracleListCircuits = "/oraclegate.v1.Oracle/ListCircuits"
	OperationOracleGetCircuit   = "/oraclegate.v1.Oracle/GetCircuit"
	OperationOracleResetCircuit = "/oraclegate.v1.Oracle/ResetCircuit"
	OperationOracleGetRateLimit = "/oraclegate.v1.Oracle/GetRateLimit"
)

// SourceModuleHeader overrides the source module reported for a query.
const SourceModuleHeader = "X-Source-Module"

const maxQueryBodyBytes = 1 << 20

// RegisterOracleHTTPServer mounts the oracle routes on s.
func RegisterOracleHTTPServer(s *http.Server, srv *OracleService) {
	r := s.Route("/")
	r.POST("/v1/query", _Oracle_Query_HTTP_Handler(srv))
	r.GET("/v1/circuits", _Oracle_ListCircuits_HTTP_Handler(srv))
	r.GET("/v1/circuits/{name}", _Oracle_GetCircuit_HTTP_Handler(srv))
	r.POST("/v1/circuits/{name}/reset", _Oracle_ResetCircuit_HTTP_Handler(srv))
	r.GET("/v1/ratelimit/{key}", _Oracle_GetRateLimit_HTTP_Handler(srv))
}

func _Oracle_Query_HTTP_Handler(srv *OracleService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxQueryBodyBytes))
		if err != nil {
			return kerrors.BadRequest(ReasonInvalidArgument, "failed to read request body")
		}
		in := &QueryRequest{
			Body:         body,
			SourceModule: ctx.Request().Header.Get(SourceModuleHeader),
		}
		http.SetOperation(ctx, OperationOracleQuery)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Query(ctx, req.(*QueryRequest))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func _Oracle_ListCircuits_HTTP_Handler(srv *OracleService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		http.SetOperation(ctx, OperationOracleListCircuits)
		h := ctx.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return srv.ListCircuits(ctx)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func _Oracle_GetCircuit_HTTP_Handler(srv *OracleService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		in := &CircuitRequest{Name: ctx.Vars().Get("name")}
		http.SetOperation(ctx, OperationOracleGetCircuit)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetCircuit(ctx, req.(*CircuitRequest))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func _Oracle_ResetCircuit_HTTP_Handler(srv *OracleService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		in := &CircuitRequest{Name: ctx.Vars().Get("name")}
		http.SetOperation(ctx, OperationOracleResetCircuit)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.ResetCircuit(ctx, req.(*CircuitRequest))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func _Oracle_GetRateLimit_HTTP_Handler(srv *OracleService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		in := &RateLimitRequest{Key: ctx.Vars().Get("key")}
		http.SetOperation(ctx, OperationOracleGetRateLimit)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.GetRateLimit(ctx, req.(*RateLimitRequest))
		})
		out, err := h(ctx, in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}
