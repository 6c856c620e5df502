package server

import (
	"OracleGate/internal/conf"
	"OracleGate/internal/server/middleware"
	"OracleGate/internal/service"
	pkglog "OracleGate/pkg/log"
	"OracleGate/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/middleware/selector"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, oracleService *service.OracleService, m *metrics.Metrics, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(log.With(logger, "module", "server/http"))

	var adminToken string
	if c != nil && c.Http != nil {
		adminToken = c.Http.AdminToken
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper, m),
			selector.Server(middleware.AdminAuth(adminToken, logHelper)).
				Path(service.OperationOracleResetCircuit).
				Build(),
		),
	}
	if c != nil && c.Http != nil {
		if c.Http.Network != "" {
			opts = append(opts, http.Network(c.Http.Network))
		}
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout != nil {
			opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)

	service.RegisterOracleHTTPServer(srv, oracleService)
	srv.Handle("/metrics", promhttp.Handler())

	return srv
}
