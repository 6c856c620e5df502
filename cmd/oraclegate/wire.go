//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"OracleGate/internal/biz"
	"OracleGate/internal/conf"
	"OracleGate/internal/data"
	"OracleGate/internal/server"
	"OracleGate/internal/service"
	"OracleGate/pkg/metrics"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// wireApp init kratos application.
func wireApp(*conf.App, *conf.Server, *conf.Data, *conf.Resilience, *conf.Provider, *conf.Signer, *conf.Analyzer, *conf.Oracle, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newMetrics,
		newMaintenance,
		newApp,
	))
}

// newMetrics registers the collectors on the default registry served by /metrics.
func newMetrics() *metrics.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}
