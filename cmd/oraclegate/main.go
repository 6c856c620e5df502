// Package main is the entry point of the OracleGate service.
// It initializes the Kratos application with the HTTP server and the maintenance cron.
package main

import (
	"flag"
	"os"

	"OracleGate/internal/conf"
	zapLogger "OracleGate/pkg/log"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/tracing"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/robfig/cron/v3"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "OracleGate"
	// Version is the version of the compiled software.
	Version string
	// flagconf is the config flag.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "", "config path, eg: -conf config.yaml")
}

// newApp takes the maintenance cron only so that wire builds it; its
// lifecycle is owned by the cleanup function.
func newApp(logger log.Logger, hs *http.Server, _ *cron.Cron) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
		),
	)
}

func main() {
	flag.Parse()

	// Defaults, then the config file, then environment variables.
	bc, err := conf.NewBootstrap(flagconf)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLog, err := zapLogger.NewZapLogger(bc.Log)
	if err != nil {
		log.Fatalf("failed to initialize zap logger: %v", err)
	}
	defer zapLog.Sync()

	logger := zapLogger.NewKratosAdapter(zapLog)
	logger = log.With(logger,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"trace.id", tracing.TraceID(),
		"span.id", tracing.SpanID(),
	)

	zapLogger.NewLogHelper(logger).Startup("OracleGate service starting",
		"environment", bc.App.Environment,
		"store", bc.Data.Store.Driver,
		"oracle_enabled", bc.Oracle.Enabled,
		"log.level", bc.Log.Level,
		"log.format", bc.Log.Format,
	)

	app, cleanup, err := wireApp(bc.App, bc.Server, bc.Data, bc.Resilience, bc.Provider, bc.Signer, bc.Analyzer, bc.Oracle, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// start and wait for stop signal
	if err := app.Run(); err != nil {
		panic(err)
	}
}
