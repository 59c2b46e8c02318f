// Command receipt-lookup serves the customer-service receipt search API.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/receipt-lookup/internal/config"
	"github.com/Aleph-Alpha/receipt-lookup/v1/cache"
	"github.com/Aleph-Alpha/receipt-lookup/v1/credential"
	"github.com/Aleph-Alpha/receipt-lookup/v1/embedding"
	"github.com/Aleph-Alpha/receipt-lookup/v1/httpapi"
	"github.com/Aleph-Alpha/receipt-lookup/v1/logger"
	"github.com/Aleph-Alpha/receipt-lookup/v1/metrics"
	"github.com/Aleph-Alpha/receipt-lookup/v1/pool"
	"github.com/Aleph-Alpha/receipt-lookup/v1/qdrant"
	"github.com/Aleph-Alpha/receipt-lookup/v1/reasoning"
	"github.com/Aleph-Alpha/receipt-lookup/v1/receipt"
	"github.com/Aleph-Alpha/receipt-lookup/v1/search"
	"github.com/Aleph-Alpha/receipt-lookup/v1/tracer"
)

var version = "dev"

func main() {
	fs := ff.NewFlagSet("receipt-lookup")
	var (
		envFile     = fs.StringLong("env-file", ".env", "dotenv file read before the environment")
		httpAddr    = fs.StringLong("http-addr", "", "API listen address (overrides HTTP_ADDRESS)")
		metricsAddr = fs.StringLong("metrics-addr", "", "metrics listen address (overrides METRICS_ADDRESS)")
		logLevel    = fs.StringLong("log-level", "", "debug, info, warning or error (overrides ZAP_LOGGER_LEVEL)")
		showVersion = fs.BoolLong("version", "print the version and exit")
	)

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("RECEIPT_LOOKUP")); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTP.Address = *httpAddr
	}
	if *metricsAddr != "" {
		cfg.Metrics.Address = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Logger.Level = *logLevel
	}

	fx.New(options(cfg)...).Run()
}

// options composes the application. Order of the modules does not matter
// to fx; it follows the dependency chain for readability.
func options(cfg *config.Config) []fx.Option {
	return []fx.Option{
		fx.Supply(
			cfg.Logger,
			cfg.Tracer,
			cfg.Metrics,
			cfg.Credential,
			cfg.Pool,
			cfg.Cache,
			cfg.Embedding,
			cfg.Reasoning,
			cfg.Qdrant,
			cfg.Search,
			cfg.HTTP,
		),
		logger.FXModule,
		tracer.FXModule,
		cache.FXModule,
		metrics.FXModule,
		credential.FXModule,
		pool.FXModule,
		receipt.FXModule,
		embedding.FXModule,
		reasoning.FXModule,
		qdrant.FXModule,
		fx.Provide(func(t *tracer.Tracer) search.Tracer { return t }),
		search.FXModule,
		httpapi.FXModule,
	}
}
