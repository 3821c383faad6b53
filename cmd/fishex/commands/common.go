// Package commands implements CLI command handlers for fishex.
package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/fishex/pkg/config"
	"github.com/Sumatoshi-tech/fishex/pkg/observability"
	"github.com/Sumatoshi-tech/fishex/pkg/version"
)

const flagConfig = "config"

// observabilityInit builds telemetry providers; tests substitute a stub.
type observabilityInit func(cfg observability.Config) (observability.Providers, error)

// RegisterPersistentFlags adds the flags every subcommand understands.
func RegisterPersistentFlags(root *cobra.Command) {
	root.PersistentFlags().String(flagConfig, "", "Config file (default: fishex.yaml in ., ./config or /etc/fishex)")
}

// loadConfig reads the file named by --config. Flag overrides are applied by
// the caller, which then validates again.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		path = ""
	}

	return config.LoadConfig(path)
}

func observabilityConfig(cfg *config.Config, mode observability.AppMode) (observability.Config, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	obsCfg.Prometheus = cfg.Observability.MetricsAddr != ""
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.LogJSON = cfg.Logging.Format == config.LogFormatJSON

	level, err := observability.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return observability.Config{}, err
	}

	obsCfg.LogLevel = level

	return obsCfg, nil
}

// completeProviders fills the parts a partial (stubbed) Providers leaves nil.
func completeProviders(p observability.Providers) observability.Providers {
	if p.Tracer == nil {
		p.Tracer = nooptrace.NewTracerProvider().Tracer("fishex")
	}

	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	if p.Shutdown == nil {
		p.Shutdown = func(context.Context) error { return nil }
	}

	return p
}

func shutdownProviders(providers observability.Providers) {
	shutdownErr := providers.Shutdown(context.Background())
	if shutdownErr != nil {
		providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
	}
}
