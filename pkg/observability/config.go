// Package observability provides OpenTelemetry tracing, metrics, and
// trace-aware structured logging for the fishex commands.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// AppMode identifies the application execution mode.
type AppMode string

const (
	// ModeCLI is a single interactive test.
	ModeCLI AppMode = "cli"
	// ModeBatch is an enrichment batch over a feature file.
	ModeBatch AppMode = "batch"
)

const (
	// defaultServiceName is the default OTel service name.
	defaultServiceName = "fishex"

	// defaultShutdownTimeoutSec is the default shutdown timeout in seconds.
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "dev").
	Environment string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables OTLP export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// Prometheus attaches a pull exporter and exposes it as Providers.MetricsHandler.
	Prometheus bool

	// SampleRatio is the trace sampling ratio (0.0 to 1.0). Zero leaves the
	// choice to the SDK, which honors OTEL_TRACES_SAMPLER.
	SampleRatio float64

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// LogOutput receives log records. Nil means stderr.
	LogOutput io.Writer

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

// exporting reports whether any metric or trace exporter is configured.
func (c Config) exporting() bool {
	return c.OTLPEndpoint != "" || c.Prometheus
}

// ParseLogLevel parses debug, info, warn or error, case-insensitively.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(strings.TrimSpace(s)))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level: %w", err)
	}

	return level, nil
}
