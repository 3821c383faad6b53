// Package config provides configuration loading and validation for fishex.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/fishex/pkg/fisher"
	"github.com/Sumatoshi-tech/fishex/pkg/report"
)

// Sentinel validation errors.
var (
	ErrInvalidAlpha       = errors.New("enrichment alpha must be in (0, 1]")
	ErrInvalidWorkers     = errors.New("enrichment workers must be positive")
	ErrInvalidCacheBudget = errors.New("invalid engine cache budget")
	ErrInvalidLogLevel    = errors.New("invalid logging level")
	ErrInvalidLogFormat   = errors.New("invalid logging format")
	ErrInvalidSampleRatio = errors.New("observability sample ratio must be in [0, 1]")
)

// Default configuration values.
const (
	DefaultAlternative     = fisher.GreaterName
	DefaultCacheBudget     = ""
	DefaultAlpha           = 0.05
	DefaultWorkers         = 1
	DefaultResetAfterBatch = true
	DefaultOutputFormat    = string(report.FormatTable)
	DefaultOutputColor     = true
	DefaultLogLevel        = "info"
	DefaultLogFormat       = LogFormatText
)

// Logging formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// EnvPrefix prefixes every environment override, e.g. FISHEX_ENRICHMENT_ALPHA.
const EnvPrefix = "FISHEX"

// Config holds all configuration for fishex.
type Config struct {
	Engine        EngineConfig        `mapstructure:"engine"`
	Enrichment    EnrichmentConfig    `mapstructure:"enrichment"`
	Output        OutputConfig        `mapstructure:"output"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// EngineConfig holds exact-test engine configuration.
type EngineConfig struct {
	Alternative string `mapstructure:"alternative"`

	// CacheBudget bounds the log-factorial cache, e.g. "64MiB". Empty is unbounded.
	CacheBudget string `mapstructure:"cache_budget"`
}

// EnrichmentConfig holds batch runner configuration.
type EnrichmentConfig struct {
	Alpha           float64 `mapstructure:"alpha"`
	Workers         int     `mapstructure:"workers"`
	ResetAfterBatch bool    `mapstructure:"reset_after_batch"`
}

// OutputConfig holds report rendering configuration.
type OutputConfig struct {
	Format          string `mapstructure:"format"`
	SignificantOnly bool   `mapstructure:"significant_only"`
	Color           bool   `mapstructure:"color"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig holds telemetry export configuration.
type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`

	// MetricsAddr serves Prometheus /metrics when set, e.g. ":9090".
	MetricsAddr string `mapstructure:"metrics_addr"`

	// SampleRatio samples root spans by trace ID. Zero leaves sampling to
	// OTEL_TRACES_SAMPLER.
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	// Set defaults.
	setDefaults(viperCfg)

	// Read config file.
	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("fishex")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/fishex")
	}

	// Read environment variables.
	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := config.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Engine defaults.
	viperCfg.SetDefault("engine.alternative", DefaultAlternative)
	viperCfg.SetDefault("engine.cache_budget", DefaultCacheBudget)

	// Enrichment defaults.
	viperCfg.SetDefault("enrichment.alpha", DefaultAlpha)
	viperCfg.SetDefault("enrichment.workers", DefaultWorkers)
	viperCfg.SetDefault("enrichment.reset_after_batch", DefaultResetAfterBatch)

	// Output defaults.
	viperCfg.SetDefault("output.format", DefaultOutputFormat)
	viperCfg.SetDefault("output.significant_only", false)
	viperCfg.SetDefault("output.color", DefaultOutputColor)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	// Observability defaults.
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.metrics_addr", "")
	viperCfg.SetDefault("observability.sample_ratio", 0.0)
}

// Validate checks every section and reports the first problem found.
// Command-line overrides should be applied before calling it.
func (c *Config) Validate() error {
	_, err := fisher.ParseAlternative(c.Engine.Alternative)
	if err != nil {
		return fmt.Errorf("engine alternative: %w", err)
	}

	_, err = c.Engine.CacheMaxEntries()
	if err != nil {
		return err
	}

	if math.IsNaN(c.Enrichment.Alpha) || c.Enrichment.Alpha <= 0 || c.Enrichment.Alpha > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidAlpha, c.Enrichment.Alpha)
	}

	if c.Enrichment.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Enrichment.Workers)
	}

	_, err = report.ParseFormat(c.Output.Format)
	if err != nil {
		return err
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	if c.Logging.Format != LogFormatText && c.Logging.Format != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	ratio := c.Observability.SampleRatio
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, ratio)
	}

	return nil
}

// CacheMaxEntries converts CacheBudget into a log-factorial table length.
// Zero means unbounded.
func (e EngineConfig) CacheMaxEntries() (int, error) {
	if strings.TrimSpace(e.CacheBudget) == "" {
		return 0, nil
	}

	budget, err := humanize.ParseBytes(e.CacheBudget)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCacheBudget, err)
	}

	if budget > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s is too large", ErrInvalidCacheBudget, e.CacheBudget)
	}

	return fisher.MaxEntriesForBytes(int64(budget)), nil
}
