package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Sumatoshi-tech/fishex/pkg/config"
	"github.com/Sumatoshi-tech/fishex/pkg/enrichment"
	"github.com/Sumatoshi-tech/fishex/pkg/featureio"
	"github.com/Sumatoshi-tech/fishex/pkg/fisher"
	"github.com/Sumatoshi-tech/fishex/pkg/observability"
	"github.com/Sumatoshi-tech/fishex/pkg/report"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 2 * time.Second
)

// EnrichCommand tests every feature of an input file as one Bonferroni family.
type EnrichCommand struct {
	inputFormat     string
	alternative     string
	alpha           float64
	workers         int
	format          string
	output          string
	cacheBudget     string
	metricsAddr     string
	significantOnly bool
	noColor         bool
	keepCache       bool

	obsInit observabilityInit
}

// NewEnrichCommand creates the enrich command.
func NewEnrichCommand() *cobra.Command {
	return newEnrichCommandWithDeps(observability.Init)
}

func newEnrichCommandWithDeps(obsInit observabilityInit) *cobra.Command {
	ec := &EnrichCommand{obsInit: obsInit}

	cmd := &cobra.Command{
		Use:   "enrich <input|->",
		Short: "Test every feature of a table file with Bonferroni correction",
		Long: `Read 2x2 tables per feature and report which features pass the
Bonferroni-corrected threshold alpha/tests.

Input formats:
  tsv     name a b c d per line, '#' comments, optional header
  jsonl   {"name": ..., "a": ..., "b": ..., "c": ..., "d": ...} per line
  sets    {"found": [...], "enriched": [...], "annotations": {"item": ["feature"]}}
  counts  {"target": {...}, "background": {...}, "target_total": n, "background_total": n}

Inputs ending in .gz, .lz4 or .zst are decompressed on the fly.`,
		Example: `  fishex enrich features.tsv.gz -a greater --alpha 0.01
  fishex enrich kegg_sets.json -f json -o report.json --workers 4`,
		Args: cobra.ExactArgs(1),
		RunE: ec.run,
	}

	cmd.Flags().StringVar(&ec.inputFormat, "input-format", "", "Input format: tsv, jsonl, sets, counts (default: from file name)")
	cmd.Flags().StringVarP(&ec.alternative, "alternative", "a", "", "Alternative hypothesis: greater, less, two-sided")
	cmd.Flags().Float64Var(&ec.alpha, "alpha", config.DefaultAlpha, "Family-wise significance level")
	cmd.Flags().IntVar(&ec.workers, "workers", config.DefaultWorkers, "Parallel workers, each with its own log-factorial cache")
	cmd.Flags().StringVarP(&ec.format, "format", "f", config.DefaultOutputFormat, "Output format: table, json, yaml, tsv")
	cmd.Flags().StringVarP(&ec.output, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVar(&ec.cacheBudget, "cache-budget", "", "Log-factorial cache memory budget (e.g. '64MiB'; empty = unbounded)")
	cmd.Flags().StringVar(&ec.metricsAddr, "metrics-addr", "", "Serve Prometheus /metrics on this address while running (e.g. ':9090')")
	cmd.Flags().BoolVar(&ec.significantOnly, "significant-only", false, "Only report features passing the threshold")
	cmd.Flags().BoolVar(&ec.noColor, "no-color", false, "Disable colored table output")
	cmd.Flags().BoolVar(&ec.keepCache, "keep-cache", false, "Keep the log-factorial cache after the batch")

	return cmd
}

// applyFlags overrides config values with the flags the user set.
func (ec *EnrichCommand) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("alternative") {
		cfg.Engine.Alternative = ec.alternative
	}

	if flags.Changed("cache-budget") {
		cfg.Engine.CacheBudget = ec.cacheBudget
	}

	if flags.Changed("alpha") {
		cfg.Enrichment.Alpha = ec.alpha
	}

	if flags.Changed("workers") {
		cfg.Enrichment.Workers = ec.workers
	}

	if flags.Changed("keep-cache") {
		cfg.Enrichment.ResetAfterBatch = !ec.keepCache
	}

	if flags.Changed("format") {
		cfg.Output.Format = ec.format
	}

	if flags.Changed("significant-only") {
		cfg.Output.SignificantOnly = ec.significantOnly
	}

	if ec.noColor {
		cfg.Output.Color = false
	}

	if flags.Changed("metrics-addr") {
		cfg.Observability.MetricsAddr = ec.metricsAddr
	}

	return cfg.Validate()
}

func (ec *EnrichCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	err = ec.applyFlags(cmd, cfg)
	if err != nil {
		return err
	}

	obsCfg, err := observabilityConfig(cfg, observability.ModeBatch)
	if err != nil {
		return err
	}

	providers, err := ec.obsInit(obsCfg)
	if err != nil {
		return err
	}

	providers = completeProviders(providers)
	defer shutdownProviders(providers)

	stopMetrics, err := serveMetrics(cfg.Observability.MetricsAddr, providers)
	if err != nil {
		return err
	}

	defer stopMetrics()

	return ec.enrich(cmd, args[0], cfg, providers)
}

func (ec *EnrichCommand) enrich(cmd *cobra.Command, input string, cfg *config.Config, providers observability.Providers) error {
	alt, err := fisher.ParseAlternative(cfg.Engine.Alternative)
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	maxEntries, err := cfg.Engine.CacheMaxEntries()
	if err != nil {
		return err
	}

	runner, err := enrichment.NewRunner(enrichment.Options{
		Alternative:     alt,
		Alpha:           cfg.Enrichment.Alpha,
		Workers:         cfg.Enrichment.Workers,
		ResetAfterBatch: cfg.Enrichment.ResetAfterBatch,
		CacheMaxEntries: maxEntries,
		Logger:          providers.Logger,
	})
	if err != nil {
		return err
	}

	var metrics *observability.EngineMetrics

	if providers.Meter != nil {
		metrics, err = observability.NewEngineMetrics(providers.Meter)
		if err != nil {
			return err
		}

		err = observability.RegisterCacheMetrics(providers.Meter, map[string]observability.CacheStatsProvider{
			"runner": runner.Cache(),
		})
		if err != nil {
			return err
		}
	}

	ctx, span := providers.Tracer.Start(cmd.Context(), "enrichment.run")
	defer span.End()

	start := time.Now()

	rep, err := ec.runInput(ctx, runner, input)

	stats := observability.RunStats{Alternative: alt.String(), Duration: time.Since(start), Err: err}
	if rep != nil {
		stats.Tests = rep.Tests
		stats.Significant = rep.Significant
		stats.CacheExtensions = rep.Cache.Extensions
	}

	metrics.RecordRun(ctx, stats)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}

	span.SetAttributes(attribute.Int("tests", rep.Tests), attribute.Int("significant", rep.Significant))
	logSummary(ctx, providers.Logger, input, rep, stats.Duration)

	return writeReport(cmd.OutOrStdout(), ec.output, rep, report.Options{
		Format:          format,
		SignificantOnly: cfg.Output.SignificantOnly,
		Color:           cfg.Output.Color && !color.NoColor,
	})
}

func (ec *EnrichCommand) runInput(ctx context.Context, runner *enrichment.Runner, input string) (*enrichment.Report, error) {
	format, err := ec.resolveInputFormat(input)
	if err != nil {
		return nil, err
	}

	rc, err := featureio.Open(input)
	if err != nil {
		return nil, err
	}

	defer rc.Close()

	var (
		features    iter.Seq2[enrichment.Feature, error]
		unannotated []string
	)

	switch {
	case format.Streaming():
		features = featureio.NewScanner(rc, format, featureio.WithSource(input)).All()
	case format == featureio.FormatSets:
		sets, readErr := featureio.ReadSets(rc)
		if readErr != nil {
			return nil, fmt.Errorf("%s: %w", input, readErr)
		}

		all, buildErr := sets.Features()
		if buildErr != nil {
			return nil, fmt.Errorf("%s: %w", input, buildErr)
		}

		features = enrichment.All(all)
		unannotated = sets.Unannotated()
	default:
		all, readErr := featureio.ReadFeatures(rc, format, input)
		if readErr != nil {
			return nil, fmt.Errorf("%s: %w", input, readErr)
		}

		features = enrichment.All(all)
	}

	rep, err := runner.Run(ctx, features)
	if err != nil {
		return nil, err
	}

	rep.Unannotated = unannotated

	return rep, nil
}

func (ec *EnrichCommand) resolveInputFormat(input string) (featureio.Format, error) {
	if ec.inputFormat != "" {
		return featureio.ParseFormat(ec.inputFormat)
	}

	if input == featureio.StdinPath {
		return featureio.FormatTSV, nil
	}

	return featureio.DetectFormat(input), nil
}

func logSummary(ctx context.Context, logger *slog.Logger, input string, rep *enrichment.Report, elapsed time.Duration) {
	logger.InfoContext(ctx, "enrichment done",
		"input", input,
		"alternative", rep.Alternative.String(),
		"tests", humanize.Comma(int64(rep.Tests)),
		"significant", rep.Significant,
		"threshold", rep.Threshold,
		"median_p", rep.MedianPValue(),
		"cache_entries", humanize.Comma(rep.Cache.Entries),
		"cache_memory", humanize.IBytes(uint64(max(rep.Cache.Bytes(), 0))),
		"cache_extensions", rep.Cache.Extensions,
		"cache_overflow", rep.Cache.Overflow,
		"unannotated", len(rep.Unannotated),
		"elapsed", elapsed.Round(time.Millisecond).String())
}

func writeReport(stdout io.Writer, path string, rep *enrichment.Report, opts report.Options) error {
	if path == "" {
		return report.Write(stdout, rep, opts)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	// Files never get terminal colors.
	opts.Color = false

	writeErr := report.Write(f, rep, opts)
	closeErr := f.Close()

	return errors.Join(writeErr, closeErr)
}

// serveMetrics exposes providers.MetricsHandler on addr for the duration of
// the command. It returns a stop function that is always safe to call.
func serveMetrics(addr string, providers observability.Providers) (func(), error) {
	if addr == "" || providers.MetricsHandler == nil {
		return func() {}, nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", providers.MetricsHandler)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: metricsReadHeaderTimeout}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			providers.Logger.Warn("metrics server stopped", "error", serveErr)
		}
	}()

	providers.Logger.Info("serving metrics", "addr", listener.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		shutdownErr := srv.Shutdown(ctx)
		if shutdownErr != nil {
			providers.Logger.Warn("metrics server shutdown failed", "error", shutdownErr)
		}
	}, nil
}
