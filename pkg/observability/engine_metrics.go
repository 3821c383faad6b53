package observability

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRunsTotal            = "fishex.runs.total"
	metricRunDuration          = "fishex.run.duration.seconds"
	metricTestsTotal           = "fishex.tests.total"
	metricSignificantTotal     = "fishex.significant.total"
	metricCacheExtensionsTotal = "fishex.cache.extensions.total"
	metricCacheEntries         = "fishex.cache.entries"
	metricCacheExtensions      = "fishex.cache.extensions"

	attrAlternative = "alternative"
	attrStatus      = "status"
	attrCache       = "cache"

	statusOK    = "ok"
	statusError = "error"
)

// durationBucketBoundaries covers 1ms to 10 minutes, from a single table to
// genome-wide batches with millions of features.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 600} //nolint:gochecknoglobals // histogram layout.

// EngineMetrics holds the OTel instruments recorded once per test run.
type EngineMetrics struct {
	runsTotal       metric.Int64Counter
	runDuration     metric.Float64Histogram
	testsTotal      metric.Int64Counter
	significant     metric.Int64Counter
	cacheExtensions metric.Int64Counter
}

// RunStats summarizes one command invocation, decoupled from engine types.
type RunStats struct {
	Alternative     string
	Tests           int
	Significant     int
	CacheExtensions int64
	Duration        time.Duration
	Err             error
}

// NewEngineMetrics creates the engine instruments from the given meter.
func NewEngineMetrics(mt metric.Meter) (*EngineMetrics, error) {
	b := newMetricBuilder(mt)

	em := &EngineMetrics{
		runsTotal:       b.counter(metricRunsTotal, "Test runs by alternative and status", "{run}"),
		runDuration:     b.histogram(metricRunDuration, "Run duration in seconds", "s", durationBucketBoundaries...),
		testsTotal:      b.counter(metricTestsTotal, "Exact tests performed", "{test}"),
		significant:     b.counter(metricSignificantTotal, "Features passing the corrected threshold", "{feature}"),
		cacheExtensions: b.counter(metricCacheExtensionsTotal, "Log-factorial table extensions", "{extension}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return em, nil
}

// RecordRun records a completed run. Safe to call on a nil receiver (no-op).
func (em *EngineMetrics) RecordRun(ctx context.Context, stats RunStats) {
	if em == nil {
		return
	}

	status := statusOK
	if stats.Err != nil {
		status = statusError
	}

	altAttr := attribute.String(attrAlternative, stats.Alternative)
	attrs := metric.WithAttributes(altAttr)

	em.runsTotal.Add(ctx, 1, metric.WithAttributes(altAttr, attribute.String(attrStatus, status)))
	em.runDuration.Record(ctx, stats.Duration.Seconds(), attrs)

	if stats.Err != nil {
		return
	}

	em.testsTotal.Add(ctx, int64(stats.Tests), attrs)
	em.significant.Add(ctx, int64(stats.Significant), attrs)
	em.cacheExtensions.Add(ctx, stats.CacheExtensions)
}

// CacheStatsProvider exposes live log-factorial cache counters.
type CacheStatsProvider interface {
	CacheEntries() int64
	CacheExtensions() int64
}

// RegisterCacheMetrics reports the entries and extensions of every named
// cache as observable gauges, labelled by cache name. Nil providers are
// skipped.
func RegisterCacheMetrics(mt metric.Meter, caches map[string]CacheStatsProvider) error {
	names := slices.Sorted(maps.Keys(caches))
	names = slices.DeleteFunc(names, func(name string) bool { return caches[name] == nil })

	if len(names) == 0 {
		return nil
	}

	b := newMetricBuilder(mt)
	entries := b.gauge(metricCacheEntries, "Cached log-factorial entries", "{entry}")
	extensions := b.gauge(metricCacheExtensions, "Log-factorial table extensions since creation", "{extension}")

	if b.err != nil {
		return b.err
	}

	_, err := mt.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, name := range names {
			attrs := metric.WithAttributes(attribute.String(attrCache, name))
			o.ObserveInt64(entries, caches[name].CacheEntries(), attrs)
			o.ObserveInt64(extensions, caches[name].CacheExtensions(), attrs)
		}

		return nil
	}, entries, extensions)
	if err != nil {
		return fmt.Errorf("register cache callback: %w", err)
	}

	return nil
}
