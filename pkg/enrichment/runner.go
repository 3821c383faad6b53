// Package enrichment runs exact tests over a stream of features and applies a
// Bonferroni family-wise threshold to the batch.
package enrichment

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/fishex/pkg/alg/stats"
	"github.com/Sumatoshi-tech/fishex/pkg/fisher"
)

// Sentinel validation errors.
var (
	ErrInvalidAlpha   = errors.New("alpha must be in (0, 1]")
	ErrInvalidWorkers = errors.New("workers must be positive")
)

// DefaultAlpha is the family-wise significance level used when none is set.
const DefaultAlpha = 0.05

// ctxCheckInterval is how many features are tested between cancellation checks.
const ctxCheckInterval = 1024

// Options configures a Runner.
type Options struct {
	Alternative fisher.Alternative
	Alpha       float64
	Workers     int

	// ResetAfterBatch clears the log-factorial cache when Run returns.
	ResetAfterBatch bool

	// CacheMaxEntries caps every log-factorial cache the runner creates; 0 is unbounded.
	CacheMaxEntries int

	Logger *slog.Logger
}

// Result is one tested feature.
type Result struct {
	Feature     string
	Table       fisher.Table
	OddsRatio   float64
	PValue      float64
	Significant bool
}

// Report is the outcome of one batch.
type Report struct {
	Alternative fisher.Alternative
	Alpha       float64
	Threshold   float64 // Alpha divided by Tests.
	Tests       int
	Significant int
	Results     []Result

	// Cache is the log-factorial cache state at the end of the batch, before
	// any reset. With several workers the counters are summed.
	Cache fisher.CacheStats

	// Unannotated lists enriched items that carry no feature. Only sets
	// documents fill it; the runner itself never sees items.
	Unannotated []string
}

// MedianPValue returns the median p-value of the batch, NaN when empty.
func (r *Report) MedianPValue() float64 {
	ps := make([]float64, len(r.Results))

	for i, res := range r.Results {
		ps[i] = res.PValue
	}

	return stats.Median(ps)
}

// Runner tests features in batches. A Runner is not safe for concurrent use.
type Runner struct {
	opts   Options
	tester *fisher.Tester
	logger *slog.Logger
}

// NewRunner validates opts and creates a Runner with its own cache.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Alpha == 0 {
		opts.Alpha = DefaultAlpha
	}

	if math.IsNaN(opts.Alpha) || opts.Alpha <= 0 || opts.Alpha > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlpha, opts.Alpha)
	}

	if opts.Workers == 0 {
		opts.Workers = 1
	}

	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, opts.Workers)
	}

	if !opts.Alternative.Valid() {
		return nil, fmt.Errorf("%w: alternative %d", fisher.ErrInvalidArgument, int(opts.Alternative))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		opts:   opts,
		tester: fisher.NewTester(fisher.WithLogFactorials(newCache(opts.CacheMaxEntries))),
		logger: logger,
	}, nil
}

func newCache(maxEntries int) *fisher.LogFactorials {
	return fisher.NewLogFactorials(fisher.WithMaxEntries(maxEntries))
}

// Cache returns the cache used by sequential runs.
func (r *Runner) Cache() *fisher.LogFactorials {
	return r.tester.Cache()
}

// Run tests every feature yielded by features and returns the sorted,
// Bonferroni-corrected report. An error from the iterator, an invalid table,
// or ctx cancellation aborts the batch without a partial report.
func (r *Runner) Run(ctx context.Context, features iter.Seq2[Feature, error]) (*Report, error) {
	var (
		results []Result
		cache   fisher.CacheStats
		err     error
	)

	if r.opts.Workers > 1 {
		results, cache, err = r.runParallel(ctx, features)
	} else {
		results, cache, err = r.runSequential(ctx, features)
	}

	if err != nil {
		return nil, err
	}

	report := r.buildReport(results)
	report.Cache = cache

	r.logger.DebugContext(ctx, "enrichment batch tested",
		"tests", report.Tests,
		"significant", report.Significant,
		"cache_entries", cache.Entries,
		"cache_extensions", cache.Extensions)

	return report, nil
}

func (r *Runner) runSequential(ctx context.Context, features iter.Seq2[Feature, error]) ([]Result, fisher.CacheStats, error) {
	if r.opts.ResetAfterBatch {
		defer r.tester.Reset()
	}

	var results []Result

	for feature, err := range features {
		if err != nil {
			return nil, fisher.CacheStats{}, fmt.Errorf("read features: %w", err)
		}

		if len(results)%ctxCheckInterval == 0 {
			ctxErr := ctx.Err()
			if ctxErr != nil {
				return nil, fisher.CacheStats{}, ctxErr
			}
		}

		res, err := testFeature(r.tester, feature, r.opts.Alternative)
		if err != nil {
			return nil, fisher.CacheStats{}, err
		}

		results = append(results, res)
	}

	return results, r.tester.Cache().Stats(), nil
}

// runParallel collects the features, splits them into contiguous chunks and
// tests each chunk with its own Tester and cache.
func (r *Runner) runParallel(ctx context.Context, features iter.Seq2[Feature, error]) ([]Result, fisher.CacheStats, error) {
	var all []Feature

	for feature, err := range features {
		if err != nil {
			return nil, fisher.CacheStats{}, fmt.Errorf("read features: %w", err)
		}

		all = append(all, feature)
	}

	workers := min(r.opts.Workers, max(len(all), 1))
	chunk := (len(all) + workers - 1) / workers
	results := make([]Result, len(all))
	cacheStats := make([]fisher.CacheStats, workers)

	group, groupCtx := errgroup.WithContext(ctx)

	for w := range workers {
		lo := w * chunk
		hi := min(lo+chunk, len(all))

		if lo >= hi {
			continue
		}

		group.Go(func() error {
			tester := fisher.NewTester(fisher.WithLogFactorials(newCache(r.opts.CacheMaxEntries)))

			for i := lo; i < hi; i++ {
				if (i-lo)%ctxCheckInterval == 0 {
					ctxErr := groupCtx.Err()
					if ctxErr != nil {
						return ctxErr
					}
				}

				res, err := testFeature(tester, all[i], r.opts.Alternative)
				if err != nil {
					return err
				}

				results[i] = res
			}

			cacheStats[w] = tester.Cache().Stats()

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, fisher.CacheStats{}, err
	}

	return results, sumCacheStats(cacheStats), nil
}

func testFeature(tester *fisher.Tester, feature Feature, alt fisher.Alternative) (Result, error) {
	res, err := tester.TestTable(feature.Table, alt)
	if err != nil {
		return Result{}, fmt.Errorf("feature %q: %w", feature.Name, err)
	}

	return Result{
		Feature:   feature.Name,
		Table:     feature.Table,
		OddsRatio: res.OddsRatio,
		PValue:    res.PValue,
	}, nil
}

func sumCacheStats(all []fisher.CacheStats) fisher.CacheStats {
	var total fisher.CacheStats

	for _, s := range all {
		total.Entries += s.Entries
		total.Extensions += s.Extensions
		total.Resets += s.Resets
		total.Overflow += s.Overflow
		total.MaxEntries = max(total.MaxEntries, s.MaxEntries)
	}

	return total
}

func (r *Runner) buildReport(results []Result) *Report {
	threshold := stats.Bonferroni(r.opts.Alpha, len(results))
	significant := 0

	for i := range results {
		results[i].Significant = results[i].PValue <= threshold
		if results[i].Significant {
			significant++
		}
	}

	SortResults(results)

	return &Report{
		Alternative: r.opts.Alternative,
		Alpha:       r.opts.Alpha,
		Threshold:   threshold,
		Tests:       len(results),
		Significant: significant,
		Results:     results,
	}
}

// SortResults orders significant results first, then by odds ratio
// descending (NaN last), then by p-value ascending, then by feature name.
func SortResults(results []Result) {
	slices.SortStableFunc(results, compareResults)
}

func compareResults(x, y Result) int {
	if x.Significant != y.Significant {
		if x.Significant {
			return -1
		}

		return 1
	}

	xNaN, yNaN := math.IsNaN(x.OddsRatio), math.IsNaN(y.OddsRatio)

	switch {
	case xNaN && !yNaN:
		return 1
	case !xNaN && yNaN:
		return -1
	case !xNaN && x.OddsRatio != y.OddsRatio:
		return cmp.Compare(y.OddsRatio, x.OddsRatio)
	}

	if x.PValue != y.PValue {
		return cmp.Compare(x.PValue, y.PValue)
	}

	return cmp.Compare(x.Feature, y.Feature)
}
