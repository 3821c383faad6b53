package enrichment_test

import (
	"context"
	"errors"
	"iter"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fishex/pkg/enrichment"
	"github.com/Sumatoshi-tech/fishex/pkg/fisher"
)

func batchFeatures() []enrichment.Feature {
	return []enrichment.Feature{
		{Name: "zero", Table: fisher.Table{A: 0, B: 10, C: 12, D: 2}},
		{Name: "five", Table: fisher.Table{A: 60, B: 10, C: 30, D: 25}},
		{Name: "empty", Table: fisher.Table{}},
		{Name: "low", Table: fisher.Table{A: 1, B: 9, C: 11, D: 3}},
		{Name: "inf", Table: fisher.Table{A: 10, B: 0, C: 0, D: 10}},
	}
}

func resultNames(results []enrichment.Result) []string {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Feature
	}

	return names
}

func TestRunner_BonferroniAndOrder(t *testing.T) {
	t.Parallel()

	runner, err := enrichment.NewRunner(enrichment.Options{Alternative: fisher.Greater})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), enrichment.All(batchFeatures()))
	require.NoError(t, err)

	assert.Equal(t, 5, report.Tests)
	assert.InDelta(t, 0.05, report.Alpha, 1e-15)
	assert.InDelta(t, 0.01, report.Threshold, 1e-15)
	assert.Equal(t, 2, report.Significant)
	assert.Equal(t, fisher.Greater, report.Alternative)

	assert.Equal(t, []string{"inf", "five", "low", "zero", "empty"}, resultNames(report.Results))

	byName := make(map[string]enrichment.Result)
	for _, r := range report.Results {
		byName[r.Feature] = r
	}

	assert.True(t, byName["inf"].Significant)
	assert.True(t, math.IsInf(byName["inf"].OddsRatio, 1))
	assert.InDelta(t, 1.0/184756.0, byName["inf"].PValue, 1e-15)

	assert.True(t, byName["five"].Significant)
	assert.InDelta(t, 0.0001220652942110203, byName["five"].PValue, 1e-10)

	assert.False(t, byName["low"].Significant)
	assert.InDelta(t, 0.9999663480953115, byName["low"].PValue, 1e-10)

	assert.True(t, math.IsNaN(byName["empty"].OddsRatio))
	assert.InDelta(t, 1.0, byName["empty"].PValue, 1e-15)
	assert.Equal(t, fisher.Table{A: 60, B: 10, C: 30, D: 25}, byName["five"].Table)
}

func TestRunner_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	var features []enrichment.Feature

	for i := range 300 {
		features = append(features, enrichment.Feature{
			Name:  string(rune('A'+i%26)) + string(rune('a'+i/26)),
			Table: fisher.Table{A: i % 40, B: 40 - i%40, C: (i * 7) % 360, D: 360 - (i*7)%360},
		})
	}

	sequential, err := enrichment.NewRunner(enrichment.Options{Alternative: fisher.TwoSided})
	require.NoError(t, err)

	parallel, err := enrichment.NewRunner(enrichment.Options{Alternative: fisher.TwoSided, Workers: 7})
	require.NoError(t, err)

	want, err := sequential.Run(context.Background(), enrichment.All(features))
	require.NoError(t, err)

	got, err := parallel.Run(context.Background(), enrichment.All(features))
	require.NoError(t, err)

	assert.Equal(t, want.Tests, got.Tests)
	assert.Equal(t, want.Significant, got.Significant)
	assert.Equal(t, resultNames(want.Results), resultNames(got.Results))

	for i := range want.Results {
		assert.Equal(t, want.Results[i].PValue, got.Results[i].PValue, want.Results[i].Feature)
	}

	assert.Equal(t, int64(1), want.Cache.Extensions)
	assert.Equal(t, int64(7), got.Cache.Extensions)
}

func TestRunner_MoreWorkersThanFeatures(t *testing.T) {
	t.Parallel()

	runner, err := enrichment.NewRunner(enrichment.Options{Alternative: fisher.Less, Workers: 16})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), enrichment.All(batchFeatures()[:2]))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Tests)

	empty, err := runner.Run(context.Background(), enrichment.All(nil))
	require.NoError(t, err)
	assert.Zero(t, empty.Tests)
	assert.Empty(t, empty.Results)
}

func TestRunner_ResetAfterBatch(t *testing.T) {
	t.Parallel()

	runner, err := enrichment.NewRunner(enrichment.Options{Alternative: fisher.Greater, ResetAfterBatch: true})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), enrichment.All(batchFeatures()))
	require.NoError(t, err)

	assert.Equal(t, int64(126), report.Cache.Entries, "stats are captured before the reset")
	assert.Zero(t, runner.Cache().Len())

	again, err := runner.Run(context.Background(), enrichment.All(batchFeatures()))
	require.NoError(t, err)
	assert.Equal(t, resultNames(report.Results), resultNames(again.Results))

	for i := range report.Results {
		assert.Equal(t, report.Results[i].PValue, again.Results[i].PValue, report.Results[i].Feature)
	}
}

func TestRunner_KeepsCacheWithoutReset(t *testing.T) {
	t.Parallel()

	runner, err := enrichment.NewRunner(enrichment.Options{Alternative: fisher.Greater})
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), enrichment.All(batchFeatures()))
	require.NoError(t, err)
	assert.Equal(t, 126, runner.Cache().Len())
}

func TestRunner_CacheBudget(t *testing.T) {
	t.Parallel()

	runner, err := enrichment.NewRunner(enrichment.Options{Alternative: fisher.Greater, CacheMaxEntries: 32})
	require.NoError(t, err)

	report, err := runner.Run(context.Background(), enrichment.All(batchFeatures()))
	require.NoError(t, err)

	assert.Equal(t, int64(32), report.Cache.Entries)
	assert.Positive(t, report.Cache.Overflow)
	assert.InDelta(t, 0.0001220652942110203, report.Results[1].PValue, 1e-10)
}

func TestRunner_Errors(t *testing.T) {
	t.Parallel()

	t.Run("invalid_alpha", func(t *testing.T) {
		t.Parallel()

		for _, alpha := range []float64{-0.1, 1.5, math.NaN()} {
			_, err := enrichment.NewRunner(enrichment.Options{Alpha: alpha})
			require.ErrorIs(t, err, enrichment.ErrInvalidAlpha, "alpha %v", alpha)
		}
	})

	t.Run("invalid_workers", func(t *testing.T) {
		t.Parallel()

		_, err := enrichment.NewRunner(enrichment.Options{Workers: -2})
		require.ErrorIs(t, err, enrichment.ErrInvalidWorkers)
	})

	t.Run("invalid_alternative", func(t *testing.T) {
		t.Parallel()

		_, err := enrichment.NewRunner(enrichment.Options{Alternative: fisher.Alternative(7)})
		require.ErrorIs(t, err, fisher.ErrInvalidArgument)
	})

	t.Run("invalid_table", func(t *testing.T) {
		t.Parallel()

		runner, err := enrichment.NewRunner(enrichment.Options{Alternative: fisher.Greater})
		require.NoError(t, err)

		bad := []enrichment.Feature{{Name: "neg", Table: fisher.Table{A: 1, B: -1, C: 1, D: 1}}}

		_, err = runner.Run(context.Background(), enrichment.All(bad))
		require.ErrorIs(t, err, fisher.ErrInvalidArgument)
		assert.Contains(t, err.Error(), `feature "neg"`)

		parallel, err := enrichment.NewRunner(enrichment.Options{Alternative: fisher.Greater, Workers: 2})
		require.NoError(t, err)

		_, err = parallel.Run(context.Background(), enrichment.All(append(batchFeatures(), bad...)))
		require.ErrorIs(t, err, fisher.ErrInvalidArgument)
	})

	t.Run("source_error", func(t *testing.T) {
		t.Parallel()

		errBroken := errors.New("broken stream")
		source := iter.Seq2[enrichment.Feature, error](func(yield func(enrichment.Feature, error) bool) {
			if !yield(batchFeatures()[0], nil) {
				return
			}

			yield(enrichment.Feature{}, errBroken)
		})

		for _, workers := range []int{1, 3} {
			runner, err := enrichment.NewRunner(enrichment.Options{Workers: workers})
			require.NoError(t, err)

			_, err = runner.Run(context.Background(), source)
			require.ErrorIs(t, err, errBroken)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		for _, workers := range []int{1, 3} {
			runner, err := enrichment.NewRunner(enrichment.Options{Workers: workers})
			require.NoError(t, err)

			_, err = runner.Run(ctx, enrichment.All(batchFeatures()))
			require.ErrorIs(t, err, context.Canceled)
		}
	})
}

func TestSortResults(t *testing.T) {
	t.Parallel()

	results := []enrichment.Result{
		{Feature: "b", OddsRatio: 2, PValue: 0.5},
		{Feature: "nan", OddsRatio: math.NaN(), PValue: 1},
		{Feature: "a", OddsRatio: 2, PValue: 0.5},
		{Feature: "sig", OddsRatio: 0.1, PValue: 0.001, Significant: true},
		{Feature: "c", OddsRatio: 2, PValue: 0.1},
		{Feature: "inf", OddsRatio: math.Inf(1), PValue: 0.9},
	}

	enrichment.SortResults(results)

	assert.Equal(t, []string{"sig", "inf", "c", "a", "b", "nan"}, resultNames(results))
}

func TestReport_MedianPValue(t *testing.T) {
	t.Parallel()

	report := &enrichment.Report{Results: []enrichment.Result{{PValue: 0.1}, {PValue: 0.3}, {PValue: 0.2}}}
	assert.InDelta(t, 0.2, report.MedianPValue(), 1e-15)

	assert.True(t, math.IsNaN((&enrichment.Report{}).MedianPValue()))
}
