// Package fisher implements Fisher's exact test for 2x2 contingency tables.
//
// A Tester sums hypergeometric tail probabilities over every table sharing the
// observed marginals, using a LogFactorials cache that grows to the largest
// grand total seen and is reused across calls. The package-level Test and
// Reset functions share one process-wide Tester.
//
// Testers are not safe for concurrent use. Give each goroutine its own Tester,
// or share one LogFactorials that has been extended up front with Ensure.
package fisher

import "fmt"

// Result is the outcome of one exact test.
type Result struct {
	OddsRatio float64
	PValue    float64
}

// Tester runs exact tests against a log-factorial cache.
type Tester struct {
	lf *LogFactorials
}

// Option configures a Tester.
type Option func(*Tester)

// WithLogFactorials injects the cache the Tester reads from. Several Testers
// may share one cache under the rules documented on LogFactorials.
func WithLogFactorials(lf *LogFactorials) Option {
	return func(t *Tester) {
		t.lf = lf
	}
}

// NewTester creates a Tester. Without WithLogFactorials it owns a fresh,
// unbounded cache.
func NewTester(opts ...Option) *Tester {
	t := &Tester{}

	for _, opt := range opts {
		opt(t)
	}

	if t.lf == nil {
		t.lf = NewLogFactorials()
	}

	return t
}

// Test validates the four counts and the alternative ("two-sided", "greater"
// or "less") and returns the odds ratio and p-value.
// Invalid input fails with ErrInvalidArgument and no partial result.
func (t *Tester) Test(a, b, c, d int, alternative string) (oddsRatio, pValue float64, err error) {
	tbl, err := NewTable(a, b, c, d)
	if err != nil {
		return 0, 0, err
	}

	alt, err := ParseAlternative(alternative)
	if err != nil {
		return 0, 0, err
	}

	res := t.run(tbl, alt)

	return res.OddsRatio, res.PValue, nil
}

// TestTable is the typed entry point for callers that already hold a Table
// and an Alternative.
func (t *Tester) TestTable(tbl Table, alt Alternative) (Result, error) {
	err := tbl.Validate()
	if err != nil {
		return Result{}, err
	}

	if !alt.Valid() {
		return Result{}, fmt.Errorf("%w: alternative %d", ErrInvalidArgument, int(alt))
	}

	return t.run(tbl, alt), nil
}

func (t *Tester) run(tbl Table, alt Alternative) Result {
	h := newHypergeometric(t.lf, tbl)

	return Result{
		OddsRatio: tbl.OddsRatio(),
		PValue:    h.tail(tbl.A, alt),
	}
}

// PointProbability returns the hypergeometric probability of the observed
// table itself.
func (t *Tester) PointProbability(tbl Table) (float64, error) {
	err := tbl.Validate()
	if err != nil {
		return 0, err
	}

	return newHypergeometric(t.lf, tbl).pointProb(tbl.A), nil
}

// Reset clears the cache. Call it at batch boundaries to bound peak memory;
// results are unaffected.
func (t *Tester) Reset() {
	t.lf.Reset()
}

// Cache returns the Tester's log-factorial cache.
func (t *Tester) Cache() *LogFactorials {
	return t.lf
}

var defaultTester = NewTester() //nolint:gochecknoglobals // process-wide default.

// Test runs an exact test on the process-wide default Tester.
// It is not safe for concurrent use.
func Test(a, b, c, d int, alternative string) (oddsRatio, pValue float64, err error) {
	return defaultTester.Test(a, b, c, d, alternative)
}

// Reset clears the process-wide default cache. It is idempotent.
func Reset() {
	defaultTester.Reset()
}

// DefaultCache returns the cache behind Test and Reset.
func DefaultCache() *LogFactorials {
	return defaultTester.lf
}
