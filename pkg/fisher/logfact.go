package fisher

import (
	"math"
	"slices"
	"sync/atomic"
)

// bytesPerEntry is the memory footprint of one cached log-factorial.
const bytesPerEntry = 8

// LogFactorials is a growable table of natural-log factorials, L[i] = ln(i!).
//
// The table only grows, in one pass per extension, until Reset discards it.
// Growth uses compensated summation so that ln(n!) for n in the millions keeps
// the precision of a single math.Log call instead of accumulating n rounding
// errors.
//
// LogFactorials is not safe for concurrent mutation. Once Ensure has covered
// every index a workload needs, concurrent readers (including Testers sharing
// the instance) never write and may run in parallel. Reset must not overlap
// any in-flight test using the same instance.
type LogFactorials struct {
	table []float64
	comp  float64 // Kahan compensation carried across extensions.

	// maxEntries caps the table length; 0 means unbounded.
	maxEntries int

	// Metrics (atomic for lock-free reads from metric callbacks).
	entries    atomic.Int64
	extensions atomic.Int64
	resets     atomic.Int64
	overflow   atomic.Int64
}

// CacheOption configures a LogFactorials.
type CacheOption func(*LogFactorials)

// WithMaxEntries caps the table at n entries. Indices at or beyond the cap are
// computed with math.Lgamma on every lookup instead of being cached.
func WithMaxEntries(n int) CacheOption {
	return func(lf *LogFactorials) {
		lf.maxEntries = max(n, 0)
	}
}

// MaxEntriesForBytes converts a memory budget into a table length.
// A non-positive budget means unbounded.
func MaxEntriesForBytes(budget int64) int {
	if budget <= 0 {
		return 0
	}

	return int(max(budget/bytesPerEntry, 1))
}

// NewLogFactorials creates an empty cache. Nothing is allocated until the
// first lookup.
func NewLogFactorials(opts ...CacheOption) *LogFactorials {
	lf := &LogFactorials{}

	for _, opt := range opts {
		opt(lf)
	}

	return lf
}

// Ensure extends the table so that At(i) is served from memory for every
// i <= n (subject to the WithMaxEntries cap). Calling it with a smaller n
// than before is a read-only no-op.
func (lf *LogFactorials) Ensure(n int) {
	if n < len(lf.table) {
		return
	}

	if lf.maxEntries > 0 && n >= lf.maxEntries {
		n = lf.maxEntries - 1
		if n < len(lf.table) {
			return
		}
	}

	lf.extend(n)
}

func (lf *LogFactorials) extend(n int) {
	lf.table = slices.Grow(lf.table, n+1-len(lf.table))

	if len(lf.table) == 0 {
		lf.table = append(lf.table, 0)
		lf.comp = 0
	}

	sum := lf.table[len(lf.table)-1]
	comp := lf.comp

	for i := len(lf.table); i <= n; i++ {
		y := math.Log(float64(i)) - comp
		next := sum + y
		comp = (next - sum) - y
		sum = next

		lf.table = append(lf.table, sum)
	}

	lf.comp = comp

	lf.entries.Store(int64(len(lf.table)))
	lf.extensions.Add(1)
}

// At returns ln(i!) without growing the table. Indices outside the table fall
// back to math.Lgamma. i must be non-negative.
func (lf *LogFactorials) At(i int) float64 {
	if i < len(lf.table) {
		return lf.table[i]
	}

	lf.overflow.Add(1)

	v, _ := math.Lgamma(float64(i) + 1)

	return v
}

// LogFactorial returns ln(n!), extending the table first if needed.
func (lf *LogFactorials) LogFactorial(n int) float64 {
	lf.Ensure(n)

	return lf.At(n)
}

// Reset discards the table and releases its memory. The next lookup rebuilds
// it from ln(0!) = 0 and yields bit-identical values.
func (lf *LogFactorials) Reset() {
	lf.table = nil
	lf.comp = 0

	lf.entries.Store(0)
	lf.resets.Add(1)
}

// Len returns the number of cached entries.
func (lf *LogFactorials) Len() int { return len(lf.table) }

// CacheEntries returns the number of cached entries (atomic, lock-free).
func (lf *LogFactorials) CacheEntries() int64 { return lf.entries.Load() }

// CacheExtensions returns how many times the table has grown (atomic, lock-free).
func (lf *LogFactorials) CacheExtensions() int64 { return lf.extensions.Load() }

// CacheStats holds log-factorial cache metrics.
type CacheStats struct {
	Entries    int64
	MaxEntries int // 0 when unbounded.
	Extensions int64
	Resets     int64
	Overflow   int64 // Lookups served by math.Lgamma.
}

// Bytes returns the approximate memory held by the table.
func (s CacheStats) Bytes() int64 {
	return s.Entries * bytesPerEntry
}

// Stats returns current cache statistics.
func (lf *LogFactorials) Stats() CacheStats {
	return CacheStats{
		Entries:    lf.entries.Load(),
		MaxEntries: lf.maxEntries,
		Extensions: lf.extensions.Load(),
		Resets:     lf.resets.Load(),
		Overflow:   lf.overflow.Load(),
	}
}
