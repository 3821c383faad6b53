package fisher

import (
	"math"

	"github.com/Sumatoshi-tech/fishex/pkg/alg/stats"
)

// twoSidedTolerance is the relative slack used when comparing a table's
// probability against the observed one in the two-sided test. Tables whose
// probability equals the observed one up to rounding count as "at least as
// extreme"; the observed table is always counted.
const twoSidedTolerance = 1e-7

// minLogWeight is the log-weight, relative to the mode, below which exp
// underflows to zero.
const minLogWeight = -745.0

// hypergeometric is the distribution of the top-left cell over all tables
// sharing one set of marginals.
type hypergeometric struct {
	lf *LogFactorials

	// base is ln(r1! r2! c1! c2! / N!), shared by every term.
	base float64

	r1, r2, c1 int

	// lo and hi bound the feasible top-left values.
	lo, hi int

	// mode is the most probable top-left value and anchor its log-factorial
	// denominator, so that logWeight(mode) == 0.
	mode   int
	anchor float64
}

func newHypergeometric(lf *LogFactorials, t Table) hypergeometric {
	r1, r2 := t.Row1(), t.Row2()
	c1, c2 := t.Col1(), t.Col2()
	n := r1 + r2

	lf.Ensure(n)

	h := hypergeometric{
		lf:   lf,
		base: lf.At(r1) + lf.At(r2) + lf.At(c1) + lf.At(c2) - lf.At(n),
		r1:   r1,
		r2:   r2,
		c1:   c1,
		lo:   max(0, c1-r2),
		hi:   min(r1, c1),
	}

	mode := int(math.Floor(float64(r1+1) * float64(c1+1) / float64(n+2)))
	h.mode = stats.Clamp(mode, h.lo, h.hi)
	h.anchor = h.denominator(h.mode)

	return h
}

// denominator returns ln(k! (r1-k)! (c1-k)! (r2-c1+k)!).
func (h hypergeometric) denominator(k int) float64 {
	lf := h.lf

	return lf.At(k) + lf.At(h.r1-k) + lf.At(h.c1-k) + lf.At(h.r2-h.c1+k)
}

// logProb returns the log-probability of the table whose top-left cell is k.
func (h hypergeometric) logProb(k int) float64 {
	return h.base - h.denominator(k)
}

func (h hypergeometric) prob(k int) float64 {
	return math.Exp(h.logProb(k))
}

// logWeight returns ln(P(k)/P(mode)). The shared base term cancels, so its
// rounding error never reaches a normalized tail.
func (h hypergeometric) logWeight(k int) float64 {
	return h.anchor - h.denominator(k)
}

// walk visits every k whose weight relative to the mode is representable,
// starting at the mode and moving outward. The distribution is unimodal, so
// each direction stops at the first weight that underflows.
func (h hypergeometric) walk(visit func(k int, w float64)) {
	for k := h.mode; k >= h.lo; k-- {
		lw := h.logWeight(k)
		if lw < minLogWeight {
			break
		}

		visit(k, math.Exp(lw))
	}

	for k := h.mode + 1; k <= h.hi; k++ {
		lw := h.logWeight(k)
		if lw < minLogWeight {
			break
		}

		visit(k, math.Exp(lw))
	}
}

// normalizedTail sums the weights selected by alt and divides by the total
// weight. It returns 0 when the selected tail lies entirely beyond the
// representable window.
func (h hypergeometric) normalizedTail(a int, alt Alternative) float64 {
	var (
		total float64
		tail  float64
	)

	bound := math.Exp(h.logWeight(a)) * (1 + twoSidedTolerance)

	h.walk(func(k int, w float64) {
		total += w

		switch {
		case alt == Greater && k >= a,
			alt == Less && k <= a,
			alt == TwoSided && w <= bound:
			tail += w
		}
	})

	return tail / total
}

// pointProb returns P(a), normalized when a lies inside the window.
func (h hypergeometric) pointProb(a int) float64 {
	lw := h.logWeight(a)
	if lw < minLogWeight {
		return h.prob(a)
	}

	var total float64

	h.walk(func(_ int, w float64) { total += w })

	return math.Exp(lw) / total
}

// greater sums P(k) for k >= a from absolute log-probabilities.
func (h hypergeometric) greater(a int) float64 {
	var p float64

	for k := a; k <= h.hi; k++ {
		p += h.prob(k)
	}

	return p
}

// less sums P(k) for k <= a from absolute log-probabilities.
func (h hypergeometric) less(a int) float64 {
	var p float64

	for k := a; k >= h.lo; k-- {
		p += h.prob(k)
	}

	return p
}

// twoSided sums P(k) over every k with P(k) <= P(a)*(1+twoSidedTolerance)
// from absolute log-probabilities. The qualifying k form two runs starting
// at the ends of the feasible range; each run is walked inward and stops at
// the first term above the bound or at a.
func (h hypergeometric) twoSided(a int) float64 {
	observed := h.prob(a)
	bound := observed * (1 + twoSidedTolerance)
	p := observed

	for k := h.lo; k < a; k++ {
		pk := h.prob(k)
		if pk > bound {
			break
		}

		p += pk
	}

	for k := h.hi; k > a; k-- {
		pk := h.prob(k)
		if pk > bound {
			break
		}

		p += pk
	}

	return p
}

// tail dispatches on the alternative. Tails inside the window are normalized
// by the total mass; tails beyond it are far below any reportable precision
// and are summed from absolute log-probabilities instead.
func (h hypergeometric) tail(a int, alt Alternative) float64 {
	p := h.normalizedTail(a, alt)
	if p > 0 {
		return stats.Clamp(p, 0, 1)
	}

	switch alt {
	case Greater:
		p = h.greater(a)
	case Less:
		p = h.less(a)
	default:
		p = h.twoSided(a)
	}

	return stats.Clamp(p, 0, 1)
}
