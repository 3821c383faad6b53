package fisher

import (
	"fmt"
	"math"
)

// Table is a 2x2 contingency table of non-negative counts:
//
//	        col1  col2
//	row1     A     B
//	row2     C     D
//
// The zero value is the degenerate (0,0,0,0) table, which is legal.
type Table struct {
	A, B, C, D int
}

// NewTable builds a Table, failing with ErrInvalidArgument if any count is negative.
func NewTable(a, b, c, d int) (Table, error) {
	t := Table{A: a, B: b, C: c, D: d}

	err := t.Validate()
	if err != nil {
		return Table{}, err
	}

	return t, nil
}

// Validate checks every cell independently and reports the first negative one.
func (t Table) Validate() error {
	err := checkCount("a", t.A)
	if err != nil {
		return err
	}

	err = checkCount("b", t.B)
	if err != nil {
		return err
	}

	err = checkCount("c", t.C)
	if err != nil {
		return err
	}

	return checkCount("d", t.D)
}

func checkCount(name string, v int) error {
	if v < 0 {
		return fmt.Errorf("%w: %s is negative: %d", ErrInvalidArgument, name, v)
	}

	return nil
}

// Row1 returns A+B.
func (t Table) Row1() int { return t.A + t.B }

// Row2 returns C+D.
func (t Table) Row2() int { return t.C + t.D }

// Col1 returns A+C.
func (t Table) Col1() int { return t.A + t.C }

// Col2 returns B+D.
func (t Table) Col2() int { return t.B + t.D }

// N returns the grand total.
func (t Table) N() int { return t.A + t.B + t.C + t.D }

// SwapRows returns the table with its two rows exchanged.
// A Greater test on t has the same p-value as a Less test on t.SwapRows().
func (t Table) SwapRows() Table {
	return Table{A: t.C, B: t.D, C: t.A, D: t.B}
}

// OddsRatio returns (A*D)/(B*C). It is +Inf when only B*C is zero, 0 when
// only A*D is zero, and NaN when both products are zero.
// Products are formed in float64 so large counts cannot overflow.
func (t Table) OddsRatio() float64 {
	ad := float64(t.A) * float64(t.D)
	bc := float64(t.B) * float64(t.C)

	if bc == 0 {
		if ad == 0 {
			return math.NaN()
		}

		return math.Inf(1)
	}

	return ad / bc
}

// String formats the table as (a,b,c,d).
func (t Table) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", t.A, t.B, t.C, t.D)
}
