package fisher

import "fmt"

// Alternative selects which tail of the hypergeometric distribution is summed.
type Alternative int

const (
	// TwoSided sums every table at most as probable as the observed one.
	TwoSided Alternative = iota
	// Greater sums tables whose top-left cell is at least the observed one (enrichment).
	Greater
	// Less sums tables whose top-left cell is at most the observed one (depletion).
	Less
)

// Textual forms accepted by ParseAlternative.
const (
	TwoSidedName = "two-sided"
	GreaterName  = "greater"
	LessName     = "less"
)

// ParseAlternative maps "two-sided", "greater" or "less" to an Alternative.
// Anything else fails with ErrInvalidArgument.
func ParseAlternative(s string) (Alternative, error) {
	switch s {
	case TwoSidedName:
		return TwoSided, nil
	case GreaterName:
		return Greater, nil
	case LessName:
		return Less, nil
	default:
		return TwoSided, fmt.Errorf("%w: unknown alternative %q", ErrInvalidArgument, s)
	}
}

// Valid reports whether a is one of the three defined alternatives.
func (a Alternative) Valid() bool {
	return a == TwoSided || a == Greater || a == Less
}

// Mirror swaps Greater and Less and leaves TwoSided unchanged.
func (a Alternative) Mirror() Alternative {
	switch a {
	case Greater:
		return Less
	case Less:
		return Greater
	default:
		return a
	}
}

func (a Alternative) String() string {
	switch a {
	case TwoSided:
		return TwoSidedName
	case Greater:
		return GreaterName
	case Less:
		return LessName
	default:
		return fmt.Sprintf("Alternative(%d)", int(a))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Alternative) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: alternative %d", ErrInvalidArgument, int(a))
	}

	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Alternative) UnmarshalText(text []byte) error {
	parsed, err := ParseAlternative(string(text))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}
