// Package moneydecimal wraps govalues/decimal for the fixed-point
// arithmetic freight_charge and its derived statistics require: exact
// non-negative decimals at precision >= 15, scale >= 2, with scale-6
// half-even rounding for intermediate aggregation results (spec.md §4.3).
package moneydecimal

import (
	"fmt"
	"math"

	"github.com/govalues/decimal"
)

// IntermediateScale is the scale intermediate aggregation arithmetic is
// carried out at, per spec.md §4.3.
const IntermediateScale = 6

// Decimal is the charge/statistic value type used across the engine.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{d: decimal.Zero}

// Parse parses a decimal string (e.g. freight_charge as stored).
func Parse(s string) (Decimal, error) {
	d, err := decimal.Parse(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("moneydecimal: parse %q: %w", s, err)
	}
	return Decimal{d: d}, nil
}

// MustParse parses a decimal string and panics on failure; used for
// compile-time-known constants only.
func MustParse(s string) Decimal {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromFloat64 constructs a Decimal from a float64, rounding to
// IntermediateScale. Used by Sqrt and wherever a float64 value (such as
// the configured trend threshold) enters decimal arithmetic.
func FromFloat64(f float64) (Decimal, error) {
	d, err := decimal.NewFromFloat64(f)
	if err != nil {
		return Decimal{}, fmt.Errorf("moneydecimal: from float64 %v: %w", f, err)
	}
	r, err := d.Round(IntermediateScale)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{d: r}, nil
}

// FromInt64 constructs a whole-number Decimal.
func FromInt64(i int64) Decimal {
	d, err := decimal.New(i, 0)
	if err != nil {
		panic(err)
	}
	return Decimal{d: d}
}

func (v Decimal) IsZero() bool { return v.d.IsZero() }

func (v Decimal) Sign() int { return v.d.Sign() }

func (v Decimal) Neg() Decimal { return Decimal{d: v.d.Neg()} }

func (v Decimal) Add(other Decimal) (Decimal, error) {
	r, err := v.d.Add(other.d)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{d: r}, nil
}

func (v Decimal) Sub(other Decimal) (Decimal, error) {
	r, err := v.d.Sub(other.d)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{d: r}, nil
}

func (v Decimal) Mul(other Decimal) (Decimal, error) {
	r, err := v.d.Mul(other.d)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{d: r}, nil
}

// Quo divides v by other, rounding the result to IntermediateScale with
// half-even rounding (govalues/decimal's default banker's rounding).
func (v Decimal) Quo(other Decimal) (Decimal, error) {
	if other.IsZero() {
		return Decimal{}, fmt.Errorf("moneydecimal: division by zero")
	}
	r, err := v.d.Quo(other.d)
	if err != nil {
		return Decimal{}, err
	}
	r, err = r.Round(IntermediateScale)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{d: r}, nil
}

// Cmp compares v to other: -1, 0, or 1.
func (v Decimal) Cmp(other Decimal) int { return v.d.Cmp(other.d) }

func (v Decimal) GreaterThan(other Decimal) bool { return v.Cmp(other) > 0 }
func (v Decimal) LessThan(other Decimal) bool    { return v.Cmp(other) < 0 }
func (v Decimal) Equal(other Decimal) bool       { return v.Cmp(other) == 0 }

// Float64 converts to float64 for operations decimal has no native
// support for (e.g. sqrt for standard deviation). Precision loss here is
// confined to presentation/statistics, never to the stored charge value.
func (v Decimal) Float64() float64 {
	f, _ := v.d.Float64()
	return f
}

// Sqrt returns the square root of v, computed via float64 and rounded
// back to IntermediateScale. govalues/decimal has no native Sqrt.
func (v Decimal) Sqrt() (Decimal, error) {
	if v.Sign() < 0 {
		return Decimal{}, fmt.Errorf("moneydecimal: sqrt of negative value")
	}
	root := math.Sqrt(v.Float64())
	return FromFloat64(root)
}

func (v Decimal) String() string { return v.d.String() }

// MarshalJSON renders the decimal as a quoted JSON string so callers
// don't lose precision round-tripping through float64.
func (v Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.d.String() + `"`), nil
}

func (v *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
