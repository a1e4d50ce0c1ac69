package money

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// Decimal is a fixed-point amount used for all billing arithmetic.
// It wraps apd.Decimal so costs, credits and balances never go through
// binary floating point.
type Decimal struct {
	value apd.Decimal
}

func NewDecimal(s string) (Decimal, error) {
	var d apd.Decimal
	_, _, err := d.SetString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal: %w", err)
	}
	return Decimal{value: d}, nil
}

// MustDecimal parses s and panics on failure. Intended for constants and tests.
func MustDecimal(s string) Decimal {
	d, err := NewDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

func NewDecimalFromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

// Zero returns the zero amount.
func Zero() Decimal {
	return Decimal{}
}

func (d Decimal) String() string {
	return d.value.String()
}

func (d Decimal) IsZero() bool {
	return d.value.IsZero()
}

func (d Decimal) IsNegative() bool {
	return d.value.Negative && !d.value.IsZero()
}

func (d Decimal) Cmp(other Decimal) int {
	return d.value.Cmp(&other.value)
}

// Add returns the sum of d and other.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Sub returns d minus other.
func (d Decimal) Sub(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Sub(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Mul returns the product of d and other.
func (d Decimal) Mul(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Mul(&result, &d.value, &other.value)
	return Decimal{value: result}
}

// Min returns the smaller of d and other.
func Min(d, other Decimal) Decimal {
	if d.Cmp(other) <= 0 {
		return d
	}
	return other
}

// Sum adds all amounts, returning zero for an empty slice.
func Sum(amounts ...Decimal) Decimal {
	total := Zero()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
