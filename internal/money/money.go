// Package money provides the fixed decimal arithmetic discipline for all
// monetary values in the engine.
//
// Raw floating point is forbidden on the money path - two recalculations
// of the same return must produce byte-identical amounts. All arithmetic
// goes through an apd context with half-up rounding, and results that
// land on a return are quantized to cents.
package money

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// ctx is the shared arithmetic context: 34 digits of precision,
// round half-up (the IRS rounding convention for cents).
var ctx = apd.Context{
	Precision:   34,
	MaxExponent: apd.MaxExponent,
	MinExponent: apd.MinExponent,
	Traps:       apd.DefaultTraps,
	Rounding:    apd.RoundHalfUp,
}

// Zero returns a fresh zero decimal.
func Zero() *apd.Decimal {
	return apd.New(0, 0)
}

// FromString parses a decimal amount from its text form.
func FromString(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// FromInt returns a decimal for a whole-dollar amount.
func FromInt(n int64) *apd.Decimal {
	return apd.New(n, 0)
}

// Add returns a + b.
func Add(a, b *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	if _, err := ctx.Add(out, a, b); err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	return out, nil
}

// Sub returns a - b.
func Sub(a, b *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	if _, err := ctx.Sub(out, a, b); err != nil {
		return nil, fmt.Errorf("sub: %w", err)
	}
	return out, nil
}

// Mul returns a * b.
func Mul(a, b *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	if _, err := ctx.Mul(out, a, b); err != nil {
		return nil, fmt.Errorf("mul: %w", err)
	}
	return out, nil
}

// RoundCents quantizes d to two decimal places, rounding half-up.
// Every amount written back to a field or a return aggregate passes
// through here exactly once.
func RoundCents(d *apd.Decimal) (*apd.Decimal, error) {
	out := new(apd.Decimal)
	if _, err := ctx.Quantize(out, d, -2); err != nil {
		return nil, fmt.Errorf("round to cents: %w", err)
	}
	return out, nil
}

// Max returns the larger of a and b (a on ties).
func Max(a, b *apd.Decimal) *apd.Decimal {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// FloorZero returns d, or zero if d is negative.
func FloorZero(d *apd.Decimal) *apd.Decimal {
	if d.Negative && !d.IsZero() {
		return Zero()
	}
	return d
}

// IsNegative reports whether d is strictly below zero.
func IsNegative(d *apd.Decimal) bool {
	return d.Negative && !d.IsZero()
}

// IsPositive reports whether d is strictly above zero.
func IsPositive(d *apd.Decimal) bool {
	return !d.Negative && !d.IsZero()
}

// Cents renders d quantized to two decimal places, e.g. "1530.00".
// Used for return aggregates and audit rendering.
func Cents(d *apd.Decimal) (string, error) {
	out, err := RoundCents(d)
	if err != nil {
		return "", err
	}
	return out.Text('f'), nil
}
