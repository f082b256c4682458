// Package valueobjects - Money is one of the most critical value objects in
// the ledger. It is a non-negative, fixed-scale-2 decimal amount.
//
// Value Object Pattern:
// - Immutable: All operations return new Money instances
// - Self-validating: Cannot construct invalid Money
// - Type-safe: Arithmetic never silently loses precision
package valueobjects

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// scale is the fixed number of decimal places every Money value is rounded
// to at construction, per the ledger's fixed-scale-2 requirement.
const scale = 2

// Money represents a non-negative monetary amount at fixed scale 2.
//
// Why shopspring/decimal instead of float64 or big.Rat?
// - Avoids floating-point precision issues (0.1 + 0.2 != 0.3)
// - Fixes the scale explicitly, matching the ledger's decimal(_,2) columns,
//   unlike big.Rat which carries unbounded precision.
type Money struct {
	amount decimal.Decimal
}

// Common domain errors for Money operations.
var (
	ErrNegativeAmount     = errors.New("amount cannot be negative")
	ErrInsufficientAmount = errors.New("insufficient amount")
	ErrInvalidAmount      = errors.New("invalid amount format")
)

// NewMoney creates a Money instance from a decimal string (e.g. "100.50").
func NewMoney(amountStr string) (Money, error) {
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amountStr)
	}
	if amount.Sign() < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{amount: amount.Round(scale)}, nil
}

// NewMoneyFromCents creates Money from integer cents (the preferred
// database storage format: a bigint column divided by 100).
func NewMoneyFromCents(cents int64) (Money, error) {
	if cents < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{amount: decimal.New(cents, -scale)}, nil
}

// NewMoneyFromDecimal wraps an already-computed decimal.Decimal, rounding
// it to scale 2. Used by the Store when hydrating entities.
func NewMoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.Sign() < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{amount: d.Round(scale)}, nil
}

// Zero returns a zero-amount Money.
func Zero() Money {
	return Money{amount: decimal.Zero}
}

// Decimal returns the underlying decimal.Decimal.
func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// Cents returns the amount as integer cents, the preferred storage format.
func (m Money) Cents() int64 {
	return m.amount.Shift(scale).IntPart()
}

// String returns a human-readable representation, e.g. "100.50".
func (m Money) String() string {
	return m.amount.StringFixed(scale)
}

// Float64 returns the amount as float64. Use only for display, never for
// further arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// Add returns a new Money with the sum of two amounts.
func (m Money) Add(other Money) (Money, error) {
	return NewMoneyFromDecimal(m.amount.Add(other.amount))
}

// Subtract returns a new Money with the difference. Errors if negative.
func (m Money) Subtract(other Money) (Money, error) {
	diff := m.amount.Sub(other.amount)
	if diff.Sign() < 0 {
		return Money{}, ErrInsufficientAmount
	}
	return Money{amount: diff.Round(scale)}, nil
}

// Multiply returns a new Money multiplied by a factor, rounded to scale 2.
// Used for ratio-based policy derivation (e.g. spawn monotonicity) and fee
// calculations.
func (m Money) Multiply(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor).Round(scale)}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// GreaterThan checks if this money is greater than another.
func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

// GreaterThanOrEqual checks if this money is >= another.
func (m Money) GreaterThanOrEqual(other Money) bool {
	return m.amount.GreaterThanOrEqual(other.amount)
}

// LessThan checks if this money is less than another.
func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

// Min returns the smaller of two Money values.
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Equals checks if two money values are equal.
func (m Money) Equals(other Money) bool {
	return m.amount.Equal(other.amount)
}
