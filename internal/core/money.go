// Package core provides money parsing and handling utilities.
//
// Money is kept as integer cents. Parsing and rendering go through
// shopspring/decimal so no binary float ever touches a stored amount.
package core

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmountCents is the largest single amount accepted (9,999,999.99).
const MaxAmountCents int64 = 999_999_999

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrAmountPrecision = errors.New("amount must have at most 2 decimal places")
	ErrAmountTooLarge  = errors.New("amount must not exceed 9999999.99")
)

// ParseMoney converts a decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) separators. Unlike rounding
// parsers it rejects a third significant decimal, since a silently rounded
// amount would leak into the user aggregates.
//
// Examples:
//
//	ParseMoney("23.45")  -> Money{2345}, nil
//	ParseMoney("12,5")   -> Money{1250}, nil
//	ParseMoney("12.340") -> Money{1234}, nil
//	ParseMoney("12.345") -> error
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal validates d as a non-negative amount with cent precision.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	if !d.Equal(d.Truncate(2)) {
		return Money{}, ErrAmountPrecision
	}
	cents := d.Shift(2)
	if cents.GreaterThan(decimal.NewFromInt(MaxAmountCents)) {
		return Money{}, ErrAmountTooLarge
	}
	return Money{Cents: cents.IntPart()}, nil
}

// MustParseMoney is ParseMoney for literals known to be valid.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the exact decimal value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with exactly two decimals ("117.25").
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Mul scales a unit price by a quantity.
func (m Money) Mul(q int) Money { return Money{Cents: m.Cents * int64(q)} }

func (m Money) Neg() Money       { return Money{Cents: -m.Cents} }
func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// MarshalJSON encodes the amount as a decimal string, matching the
// representation clients send.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts "23.45" or 23.45.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return ErrInvalidAmount
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ErrInvalidAmount
		}
		raw = s
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
