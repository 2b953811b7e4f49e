// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from chat text
// and rendering cents back to the two-decimal display format.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a decimal string to Money with half-up rounding to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, with or
// without digits after the separator. Signs, thousands separators and
// anything that is not a plain decimal number are rejected, as are amounts
// that round to zero or exceed MaxAmountCents.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234 cents
//	ParseAmount("12,34")  -> 1234 cents
//	ParseAmount("12,")    -> 1200 cents
//	ParseAmount("12.345") -> 1235 cents (half-up)
//	ParseAmount("0,001")  -> ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return Money{}, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return Money{}, ErrInvalidAmount
		}
	}
	if strings.HasPrefix(s, ".") {
		return Money{}, ErrInvalidAmount
	}
	s = strings.TrimSuffix(s, ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if !cents.IsPositive() || cents.GreaterThan(decimal.NewFromInt(MaxAmountCents)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Add returns the sum of two amounts, saturating at the int64 bounds.
func (m Money) Add(o Money) Money {
	sum := m.Cents + o.Cents
	switch {
	case o.Cents > 0 && sum < m.Cents:
		return Money{Cents: math.MaxInt64}
	case o.Cents < 0 && sum > m.Cents:
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: sum}
}

// String formats the amount as "R$ 12,34".
func (m Money) String() string {
	neg := m.Cents < 0
	cents := uint64(m.Cents)
	if neg {
		cents = -cents
	}
	rem := cents % 100
	s := strconv.FormatUint(cents/100, 10) + ","
	if rem < 10 {
		s += "0"
	}
	s += strconv.FormatUint(rem, 10)
	if neg {
		return "-R$ " + s
	}
	return "R$ " + s
}
