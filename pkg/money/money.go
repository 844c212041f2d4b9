// Package money keeps currency math in integer cents.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrFractionalCents = errors.New("fractional_cents")
)

var hundred = decimal.NewFromInt(100)

// AmountCents is round(quantity * rateCents), half away from zero.
func AmountCents(quantity decimal.Decimal, rateCents int64) int64 {
	return quantity.Mul(decimal.NewFromInt(rateCents)).Round(0).IntPart()
}

// DivideCents is round(cents / quantity). quantity must be positive.
func DivideCents(cents int64, quantity decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Div(quantity).Round(0).IntPart()
}

// DollarsToCents parses a decimal dollar string such as "12.34".
// More than two fractional digits is rejected rather than rounded.
func DollarsToCents(raw string) (int64, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if raw == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, ErrFractionalCents
	}
	return cents.IntPart(), nil
}

// FormatUSD renders cents as a plain decimal string, e.g. 3975 -> "39.75".
func FormatUSD(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
