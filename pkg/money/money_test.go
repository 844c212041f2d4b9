package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountCents(t *testing.T) {
	assert.Equal(t, int64(500), AmountCents(decimal.NewFromInt(5), 100))
	assert.Equal(t, int64(1238), AmountCents(decimal.RequireFromString("2.475"), 500))
	assert.Equal(t, int64(33), AmountCents(decimal.RequireFromString("0.333"), 100))
	assert.Equal(t, int64(0), AmountCents(decimal.Zero, 999))
}

func TestDivideCents(t *testing.T) {
	assert.Equal(t, int64(32), DivideCents(1000, decimal.NewFromInt(31)))
	assert.Equal(t, int64(250), DivideCents(500, decimal.NewFromInt(2)))
}

func TestDollarsToCents(t *testing.T) {
	cases := map[string]int64{
		"10.00": 1000,
		"25.5":  2550,
		"$4.25": 425,
		"0":     0,
		"-3.10": -310,
	}
	for in, want := range cases {
		got, err := DollarsToCents(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestDollarsToCentsRejects(t *testing.T) {
	_, err := DollarsToCents("1.005")
	assert.ErrorIs(t, err, ErrFractionalCents)
	_, err = DollarsToCents("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = DollarsToCents("")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "39.75", FormatUSD(3975))
	assert.Equal(t, "0.05", FormatUSD(5))
	assert.Equal(t, "-1.00", FormatUSD(-100))
}
