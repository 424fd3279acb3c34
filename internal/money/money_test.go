package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestLineTotal(t *testing.T) {
	require.True(t, dec("37.50").Equal(LineTotal(dec("2.5"), dec("15.00"))))
	require.True(t, dec("0").Equal(LineTotal(dec("3"), dec("0"))))
}

func TestProratedShareRoundsHalfToEven(t *testing.T) {
	cases := []struct {
		total, pct, want string
	}{
		{"100.00", "60", "60.00"},
		{"100.00", "40", "40.00"},
		{"0.25", "50", "0.12"},  // 0.125 rounds down to even
		{"0.27", "50", "0.14"},  // 0.135 rounds up to even
		{"33.33", "33.33", "11.11"},
		{"100.00", "0", "0.00"},
	}
	for _, tc := range cases {
		got := ProratedShare(dec(tc.total), dec(tc.pct))
		require.True(t, dec(tc.want).Equal(got), "share of %s at %s%% = %s, want %s", tc.total, tc.pct, got, tc.want)
	}
}

func TestProratedUnitPriceIsUnrounded(t *testing.T) {
	got := ProratedUnitPrice(dec("10.01"), dec("33.33"))
	require.True(t, dec("3.336333").Equal(got))
}

func TestProrationDriftBound(t *testing.T) {
	// Splitting a total across n owners may drift from the original by at
	// most n times one cent.
	total := dec("100.01")
	pcts := []string{"33.33", "33.33", "33.34"}
	sum := decimal.Zero
	for _, p := range pcts {
		sum = sum.Add(ProratedShare(total, dec(p)))
	}
	drift := sum.Sub(total).Abs()
	limit := dec("0.01").Mul(decimal.NewFromInt(int64(len(pcts))))
	require.True(t, drift.LessThanOrEqual(limit), "drift %s exceeds %s", drift, limit)
}

func TestFormatUSD(t *testing.T) {
	require.Equal(t, "$1,234.50", FormatUSD(dec("1234.5")))
	require.Equal(t, "$60.00", FormatUSD(dec("60")))
	require.Equal(t, "$-12.30", FormatUSD(dec("-12.3")))
}
