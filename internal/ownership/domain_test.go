package ownership

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDedupeKeepsFirstRowPerOwner(t *testing.T) {
	shares := []Share{
		{PatientID: 1, OwnerID: 10, Percentage: decimal.NewFromInt(60)},
		{PatientID: 1, OwnerID: 20, Percentage: decimal.NewFromInt(40)},
		{PatientID: 1, OwnerID: 10, Percentage: decimal.NewFromInt(99)},
	}
	got := Dedupe(shares)
	require.Len(t, got, 2)
	require.Equal(t, int64(10), got[0].OwnerID)
	require.True(t, got[0].Percentage.Equal(decimal.NewFromInt(60)))
	require.Equal(t, int64(20), got[1].OwnerID)
}

func TestDedupeEmpty(t *testing.T) {
	require.Empty(t, Dedupe(nil))
}
