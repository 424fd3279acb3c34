// Package ownership exposes the read-only directory mapping patients to the
// owners that share their bills.
package ownership

import "github.com/shopspring/decimal"

// Share associates an owner with a patient and an ownership percentage
// (0-100). Percentages for a patient are not guaranteed to sum to 100; the
// billing engine uses whatever the directory returns.
type Share struct {
	PatientID  int64
	OwnerID    int64
	Percentage decimal.Decimal
}

// Dedupe collapses duplicate directory rows by owner id, keeping the first
// row for each owner in input order.
func Dedupe(shares []Share) []Share {
	seen := make(map[int64]struct{}, len(shares))
	out := shares[:0:0]
	for _, s := range shares {
		if _, ok := seen[s.OwnerID]; ok {
			continue
		}
		seen[s.OwnerID] = struct{}{}
		out = append(out, s)
	}
	return out
}
