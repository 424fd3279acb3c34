// Package ledger exposes the append-only owner billing history and the
// balance-conservation checks built on top of it. Entries are written only
// by the billing engine, always in the same transaction as the balance
// mutation they describe; nothing in this package updates or deletes rows.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one append-only record of a signed change to an owner's balance.
type Entry struct {
	ID           int64
	OwnerID      int64
	Description  string
	AmountChange decimal.Decimal
	NewBalance   decimal.Decimal
	EntryDate    time.Time
	CreatedBy    string
}

// DriftReport compares an owner's stored balance against the sum of their
// ledger entries. Drift other than zero means the pairing invariant between
// balance mutations and ledger entries has been violated somewhere.
type DriftReport struct {
	OwnerID  int64
	Stored   decimal.Decimal
	Computed decimal.Decimal
	Drift    decimal.Decimal
}

// Clean reports whether the stored balance matches the ledger.
func (r DriftReport) Clean() bool {
	return r.Drift.IsZero()
}
