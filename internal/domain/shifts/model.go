// Package shifts tracks cashier shifts and their cash reconciliation.
package shifts

import (
	"time"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// Status is the lifecycle state of a shift.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Shift is one cashier's working session at a store. At most one open
// shift may exist per (store, cashier), enforced transactionally and by
// a partial unique index in storage.
type Shift struct {
	ID        id.ID  `db:"id" json:"id"`
	StoreID   id.ID  `db:"store_id" json:"storeId"`
	CashierID id.ID  `db:"cashier_id" json:"cashierId"`
	Status    Status `db:"status" json:"status"`

	OpeningCash types.MinorUnits `db:"opening_cash" json:"openingCash"`
	ClosingCash types.MinorUnits `db:"closing_cash" json:"closingCash"`

	// ExpectedCash is opening cash plus cash tenders taken during the
	// shift; Discrepancy is closing minus expected.
	ExpectedCash types.MinorUnits `db:"expected_cash" json:"expectedCash"`
	Discrepancy  types.MinorUnits `db:"discrepancy" json:"discrepancy"`

	Notes    string     `db:"notes" json:"notes,omitempty"`
	OpenedAt time.Time  `db:"opened_at" json:"openedAt"`
	ClosedAt *time.Time `db:"closed_at" json:"closedAt,omitempty"`
}
