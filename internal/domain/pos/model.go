// Package pos orchestrates point-of-sale checkout and time-boxed holds
// over the reservation engine.
package pos

import (
	"time"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// InvoiceLine is one sold item on a finalized sale.
type InvoiceLine struct {
	LineID    id.ID            `db:"line_id" json:"lineId"`
	VariantID id.ID            `db:"variant_id" json:"variantId"`
	Qty       types.Quantity   `db:"qty" json:"qty"`
	UnitPrice types.MinorUnits `db:"unit_price" json:"unitPrice"`
	LineTotal types.MinorUnits `db:"line_total" json:"lineTotal"`
}

// Payment is one tender against an invoice.
type Payment struct {
	Method string           `db:"method" json:"method"`
	Amount types.MinorUnits `db:"amount" json:"amount"`
}

// Invoice is a finalized sale. Immutable once written; refunds reference
// it rather than mutate it.
type Invoice struct {
	ID      id.ID  `db:"id" json:"id"`
	Number  string `db:"number" json:"number"`
	StoreID id.ID  `db:"store_id" json:"storeId"`
	ShiftID *id.ID `db:"shift_id" json:"shiftId,omitempty"`

	Lines    []InvoiceLine `json:"lines"`
	Payments []Payment     `json:"payments"`

	Total types.MinorUnits `db:"total" json:"total"`

	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// LineByID returns a pointer into Lines for the given line.
func (i *Invoice) LineByID(lineID id.ID) *InvoiceLine {
	for idx := range i.Lines {
		if i.Lines[idx].LineID == lineID {
			return &i.Lines[idx]
		}
	}
	return nil
}

// HoldStatus is the lifecycle state of a held cart.
type HoldStatus string

const (
	HoldStatusHeld      HoldStatus = "held"
	HoldStatusFinalized HoldStatus = "finalized"
	HoldStatusCancelled HoldStatus = "cancelled"
	HoldStatusExpired   HoldStatus = "expired"
)

// HeldLine is one reserved item on a held cart.
type HeldLine struct {
	VariantID id.ID            `db:"variant_id" json:"variantId"`
	Qty       types.Quantity   `db:"qty" json:"qty"`
	UnitPrice types.MinorUnits `db:"unit_price" json:"unitPrice"`
}

// HeldCart is a durable, time-boxed cart whose lines are reserved at
// the store. Only status `held` carries live reservations.
type HeldCart struct {
	ID      id.ID      `db:"id" json:"id"`
	StoreID id.ID      `db:"store_id" json:"storeId"`
	Status  HoldStatus `db:"status" json:"status"`

	Lines []HeldLine `json:"lines"`

	// InvoiceID links a finalized hold to the sale it became.
	InvoiceID *id.ID `db:"invoice_id" json:"invoiceId,omitempty"`

	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	Note      string    `db:"note" json:"note,omitempty"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// ExpiredAt reports whether the hold's time box has lapsed at now.
func (h *HeldCart) ExpiredAt(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

// Touch updates the modification timestamp.
func (h *HeldCart) Touch() {
	h.UpdatedAt = time.Now().UTC()
}
