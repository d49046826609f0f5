// Package purchase manages the purchase order lifecycle: ordering goods
// from a supplier and receiving them into a store through the ledger.
package purchase

import (
	"time"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// Status is the lifecycle state of a purchase order.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

// transitions lists the allowed forward moves. Cancel is handled
// separately (allowed from any non-terminal status).
var transitions = map[Status]Status{
	StatusDraft:     StatusSubmitted,
	StatusSubmitted: StatusApproved,
	StatusApproved:  StatusReceived,
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusReceived || s == StatusCancelled
}

// CanTransitionTo reports whether next is a legal move from s.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusCancelled {
		return !s.IsTerminal()
	}
	return transitions[s] == next
}

// Item is one ordered line. ReceivedQty accumulates across partial
// receipts and never exceeds OrderedQty.
type Item struct {
	LineID      id.ID          `db:"line_id" json:"lineId"`
	VariantID   id.ID          `db:"variant_id" json:"variantId"`
	OrderedQty  types.Quantity `db:"ordered_qty" json:"orderedQty"`
	ReceivedQty types.Quantity `db:"received_qty" json:"receivedQty"`
	UnitCost    types.Money    `db:"unit_cost" json:"unitCost"`
}

// Remaining returns the quantity still to be received.
func (i *Item) Remaining() types.Quantity {
	return i.OrderedQty - i.ReceivedQty
}

// LineTotal returns the ordered line amount in minor units.
func (i *Item) LineTotal() types.MinorUnits {
	return types.MinorUnitsFromMoney(i.UnitCost.Mul(i.OrderedQty.Decimal()))
}

// PurchaseOrder is the aggregate root of the ordering workflow.
type PurchaseOrder struct {
	ID         id.ID  `db:"id" json:"id"`
	Number     string `db:"number" json:"number"`
	StoreID    id.ID  `db:"store_id" json:"storeId"`
	SupplierID id.ID  `db:"supplier_id" json:"supplierId"`
	Status     Status `db:"status" json:"status"`

	Items []Item `json:"items"`

	// TotalAmount is recomputed from items on every item change.
	TotalAmount types.MinorUnits `db:"total_amount" json:"totalAmount"`

	Notes     string    `db:"notes" json:"notes,omitempty"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// RecalcTotal recomputes TotalAmount from the current items.
func (o *PurchaseOrder) RecalcTotal() {
	var total types.MinorUnits
	for i := range o.Items {
		total += o.Items[i].LineTotal()
	}
	o.TotalAmount = total
}

// FullyReceived reports whether every line has been received in full.
func (o *PurchaseOrder) FullyReceived() bool {
	for i := range o.Items {
		if o.Items[i].Remaining().IsPositive() {
			return false
		}
	}
	return true
}

// ItemByLine returns a pointer into Items for the given line.
func (o *PurchaseOrder) ItemByLine(lineID id.ID) *Item {
	for i := range o.Items {
		if o.Items[i].LineID == lineID {
			return &o.Items[i]
		}
	}
	return nil
}

// Touch updates the modification timestamp.
func (o *PurchaseOrder) Touch() {
	o.UpdatedAt = time.Now().UTC()
}
