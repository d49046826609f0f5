// Package transfer moves stock between stores: reserve at the origin,
// commit on dispatch, restock at the destination on receipt.
package transfer

import (
	"time"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Line is one transferred variant. While the transfer is pending the
// full quantity is held as a reservation at the origin store.
type Line struct {
	LineID    id.ID          `db:"line_id" json:"lineId"`
	VariantID id.ID          `db:"variant_id" json:"variantId"`
	Qty       types.Quantity `db:"qty" json:"qty"`
}

// Transfer is the aggregate root of the inter-store movement workflow.
type Transfer struct {
	ID          id.ID  `db:"id" json:"id"`
	Number      string `db:"number" json:"number"`
	FromStoreID id.ID  `db:"from_store_id" json:"fromStoreId"`
	ToStoreID   id.ID  `db:"to_store_id" json:"toStoreId"`
	Status      Status `db:"status" json:"status"`

	Lines []Line `json:"lines"`

	Notes        string     `db:"notes" json:"notes,omitempty"`
	CreatedBy    string     `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
	DispatchedAt *time.Time `db:"dispatched_at" json:"dispatchedAt,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completedAt,omitempty"`
}

// Touch updates the modification timestamp.
func (t *Transfer) Touch() {
	t.UpdatedAt = time.Now().UTC()
}
