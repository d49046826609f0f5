// Package returns processes refunds against finalized invoices,
// restocking goods through the ledger once approved.
package returns

import (
	"time"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// Status is the lifecycle state of a refund.
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusCompleted       Status = "completed"
	StatusRejected        Status = "rejected"
)

// Line is one refunded item. It always references the invoice line it
// reverses; cumulative refunds against a line never exceed what was sold.
type Line struct {
	LineID        id.ID            `db:"line_id" json:"lineId"`
	InvoiceLineID id.ID            `db:"invoice_line_id" json:"invoiceLineId"`
	VariantID     id.ID            `db:"variant_id" json:"variantId"`
	Qty           types.Quantity   `db:"qty" json:"qty"`
	Amount        types.MinorUnits `db:"amount" json:"amount"`
}

// Refund is the aggregate root of the return workflow. Stock mutates
// only when the refund reaches `completed`.
type Refund struct {
	ID        id.ID  `db:"id" json:"id"`
	Number    string `db:"number" json:"number"`
	InvoiceID id.ID  `db:"invoice_id" json:"invoiceId"`
	StoreID   id.ID  `db:"store_id" json:"storeId"`
	Status    Status `db:"status" json:"status"`

	Lines []Line `json:"lines"`

	TotalAmount types.MinorUnits `db:"total_amount" json:"totalAmount"`

	Reason      string     `db:"reason" json:"reason,omitempty"`
	RequestedBy string     `db:"requested_by" json:"requestedBy"`
	ApprovedBy  string     `db:"approved_by" json:"approvedBy,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
}

// Touch updates the modification timestamp.
func (r *Refund) Touch() {
	r.UpdatedAt = time.Now().UTC()
}
