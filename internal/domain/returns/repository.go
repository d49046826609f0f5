package returns

import (
	"context"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// Repository defines storage for refunds. Mutating methods run inside
// the transaction carried in the context.
type Repository interface {
	Create(ctx context.Context, refund *Refund) error

	// GetByID loads the refund with its lines, without locking.
	GetByID(ctx context.Context, refundID id.ID) (*Refund, error)

	// GetByIDForUpdate loads the refund with a pessimistic row lock.
	GetByIDForUpdate(ctx context.Context, refundID id.ID) (*Refund, error)

	Update(ctx context.Context, refund *Refund) error

	List(ctx context.Context, filter Filter) ([]Refund, error)

	// RefundedQty sums quantities already claimed against an invoice
	// line across completed and pending refunds, so concurrent or
	// repeated requests can never refund more than was sold.
	RefundedQty(ctx context.Context, invoiceLineID id.ID) (types.Quantity, error)
}

// Filter narrows refund listings.
type Filter struct {
	InvoiceID *id.ID
	StoreID   *id.ID
	Status    *Status
	Limit     int
	Offset    int
}
