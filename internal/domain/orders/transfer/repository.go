package transfer

import (
	"context"

	"retailcore/internal/core/id"
)

// Repository defines storage for transfers and their lines. Mutating
// methods run inside the transaction carried in the context.
type Repository interface {
	Create(ctx context.Context, transfer *Transfer) error

	// GetByID loads the transfer with its lines, without locking.
	GetByID(ctx context.Context, transferID id.ID) (*Transfer, error)

	// GetByIDForUpdate loads the transfer with a pessimistic row lock.
	GetByIDForUpdate(ctx context.Context, transferID id.ID) (*Transfer, error)

	// Update persists the header. Lines are immutable after creation.
	Update(ctx context.Context, transfer *Transfer) error

	List(ctx context.Context, filter Filter) ([]Transfer, error)
}

// Filter narrows transfer listings.
type Filter struct {
	FromStoreID *id.ID
	ToStoreID   *id.ID
	Status      *Status
	Limit       int
	Offset      int
}
