package shifts

import (
	"context"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// Repository defines storage for shifts. Mutating methods run inside
// the transaction carried in the context.
type Repository interface {
	Create(ctx context.Context, shift *Shift) error

	GetByID(ctx context.Context, shiftID id.ID) (*Shift, error)

	// GetByIDForUpdate loads the shift with a pessimistic row lock.
	GetByIDForUpdate(ctx context.Context, shiftID id.ID) (*Shift, error)

	Update(ctx context.Context, shift *Shift) error

	// FindOpen returns the open shift for the pair, or found=false.
	FindOpen(ctx context.Context, storeID, cashierID id.ID) (*Shift, bool, error)

	List(ctx context.Context, filter Filter) ([]Shift, error)
}

// Filter narrows shift listings.
type Filter struct {
	StoreID   *id.ID
	CashierID *id.ID
	Status    *Status
	Limit     int
	Offset    int
}

// CashSource reports cash tenders taken during a shift. Satisfied by
// the invoice repository.
type CashSource interface {
	CashPayments(ctx context.Context, shiftID id.ID) (types.MinorUnits, error)
}
