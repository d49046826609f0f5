package purchase

import (
	"context"

	"retailcore/internal/core/id"
)

// Repository defines storage for purchase orders and their items.
// Mutating methods run inside the transaction carried in the context.
type Repository interface {
	Create(ctx context.Context, order *PurchaseOrder) error

	// GetByID loads the order with its items, without locking.
	GetByID(ctx context.Context, orderID id.ID) (*PurchaseOrder, error)

	// GetByIDForUpdate loads the order with a pessimistic row lock.
	GetByIDForUpdate(ctx context.Context, orderID id.ID) (*PurchaseOrder, error)

	// Update persists the header and replaces the item set.
	Update(ctx context.Context, order *PurchaseOrder) error

	List(ctx context.Context, filter Filter) ([]PurchaseOrder, error)
}

// Filter narrows order listings.
type Filter struct {
	StoreID    *id.ID
	SupplierID *id.ID
	Status     *Status
	Limit      int
	Offset     int
}
