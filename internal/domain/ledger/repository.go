// Package ledger provides the inventory ledger and reservation engine.
package ledger

import (
	"context"
	"time"

	"retailcore/internal/core/entity"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// Repository defines storage operations for stock records and movements.
// All mutating methods are expected to run inside a transaction carried
// in the context; GetRecordForUpdate takes a row lock for the duration.
type Repository interface {
	// Record operations

	// GetRecord returns the current balance without locking.
	GetRecord(ctx context.Context, storeID, variantID id.ID) (entity.StockRecord, bool, error)

	// GetRecordForUpdate returns the balance with a pessimistic row lock.
	// The found flag is false when no record exists for the pair yet.
	GetRecordForUpdate(ctx context.Context, storeID, variantID id.ID) (entity.StockRecord, bool, error)

	// CreateRecord inserts a record on first receive or transfer-in.
	CreateRecord(ctx context.Context, record *entity.StockRecord) error

	// UpdateRecord persists new balances for an existing record.
	UpdateRecord(ctx context.Context, record *entity.StockRecord) error

	// ListByStore returns balances for a store.
	ListByStore(ctx context.Context, storeID id.ID, filter BalanceFilter) ([]entity.StockRecord, error)

	// Movement trail

	// AppendMovements batch inserts trail entries (same tx as the balance write).
	AppendMovements(ctx context.Context, movements []entity.StockMovement) error

	// MovementHistory returns the trail for a variant.
	MovementHistory(ctx context.Context, variantID id.ID, filter MovementFilter) ([]entity.StockMovement, error)
}

// BalanceFilter for filtering balance queries.
type BalanceFilter struct {
	VariantIDs  []id.ID
	ExcludeZero bool
}

// MovementFilter for filtering movement history.
type MovementFilter struct {
	StoreID      *id.ID
	MovementType *entity.MovementType
	ReferenceID  *string
	FromDate     *time.Time
	ToDate       *time.Time
	Limit        int
	Offset       int
}

// LowStockEvent describes available quantity crossing below a threshold.
// Delivered best-effort and asynchronously; it must never block or fail
// the mutating transaction that produced it.
type LowStockEvent struct {
	StoreID   id.ID
	VariantID id.ID
	Available types.Quantity
	Threshold types.Quantity
}

// Notifier receives low-stock events.
type Notifier interface {
	NotifyLowStock(ctx context.Context, event LowStockEvent)
}
