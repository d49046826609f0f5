package pos

import (
	"context"
	"time"

	"retailcore/internal/core/id"
)

// Repository defines storage for invoices and held carts. Mutating
// methods run inside the transaction carried in the context.
type Repository interface {
	// Invoices

	CreateInvoice(ctx context.Context, invoice *Invoice) error
	GetInvoice(ctx context.Context, invoiceID id.ID) (*Invoice, error)

	// GetInvoiceForUpdate loads the invoice with a pessimistic row lock,
	// serializing workflows that claim against its lines.
	GetInvoiceForUpdate(ctx context.Context, invoiceID id.ID) (*Invoice, error)

	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// Held carts

	CreateHold(ctx context.Context, hold *HeldCart) error

	// GetHoldForUpdate loads the hold with a pessimistic row lock.
	GetHoldForUpdate(ctx context.Context, holdID id.ID) (*HeldCart, error)

	UpdateHold(ctx context.Context, hold *HeldCart) error

	// ListExpiredHoldIDs returns ids of held carts whose time box lapsed
	// before now. The sweeper locks each one individually.
	ListExpiredHoldIDs(ctx context.Context, now time.Time, limit int) ([]id.ID, error)
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	StoreID  *id.ID
	ShiftID  *id.ID
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}
