// Package pos_repo provides PostgreSQL storage for invoices and held
// carts.
package pos_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/pos"
	"retailcore/internal/domain/shifts"
	"retailcore/internal/infrastructure/storage/postgres"
)

const (
	invoicesTable        = "invoices"
	invoiceLinesTable    = "invoice_lines"
	invoicePaymentsTable = "invoice_payments"
	heldCartsTable       = "held_carts"
	heldCartLinesTable   = "held_cart_lines"
)

// PosRepo implements pos.Repository and shifts.CashSource.
type PosRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewPosRepo creates the POS repository.
func NewPosRepo(txManager *postgres.TxManager) *PosRepo {
	return &PosRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateInvoice inserts the invoice with its lines and payments.
func (r *PosRepo) CreateInvoice(ctx context.Context, invoice *pos.Invoice) error {
	q := r.builder.Insert(invoicesTable).
		Columns("id", "number", "store_id", "shift_id", "total", "created_by", "created_at").
		Values(invoice.ID, invoice.Number, invoice.StoreID, invoice.ShiftID,
			int64(invoice.Total), invoice.CreatedBy, invoice.CreatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	lq := r.builder.Insert(invoiceLinesTable).
		Columns("line_id", "invoice_id", "variant_id", "qty", "unit_price", "line_total")
	for _, line := range invoice.Lines {
		lq = lq.Values(line.LineID, invoice.ID, line.VariantID,
			line.Qty.Int64Scaled(), int64(line.UnitPrice), int64(line.LineTotal))
	}
	sql, args, err = lq.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	if len(invoice.Payments) == 0 {
		return nil
	}
	pq := r.builder.Insert(invoicePaymentsTable).
		Columns("invoice_id", "method", "amount")
	for _, p := range invoice.Payments {
		pq = pq.Values(invoice.ID, p.Method, int64(p.Amount))
	}
	sql, args, err = pq.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert payments: %w", err)
	}
	return nil
}

// GetInvoice loads the invoice with its lines and payments.
func (r *PosRepo) GetInvoice(ctx context.Context, invoiceID id.ID) (*pos.Invoice, error) {
	return r.getInvoice(ctx, invoiceID, false)
}

// GetInvoiceForUpdate loads the invoice with a pessimistic row lock.
func (r *PosRepo) GetInvoiceForUpdate(ctx context.Context, invoiceID id.ID) (*pos.Invoice, error) {
	return r.getInvoice(ctx, invoiceID, true)
}

func (r *PosRepo) getInvoice(ctx context.Context, invoiceID id.ID, forUpdate bool) (*pos.Invoice, error) {
	sql := `
		SELECT id, number, store_id, shift_id, total, created_by, created_at
		FROM invoices
		WHERE id = $1
	`
	if forUpdate {
		sql += " FOR UPDATE"
	}

	var invoice pos.Invoice
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &invoice, sql, invoiceID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("invoice", invoiceID)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	lq := r.builder.Select("line_id", "variant_id", "qty", "unit_price", "line_total").
		From(invoiceLinesTable).
		Where(squirrel.Eq{"invoice_id": invoiceID}).
		OrderBy("variant_id")
	lsql, largs, err := lq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &invoice.Lines, lsql, largs...); err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}

	pq := r.builder.Select("method", "amount").
		From(invoicePaymentsTable).
		Where(squirrel.Eq{"invoice_id": invoiceID})
	psql, pargs, err := pq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &invoice.Payments, psql, pargs...); err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	return &invoice, nil
}

// ListInvoices returns invoices matching the filter, lines not loaded.
func (r *PosRepo) ListInvoices(ctx context.Context, filter pos.InvoiceFilter) ([]pos.Invoice, error) {
	q := r.builder.Select(
		"id", "number", "store_id", "shift_id", "total", "created_by", "created_at",
	).From(invoicesTable)

	if filter.StoreID != nil {
		q = q.Where(squirrel.Eq{"store_id": *filter.StoreID})
	}
	if filter.ShiftID != nil {
		q = q.Where(squirrel.Eq{"shift_id": *filter.ShiftID})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}
	q = q.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var invoices []pos.Invoice
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &invoices, sql, args...); err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	return invoices, nil
}

// CreateHold inserts the held cart with its lines.
func (r *PosRepo) CreateHold(ctx context.Context, hold *pos.HeldCart) error {
	q := r.builder.Insert(heldCartsTable).
		Columns("id", "store_id", "status", "invoice_id", "expires_at",
			"note", "created_by", "created_at", "updated_at").
		Values(hold.ID, hold.StoreID, string(hold.Status), hold.InvoiceID, hold.ExpiresAt,
			hold.Note, hold.CreatedBy, hold.CreatedAt, hold.UpdatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert hold: %w", err)
	}

	lq := r.builder.Insert(heldCartLinesTable).
		Columns("hold_id", "variant_id", "qty", "unit_price")
	for _, line := range hold.Lines {
		lq = lq.Values(hold.ID, line.VariantID, line.Qty.Int64Scaled(), int64(line.UnitPrice))
	}
	sql, args, err = lq.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert hold lines: %w", err)
	}
	return nil
}

// GetHoldForUpdate loads the hold with a pessimistic row lock.
func (r *PosRepo) GetHoldForUpdate(ctx context.Context, holdID id.ID) (*pos.HeldCart, error) {
	sql := `
		SELECT id, store_id, status, invoice_id, expires_at,
			   note, created_by, created_at, updated_at
		FROM held_carts
		WHERE id = $1
		FOR UPDATE
	`

	var hold pos.HeldCart
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &hold, sql, holdID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("held cart", holdID)
		}
		return nil, fmt.Errorf("get hold: %w", err)
	}

	lq := r.builder.Select("variant_id", "qty", "unit_price").
		From(heldCartLinesTable).
		Where(squirrel.Eq{"hold_id": holdID}).
		OrderBy("variant_id")
	lsql, largs, err := lq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &hold.Lines, lsql, largs...); err != nil {
		return nil, fmt.Errorf("select hold lines: %w", err)
	}
	return &hold, nil
}

// UpdateHold persists the hold header.
func (r *PosRepo) UpdateHold(ctx context.Context, hold *pos.HeldCart) error {
	q := r.builder.Update(heldCartsTable).
		Set("status", string(hold.Status)).
		Set("invoice_id", hold.InvoiceID).
		Set("updated_at", hold.UpdatedAt).
		Where(squirrel.Eq{"id": hold.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update hold: %w", err)
	}
	return nil
}

// ListExpiredHoldIDs returns ids of lapsed held carts.
func (r *PosRepo) ListExpiredHoldIDs(ctx context.Context, now time.Time, limit int) ([]id.ID, error) {
	q := r.builder.Select("id").
		From(heldCartsTable).
		Where(squirrel.Eq{"status": string(pos.HoldStatusHeld)}).
		Where(squirrel.Lt{"expires_at": now}).
		OrderBy("expires_at").
		Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("select expired holds: %w", err)
	}
	return ids, nil
}

// CashPayments sums cash tenders taken during a shift.
func (r *PosRepo) CashPayments(ctx context.Context, shiftID id.ID) (types.MinorUnits, error) {
	sql := `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM invoice_payments p
		JOIN invoices i ON i.id = p.invoice_id
		WHERE i.shift_id = $1 AND p.method = 'cash'
	`

	var total int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, shiftID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum cash payments: %w", err)
	}
	return types.MinorUnits(total), nil
}

// Ensure interface compliance.
var (
	_ pos.Repository    = (*PosRepo)(nil)
	_ shifts.CashSource = (*PosRepo)(nil)
)
