// Package return_repo provides PostgreSQL storage for refunds.
package return_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/returns"
	"retailcore/internal/infrastructure/storage/postgres"
)

const (
	refundsTable     = "refunds"
	refundLinesTable = "refund_lines"
)

// RefundRepo implements returns.Repository.
type RefundRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewRefundRepo creates the refund repository.
func NewRefundRepo(txManager *postgres.TxManager) *RefundRepo {
	return &RefundRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the refund with its lines. Lines are immutable after
// creation, so Update never touches them.
func (r *RefundRepo) Create(ctx context.Context, refund *returns.Refund) error {
	q := r.builder.Insert(refundsTable).
		Columns("id", "number", "invoice_id", "store_id", "status", "total_amount",
			"reason", "requested_by", "approved_by", "created_at", "updated_at", "completed_at").
		Values(refund.ID, refund.Number, refund.InvoiceID, refund.StoreID, string(refund.Status),
			int64(refund.TotalAmount), refund.Reason, refund.RequestedBy, refund.ApprovedBy,
			refund.CreatedAt, refund.UpdatedAt, refund.CompletedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}

	lq := r.builder.Insert(refundLinesTable).
		Columns("line_id", "refund_id", "invoice_line_id", "variant_id", "qty", "amount")
	for _, line := range refund.Lines {
		lq = lq.Values(line.LineID, refund.ID, line.InvoiceLineID, line.VariantID,
			line.Qty.Int64Scaled(), int64(line.Amount))
	}
	sql, args, err = lq.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}
	return nil
}

// GetByID loads the refund with its lines.
func (r *RefundRepo) GetByID(ctx context.Context, refundID id.ID) (*returns.Refund, error) {
	return r.get(ctx, refundID, false)
}

// GetByIDForUpdate loads the refund with a pessimistic row lock.
func (r *RefundRepo) GetByIDForUpdate(ctx context.Context, refundID id.ID) (*returns.Refund, error) {
	return r.get(ctx, refundID, true)
}

func (r *RefundRepo) get(ctx context.Context, refundID id.ID, forUpdate bool) (*returns.Refund, error) {
	sql := `
		SELECT id, number, invoice_id, store_id, status, total_amount,
			   reason, requested_by, approved_by, created_at, updated_at, completed_at
		FROM refunds
		WHERE id = $1
	`
	if forUpdate {
		sql += " FOR UPDATE"
	}

	var refund returns.Refund
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &refund, sql, refundID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("refund", refundID)
		}
		return nil, fmt.Errorf("get refund: %w", err)
	}

	lq := r.builder.Select("line_id", "invoice_line_id", "variant_id", "qty", "amount").
		From(refundLinesTable).
		Where(squirrel.Eq{"refund_id": refundID}).
		OrderBy("variant_id")
	lsql, largs, err := lq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &refund.Lines, lsql, largs...); err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}
	return &refund, nil
}

// Update persists the header.
func (r *RefundRepo) Update(ctx context.Context, refund *returns.Refund) error {
	q := r.builder.Update(refundsTable).
		Set("status", string(refund.Status)).
		Set("approved_by", refund.ApprovedBy).
		Set("updated_at", refund.UpdatedAt).
		Set("completed_at", refund.CompletedAt).
		Where(squirrel.Eq{"id": refund.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update refund: %w", err)
	}
	return nil
}

// List returns refunds matching the filter, lines not loaded.
func (r *RefundRepo) List(ctx context.Context, filter returns.Filter) ([]returns.Refund, error) {
	q := r.builder.Select(
		"id", "number", "invoice_id", "store_id", "status", "total_amount",
		"reason", "requested_by", "approved_by", "created_at", "updated_at", "completed_at",
	).From(refundsTable)

	if filter.InvoiceID != nil {
		q = q.Where(squirrel.Eq{"invoice_id": *filter.InvoiceID})
	}
	if filter.StoreID != nil {
		q = q.Where(squirrel.Eq{"store_id": *filter.StoreID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": string(*filter.Status)})
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

	var refunds []returns.Refund
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &refunds, sql, args...); err != nil {
		return nil, fmt.Errorf("select refunds: %w", err)
	}
	return refunds, nil
}

// RefundedQty sums quantities already claimed against an invoice line.
// Rejected refunds release their claim.
func (r *RefundRepo) RefundedQty(ctx context.Context, invoiceLineID id.ID) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(l.qty), 0)
		FROM refund_lines l
		JOIN refunds r ON r.id = l.refund_id
		WHERE l.invoice_line_id = $1 AND r.status <> $2
	`

	var total int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, invoiceLineID, string(returns.StatusRejected)).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum refunded qty: %w", err)
	}
	return types.Quantity(total), nil
}

// Ensure interface compliance.
var _ returns.Repository = (*RefundRepo)(nil)
