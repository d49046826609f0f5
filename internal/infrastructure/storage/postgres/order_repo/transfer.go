package order_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/orders/transfer"
	"retailcore/internal/infrastructure/storage/postgres"
)

const (
	transfersTable     = "transfers"
	transferLinesTable = "transfer_lines"
)

// TransferRepo implements transfer.Repository.
type TransferRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewTransferRepo creates the transfer repository.
func NewTransferRepo(txManager *postgres.TxManager) *TransferRepo {
	return &TransferRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the header and its lines. Lines are immutable after
// creation, so Update never touches them.
func (r *TransferRepo) Create(ctx context.Context, t *transfer.Transfer) error {
	q := r.builder.Insert(transfersTable).
		Columns("id", "number", "from_store_id", "to_store_id", "status",
			"notes", "created_by", "created_at", "updated_at", "dispatched_at", "completed_at").
		Values(t.ID, t.Number, t.FromStoreID, t.ToStoreID, string(t.Status),
			t.Notes, t.CreatedBy, t.CreatedAt, t.UpdatedAt, t.DispatchedAt, t.CompletedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}

	lq := r.builder.Insert(transferLinesTable).
		Columns("line_id", "transfer_id", "variant_id", "qty")
	for _, line := range t.Lines {
		lq = lq.Values(line.LineID, t.ID, line.VariantID, line.Qty.Int64Scaled())
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

// GetByID loads the transfer with its lines.
func (r *TransferRepo) GetByID(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	return r.get(ctx, transferID, false)
}

// GetByIDForUpdate loads the transfer with a pessimistic row lock.
func (r *TransferRepo) GetByIDForUpdate(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	return r.get(ctx, transferID, true)
}

func (r *TransferRepo) get(ctx context.Context, transferID id.ID, forUpdate bool) (*transfer.Transfer, error) {
	sql := `
		SELECT id, number, from_store_id, to_store_id, status,
			   notes, created_by, created_at, updated_at, dispatched_at, completed_at
		FROM transfers
		WHERE id = $1
	`
	if forUpdate {
		sql += " FOR UPDATE"
	}

	var t transfer.Transfer
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &t, sql, transferID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("transfer", transferID)
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}

	lq := r.builder.Select("line_id", "variant_id", "qty").
		From(transferLinesTable).
		Where(squirrel.Eq{"transfer_id": transferID}).
		OrderBy("variant_id")
	lsql, largs, err := lq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &t.Lines, lsql, largs...); err != nil {
		return nil, fmt.Errorf("select lines: %w", err)
	}
	return &t, nil
}

// Update persists the header.
func (r *TransferRepo) Update(ctx context.Context, t *transfer.Transfer) error {
	q := r.builder.Update(transfersTable).
		Set("status", string(t.Status)).
		Set("notes", t.Notes).
		Set("updated_at", t.UpdatedAt).
		Set("dispatched_at", t.DispatchedAt).
		Set("completed_at", t.CompletedAt).
		Where(squirrel.Eq{"id": t.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	return nil
}

// List returns transfers matching the filter, lines not loaded.
func (r *TransferRepo) List(ctx context.Context, filter transfer.Filter) ([]transfer.Transfer, error) {
	q := r.builder.Select(
		"id", "number", "from_store_id", "to_store_id", "status",
		"notes", "created_by", "created_at", "updated_at", "dispatched_at", "completed_at",
	).From(transfersTable)

	if filter.FromStoreID != nil {
		q = q.Where(squirrel.Eq{"from_store_id": *filter.FromStoreID})
	}
	if filter.ToStoreID != nil {
		q = q.Where(squirrel.Eq{"to_store_id": *filter.ToStoreID})
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

	var transfers []transfer.Transfer
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &transfers, sql, args...); err != nil {
		return nil, fmt.Errorf("select transfers: %w", err)
	}
	return transfers, nil
}

// Ensure interface compliance.
var _ transfer.Repository = (*TransferRepo)(nil)
