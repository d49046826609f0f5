// Package ledger_repo provides the PostgreSQL implementation of the
// inventory ledger storage.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailcore/internal/core/entity"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/infrastructure/storage/postgres"
)

const (
	recordsTable   = "stock_records"
	movementsTable = "stock_movements"
)

// StockRepo implements ledger.Repository.
type StockRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewStockRepo creates the stock ledger repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetRecord returns the current balance without locking.
func (r *StockRepo) GetRecord(ctx context.Context, storeID, variantID id.ID) (entity.StockRecord, bool, error) {
	q := r.builder.Select(
		"store_id", "variant_id", "quantity", "reserved", "last_cost", "updated_at",
	).From(recordsTable).
		Where(squirrel.Eq{"store_id": storeID, "variant_id": variantID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return entity.StockRecord{}, false, fmt.Errorf("build query: %w", err)
	}

	var record entity.StockRecord
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &record, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.StockRecord{}, false, nil
		}
		return entity.StockRecord{}, false, fmt.Errorf("get record: %w", err)
	}
	return record, true, nil
}

// GetRecordForUpdate returns the balance with a pessimistic row lock.
func (r *StockRepo) GetRecordForUpdate(ctx context.Context, storeID, variantID id.ID) (entity.StockRecord, bool, error) {
	sql := `
		SELECT store_id, variant_id, quantity, reserved, last_cost, updated_at
		FROM stock_records
		WHERE store_id = $1 AND variant_id = $2
		FOR UPDATE
	`

	var record entity.StockRecord
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &record, sql, storeID, variantID); err != nil {
		if pgxscan.NotFound(err) {
			return entity.StockRecord{}, false, nil
		}
		return entity.StockRecord{}, false, fmt.Errorf("get record for update: %w", err)
	}
	return record, true, nil
}

// CreateRecord inserts a record on first receive or transfer-in.
func (r *StockRepo) CreateRecord(ctx context.Context, record *entity.StockRecord) error {
	q := r.builder.Insert(recordsTable).
		Columns("store_id", "variant_id", "quantity", "reserved", "last_cost", "updated_at").
		Values(record.StoreID, record.VariantID,
			record.Quantity.Int64Scaled(), record.Reserved.Int64Scaled(),
			record.LastCost, record.UpdatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// UpdateRecord persists new balances for an existing record.
func (r *StockRepo) UpdateRecord(ctx context.Context, record *entity.StockRecord) error {
	q := r.builder.Update(recordsTable).
		Set("quantity", record.Quantity.Int64Scaled()).
		Set("reserved", record.Reserved.Int64Scaled()).
		Set("last_cost", record.LastCost).
		Set("updated_at", record.UpdatedAt).
		Where(squirrel.Eq{"store_id": record.StoreID, "variant_id": record.VariantID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update record: no row for %s/%s", record.StoreID, record.VariantID)
	}
	return nil
}

// ListByStore returns balances for a store.
func (r *StockRepo) ListByStore(ctx context.Context, storeID id.ID, filter ledger.BalanceFilter) ([]entity.StockRecord, error) {
	q := r.builder.Select(
		"store_id", "variant_id", "quantity", "reserved", "last_cost", "updated_at",
	).From(recordsTable).
		Where(squirrel.Eq{"store_id": storeID})

	if filter.ExcludeZero {
		q = q.Where(squirrel.NotEq{"quantity": int64(0)})
	}
	if len(filter.VariantIDs) > 0 {
		q = q.Where(squirrel.Eq{"variant_id": filter.VariantIDs})
	}
	q = q.OrderBy("variant_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var records []entity.StockRecord
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &records, sql, args...); err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	return records, nil
}

// AppendMovements batch inserts trail entries. Uses COPY inside a
// transaction, which multi-line documents always provide.
func (r *StockRepo) AppendMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	columns := []string{
		"line_id", "store_id", "variant_id", "change",
		"movement_type", "reference_id", "reason", "created_by", "created_at",
	}

	if r.txManager.GetTx(ctx) != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, []any{
				m.LineID, m.StoreID, m.VariantID, m.Change.Int64Scaled(),
				string(m.MovementType), m.ReferenceID, m.Reason, m.CreatedBy, m.CreatedAt,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, movementsTable, columns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(movementsTable).Columns(columns...)
	for _, m := range movements {
		q = q.Values(
			m.LineID, m.StoreID, m.VariantID, m.Change.Int64Scaled(),
			string(m.MovementType), m.ReferenceID, m.Reason, m.CreatedBy, m.CreatedAt,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}
	return nil
}

// MovementHistory returns the trail for a variant.
func (r *StockRepo) MovementHistory(ctx context.Context, variantID id.ID, filter ledger.MovementFilter) ([]entity.StockMovement, error) {
	q := r.builder.Select(
		"line_id", "store_id", "variant_id", "change",
		"movement_type", "reference_id", "reason", "created_by", "created_at",
	).From(movementsTable).
		Where(squirrel.Eq{"variant_id": variantID})

	if filter.StoreID != nil {
		q = q.Where(squirrel.Eq{"store_id": *filter.StoreID})
	}
	if filter.MovementType != nil {
		q = q.Where(squirrel.Eq{"movement_type": string(*filter.MovementType)})
	}
	if filter.ReferenceID != nil {
		q = q.Where(squirrel.Eq{"reference_id": *filter.ReferenceID})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	q = q.OrderBy("created_at DESC", "line_id DESC")
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

	var movements []entity.StockMovement
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return movements, nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*StockRepo)(nil)
