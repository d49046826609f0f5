// Package order_repo provides PostgreSQL storage for purchase orders
// and transfers.
package order_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/orders/purchase"
	"retailcore/internal/infrastructure/storage/postgres"
)

const (
	purchaseOrdersTable = "purchase_orders"
	purchaseItemsTable  = "purchase_order_items"
)

// PurchaseRepo implements purchase.Repository.
type PurchaseRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewPurchaseRepo creates the purchase order repository.
func NewPurchaseRepo(txManager *postgres.TxManager) *PurchaseRepo {
	return &PurchaseRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the header and its items.
func (r *PurchaseRepo) Create(ctx context.Context, order *purchase.PurchaseOrder) error {
	q := r.builder.Insert(purchaseOrdersTable).
		Columns("id", "number", "store_id", "supplier_id", "status",
			"total_amount", "notes", "created_by", "created_at", "updated_at").
		Values(order.ID, order.Number, order.StoreID, order.SupplierID, string(order.Status),
			int64(order.TotalAmount), order.Notes, order.CreatedBy, order.CreatedAt, order.UpdatedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return r.insertItems(ctx, order.ID, order.Items)
}

// GetByID loads the order with its items.
func (r *PurchaseRepo) GetByID(ctx context.Context, orderID id.ID) (*purchase.PurchaseOrder, error) {
	return r.get(ctx, orderID, false)
}

// GetByIDForUpdate loads the order with a pessimistic row lock.
func (r *PurchaseRepo) GetByIDForUpdate(ctx context.Context, orderID id.ID) (*purchase.PurchaseOrder, error) {
	return r.get(ctx, orderID, true)
}

func (r *PurchaseRepo) get(ctx context.Context, orderID id.ID, forUpdate bool) (*purchase.PurchaseOrder, error) {
	sql := `
		SELECT id, number, store_id, supplier_id, status,
			   total_amount, notes, created_by, created_at, updated_at
		FROM purchase_orders
		WHERE id = $1
	`
	if forUpdate {
		sql += " FOR UPDATE"
	}

	var order purchase.PurchaseOrder
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &order, sql, orderID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("purchase order", orderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := r.loadItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

// Update persists the header and replaces the item set.
func (r *PurchaseRepo) Update(ctx context.Context, order *purchase.PurchaseOrder) error {
	q := r.builder.Update(purchaseOrdersTable).
		Set("status", string(order.Status)).
		Set("total_amount", int64(order.TotalAmount)).
		Set("notes", order.Notes).
		Set("updated_at", order.UpdatedAt).
		Where(squirrel.Eq{"id": order.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	del := r.builder.Delete(purchaseItemsTable).Where(squirrel.Eq{"order_id": order.ID})
	sql, args, err = del.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return r.insertItems(ctx, order.ID, order.Items)
}

// List returns orders matching the filter, items not loaded.
func (r *PurchaseRepo) List(ctx context.Context, filter purchase.Filter) ([]purchase.PurchaseOrder, error) {
	q := r.builder.Select(
		"id", "number", "store_id", "supplier_id", "status",
		"total_amount", "notes", "created_by", "created_at", "updated_at",
	).From(purchaseOrdersTable)

	if filter.StoreID != nil {
		q = q.Where(squirrel.Eq{"store_id": *filter.StoreID})
	}
	if filter.SupplierID != nil {
		q = q.Where(squirrel.Eq{"supplier_id": *filter.SupplierID})
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

	var orders []purchase.PurchaseOrder
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &orders, sql, args...); err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return orders, nil
}

func (r *PurchaseRepo) insertItems(ctx context.Context, orderID id.ID, items []purchase.Item) error {
	if len(items) == 0 {
		return nil
	}

	q := r.builder.Insert(purchaseItemsTable).
		Columns("line_id", "order_id", "variant_id", "ordered_qty", "received_qty", "unit_cost")
	for _, item := range items {
		q = q.Values(item.LineID, orderID, item.VariantID,
			item.OrderedQty.Int64Scaled(), item.ReceivedQty.Int64Scaled(), item.UnitCost)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert items: %w", err)
	}
	return nil
}

func (r *PurchaseRepo) loadItems(ctx context.Context, orderID id.ID) ([]purchase.Item, error) {
	q := r.builder.Select(
		"line_id", "variant_id", "ordered_qty", "received_qty", "unit_cost",
	).From(purchaseItemsTable).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("variant_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var items []purchase.Item
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	return items, nil
}

// Ensure interface compliance.
var _ purchase.Repository = (*PurchaseRepo)(nil)
