package purchase

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"retailcore/internal/core/apperror"
	appctx "retailcore/internal/core/context"
	"retailcore/internal/core/id"
	"retailcore/internal/core/tx"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/ledger"
	"retailcore/pkg/logger"
	"retailcore/pkg/numerator"
)

// NumberSource hands out document numbers. Satisfied by numerator.Service.
type NumberSource interface {
	NextNumber(ctx context.Context, cfg numerator.Config) (string, error)
}

// Service drives the purchase order lifecycle. Stock only moves on
// Receive, and only through the reservation engine.
type Service struct {
	repo      Repository
	engine    ledger.Engine
	txManager tx.Manager
	numbers   NumberSource
}

// NewService creates the purchase order service.
func NewService(repo Repository, engine ledger.Engine, txManager tx.Manager, numbers NumberSource) *Service {
	return &Service{
		repo:      repo,
		engine:    engine,
		txManager: txManager,
		numbers:   numbers,
	}
}

// ItemInput is one ordered line in a create or item-update request.
type ItemInput struct {
	VariantID id.ID
	Qty       types.Quantity
	UnitCost  types.Money
}

// CreateInput describes a new draft order.
type CreateInput struct {
	StoreID    id.ID
	SupplierID id.ID
	Items      []ItemInput
	Notes      string
}

// ReceiveLine directs a partial receipt. Qty zero means the full
// remaining quantity of the line.
type ReceiveLine struct {
	LineID id.ID
	Qty    types.Quantity
}

// Create makes a new draft order with a generated PO number.
func (s *Service) Create(ctx context.Context, in CreateInput) (*PurchaseOrder, error) {
	items, err := buildItems(in.Items)
	if err != nil {
		return nil, err
	}

	var order *PurchaseOrder
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := s.numbers.NextNumber(ctx, numerator.PurchaseOrderConfig())
		if err != nil {
			return fmt.Errorf("next po number: %w", err)
		}

		now := time.Now().UTC()
		order = &PurchaseOrder{
			ID:         id.New(),
			Number:     number,
			StoreID:    in.StoreID,
			SupplierID: in.SupplierID,
			Status:     StatusDraft,
			Items:      items,
			Notes:      in.Notes,
			CreatedBy:  appctx.ActorID(ctx),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		order.RecalcTotal()

		if err := s.repo.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order created",
		"order_id", order.ID, "number", order.Number, "total", order.TotalAmount)
	return order, nil
}

// UpdateItems replaces the item set of an order that is not yet received.
func (s *Service) UpdateItems(ctx context.Context, orderID id.ID, in []ItemInput) (*PurchaseOrder, error) {
	items, err := buildItems(in)
	if err != nil {
		return nil, err
	}

	var order *PurchaseOrder
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		order, err = s.repo.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := checkEditable(order); err != nil {
			return err
		}

		order.Items = items
		order.RecalcTotal()
		order.Touch()
		if err := s.repo.Update(ctx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Submit moves a draft order to submitted.
func (s *Service) Submit(ctx context.Context, orderID id.ID) (*PurchaseOrder, error) {
	return s.transition(ctx, orderID, StatusSubmitted)
}

// Approve moves a submitted order to approved.
func (s *Service) Approve(ctx context.Context, orderID id.ID) (*PurchaseOrder, error) {
	return s.transition(ctx, orderID, StatusApproved)
}

// Cancel terminates an order that has not been received.
func (s *Service) Cancel(ctx context.Context, orderID id.ID) (*PurchaseOrder, error) {
	return s.transition(ctx, orderID, StatusCancelled)
}

// Receive books goods against an approved order. Lines direct a partial
// receipt; an empty slice receives everything still outstanding. All
// stock increments and the order update happen in one transaction.
func (s *Service) Receive(ctx context.Context, orderID id.ID, lines []ReceiveLine) (*PurchaseOrder, error) {
	var order *PurchaseOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.repo.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case StatusReceived:
			return apperror.NewOrderLocked(order.Number)
		case StatusApproved:
		default:
			return apperror.NewInvalidState("only approved orders can be received").
				WithDetail("order_id", orderID.String()).
				WithDetail("status", string(order.Status))
		}

		receipts, err := resolveReceipts(order, lines)
		if err != nil {
			return err
		}
		if len(receipts) == 0 {
			return apperror.NewValidation("nothing left to receive")
		}

		// Ascending variant order keeps the row lock order deterministic
		// across concurrent multi-line operations.
		sort.Slice(receipts, func(i, j int) bool {
			return bytes.Compare(receipts[i].item.VariantID[:], receipts[j].item.VariantID[:]) < 0
		})

		for _, r := range receipts {
			_, err := s.engine.Receive(ctx, ledger.ReceiveInput{
				StoreID:   order.StoreID,
				VariantID: r.item.VariantID,
				Qty:       r.qty,
				UnitCost:  r.item.UnitCost,
				Reference: order.Number,
			})
			if err != nil {
				return err
			}
			r.item.ReceivedQty += r.qty
		}

		if order.FullyReceived() {
			order.Status = StatusReceived
		}
		order.Touch()
		if err := s.repo.Update(ctx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order received",
		"order_id", order.ID, "number", order.Number, "status", string(order.Status))
	return order, nil
}

// GetByID returns an order with its items.
func (s *Service) GetByID(ctx context.Context, orderID id.ID) (*PurchaseOrder, error) {
	return s.repo.GetByID(ctx, orderID)
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]PurchaseOrder, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) transition(ctx context.Context, orderID id.ID, next Status) (*PurchaseOrder, error) {
	var order *PurchaseOrder
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.repo.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(next) {
			return apperror.NewInvalidState(
				fmt.Sprintf("purchase order cannot move from %s to %s", order.Status, next)).
				WithDetail("order_id", orderID.String())
		}

		order.Status = next
		order.Touch()
		if err := s.repo.Update(ctx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

type receipt struct {
	item *Item
	qty  types.Quantity
}

// resolveReceipts validates requested lines against the order. Empty
// input expands to the full outstanding remainder of every line.
func resolveReceipts(order *PurchaseOrder, lines []ReceiveLine) ([]receipt, error) {
	if len(lines) == 0 {
		var out []receipt
		for i := range order.Items {
			item := &order.Items[i]
			if remaining := item.Remaining(); remaining.IsPositive() {
				out = append(out, receipt{item: item, qty: remaining})
			}
		}
		return out, nil
	}

	out := make([]receipt, 0, len(lines))
	for _, line := range lines {
		item := order.ItemByLine(line.LineID)
		if item == nil {
			return nil, apperror.NewValidation("unknown order line").
				WithDetail("line_id", line.LineID.String())
		}

		qty := line.Qty
		if qty.IsZero() {
			qty = item.Remaining()
		}
		if !qty.IsPositive() {
			return nil, apperror.NewInvalidQuantity("receive quantity must be positive").
				WithDetail("line_id", line.LineID.String())
		}
		if qty > item.Remaining() {
			return nil, apperror.NewInvalidQuantity("receive quantity exceeds outstanding amount").
				WithDetail("line_id", line.LineID.String()).
				WithDetail("requested", qty.Float64()).
				WithDetail("remaining", item.Remaining().Float64())
		}
		out = append(out, receipt{item: item, qty: qty})
	}
	return out, nil
}

func buildItems(in []ItemInput) ([]Item, error) {
	if len(in) == 0 {
		return nil, apperror.NewValidation("purchase order requires at least one item")
	}
	items := make([]Item, 0, len(in))
	for _, it := range in {
		if !it.Qty.IsPositive() {
			return nil, apperror.NewInvalidQuantity("ordered quantity must be positive").
				WithDetail("variant_id", it.VariantID.String())
		}
		if it.UnitCost.IsNegative() {
			return nil, apperror.NewValidation("unit cost cannot be negative").
				WithDetail("variant_id", it.VariantID.String())
		}
		items = append(items, Item{
			LineID:     id.New(),
			VariantID:  it.VariantID,
			OrderedQty: it.Qty,
			UnitCost:   it.UnitCost,
		})
	}
	return items, nil
}

func checkEditable(order *PurchaseOrder) error {
	switch order.Status {
	case StatusReceived:
		return apperror.NewOrderLocked(order.Number)
	case StatusCancelled:
		return apperror.NewInvalidState("cancelled orders cannot be edited").
			WithDetail("order_id", order.ID.String())
	}
	return nil
}
