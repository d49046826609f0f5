package purchase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/entity"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/domain/ledger/ledgertest"
	"retailcore/internal/domain/orders/purchase"
	"retailcore/pkg/numerator"
)

type fakeOrderRepo struct {
	orders map[id.ID]*purchase.PurchaseOrder
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[id.ID]*purchase.PurchaseOrder)}
}

func (r *fakeOrderRepo) Create(_ context.Context, order *purchase.PurchaseOrder) error {
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, orderID id.ID) (*purchase.PurchaseOrder, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("purchase order", orderID)
	}
	cp := *order
	cp.Items = append([]purchase.Item(nil), order.Items...)
	return &cp, nil
}

func (r *fakeOrderRepo) GetByIDForUpdate(ctx context.Context, orderID id.ID) (*purchase.PurchaseOrder, error) {
	return r.GetByID(ctx, orderID)
}

func (r *fakeOrderRepo) Update(_ context.Context, order *purchase.PurchaseOrder) error {
	cp := *order
	cp.Items = append([]purchase.Item(nil), order.Items...)
	r.orders[order.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) List(_ context.Context, filter purchase.Filter) ([]purchase.PurchaseOrder, error) {
	var out []purchase.PurchaseOrder
	for _, order := range r.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		out = append(out, *order)
	}
	return out, nil
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) NextNumber(_ context.Context, cfg numerator.Config) (string, error) {
	f.n++
	return fmt.Sprintf("%s-%06d", cfg.Prefix, f.n), nil
}

func qty(n int64) types.Quantity { return types.NewQuantityFromInt(n) }

type harness struct {
	store  *ledgertest.Store
	orders *fakeOrderRepo
	svc    *purchase.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, ledgerRepo, txm := ledgertest.NewHarness()
	engine := ledger.NewService(ledgerRepo, txm, nil, ledger.Config{})
	orders := newFakeOrderRepo()
	return &harness{
		store:  store,
		orders: orders,
		svc:    purchase.NewService(orders, engine, txm, &fakeNumbers{}),
	}
}

func (h *harness) approvedOrder(t *testing.T, items []purchase.ItemInput) *purchase.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	order, err := h.svc.Create(ctx, purchase.CreateInput{
		StoreID: id.New(), SupplierID: id.New(), Items: items,
	})
	require.NoError(t, err)
	_, err = h.svc.Submit(ctx, order.ID)
	require.NoError(t, err)
	order, err = h.svc.Approve(ctx, order.ID)
	require.NoError(t, err)
	return order
}

func TestCreate_NumbersAndTotal(t *testing.T) {
	h := newHarness(t)

	order, err := h.svc.Create(context.Background(), purchase.CreateInput{
		StoreID:    id.New(),
		SupplierID: id.New(),
		Items: []purchase.ItemInput{
			{VariantID: id.New(), Qty: qty(10), UnitCost: types.MustMoney("2.50")},
			{VariantID: id.New(), Qty: qty(3), UnitCost: types.MustMoney("0.99")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "PO-000001", order.Number)
	assert.Equal(t, purchase.StatusDraft, order.Status)
	// 10 * 2.50 + 3 * 0.99 = 27.97
	assert.Equal(t, types.MinorUnits(2797), order.TotalAmount)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, purchase.CreateInput{StoreID: id.New(), SupplierID: id.New()})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = h.svc.Create(ctx, purchase.CreateInput{
		StoreID: id.New(), SupplierID: id.New(),
		Items: []purchase.ItemInput{{VariantID: id.New(), Qty: qty(0)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))
}

func TestStatusTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order, err := h.svc.Create(ctx, purchase.CreateInput{
		StoreID: id.New(), SupplierID: id.New(),
		Items: []purchase.ItemInput{{VariantID: id.New(), Qty: qty(1), UnitCost: types.MustMoney("1.00")}},
	})
	require.NoError(t, err)

	// Skipping a step is rejected.
	_, err = h.svc.Approve(ctx, order.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))

	order, err = h.svc.Submit(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusSubmitted, order.Status)

	order, err = h.svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusCancelled, order.Status)

	// Terminal: no resurrection, no cancel-again.
	_, err = h.svc.Submit(ctx, order.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
	_, err = h.svc.Cancel(ctx, order.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestUpdateItems_RecomputesTotalAndLocks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()

	order := h.approvedOrder(t, []purchase.ItemInput{
		{VariantID: variantID, Qty: qty(5), UnitCost: types.MustMoney("4.00")},
	})
	require.Equal(t, types.MinorUnits(2000), order.TotalAmount)

	order, err := h.svc.UpdateItems(ctx, order.ID, []purchase.ItemInput{
		{VariantID: variantID, Qty: qty(2), UnitCost: types.MustMoney("4.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, types.MinorUnits(800), order.TotalAmount)

	_, err = h.svc.Receive(ctx, order.ID, nil)
	require.NoError(t, err)

	_, err = h.svc.UpdateItems(ctx, order.ID, []purchase.ItemInput{
		{VariantID: variantID, Qty: qty(9), UnitCost: types.MustMoney("4.00")},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeOrderLocked))
}

func TestReceive_FullReceipt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantA, variantB := id.New(), id.New()

	order := h.approvedOrder(t, []purchase.ItemInput{
		{VariantID: variantA, Qty: qty(10), UnitCost: types.MustMoney("2.00")},
		{VariantID: variantB, Qty: qty(4), UnitCost: types.MustMoney("7.50")},
	})

	order, err := h.svc.Receive(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusReceived, order.Status)

	recA, ok := h.store.Record(order.StoreID, variantA)
	require.True(t, ok)
	assert.Equal(t, qty(10), recA.Quantity)
	assert.True(t, recA.LastCost.Equal(types.MustMoney("2.00")))

	movements := h.store.Movements()
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, entity.MovementReceive, m.MovementType)
		assert.Equal(t, order.Number, m.ReferenceID)
	}

	_, err = h.svc.Receive(ctx, order.ID, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeOrderLocked))
}

func TestReceive_PartialKeepsOrderOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()

	order := h.approvedOrder(t, []purchase.ItemInput{
		{VariantID: variantID, Qty: qty(10), UnitCost: types.MustMoney("1.00")},
	})
	lineID := order.Items[0].LineID

	order, err := h.svc.Receive(ctx, order.ID, []purchase.ReceiveLine{{LineID: lineID, Qty: qty(6)}})
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusApproved, order.Status)
	assert.Equal(t, qty(6), order.Items[0].ReceivedQty)

	// Over-receiving the remainder is rejected.
	_, err = h.svc.Receive(ctx, order.ID, []purchase.ReceiveLine{{LineID: lineID, Qty: qty(5)}})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))

	order, err = h.svc.Receive(ctx, order.ID, []purchase.ReceiveLine{{LineID: lineID, Qty: qty(4)}})
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusReceived, order.Status)

	rec, _ := h.store.Record(order.StoreID, variantID)
	assert.Equal(t, qty(10), rec.Quantity)
}

func TestReceive_RequiresApprovedStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order, err := h.svc.Create(ctx, purchase.CreateInput{
		StoreID: id.New(), SupplierID: id.New(),
		Items: []purchase.ItemInput{{VariantID: id.New(), Qty: qty(1), UnitCost: types.MustMoney("1.00")}},
	})
	require.NoError(t, err)

	_, err = h.svc.Receive(ctx, order.ID, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestReceive_FailureAbortsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantA, variantB := id.New(), id.New()

	order := h.approvedOrder(t, []purchase.ItemInput{
		{VariantID: variantA, Qty: qty(5), UnitCost: types.MustMoney("1.00")},
		{VariantID: variantB, Qty: qty(5), UnitCost: types.MustMoney("1.00")},
	})

	// The second movement append blows up; the first line's increment
	// must be rolled back with it.
	var calls int
	h.store.FailOnAppend = func([]entity.StockMovement) error {
		calls++
		if calls == 2 {
			return errors.New("injected failure")
		}
		return nil
	}

	_, err := h.svc.Receive(ctx, order.ID, nil)
	require.Error(t, err)
	h.store.FailOnAppend = nil

	_, okA := h.store.Record(order.StoreID, variantA)
	_, okB := h.store.Record(order.StoreID, variantB)
	assert.False(t, okA, "no stock may appear from an aborted receipt")
	assert.False(t, okB)
	assert.Empty(t, h.store.Movements())

	reloaded, err := h.svc.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusApproved, reloaded.Status)
	assert.True(t, reloaded.Items[0].ReceivedQty.IsZero())
	assert.True(t, reloaded.Items[1].ReceivedQty.IsZero())
}
