package transfer_test

import (
	"context"
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
	"retailcore/internal/domain/orders/transfer"
	"retailcore/pkg/numerator"
)

type fakeTransferRepo struct {
	transfers map[id.ID]*transfer.Transfer
}

func newFakeTransferRepo() *fakeTransferRepo {
	return &fakeTransferRepo{transfers: make(map[id.ID]*transfer.Transfer)}
}

func (r *fakeTransferRepo) Create(_ context.Context, t *transfer.Transfer) error {
	cp := *t
	r.transfers[t.ID] = &cp
	return nil
}

func (r *fakeTransferRepo) GetByID(_ context.Context, transferID id.ID) (*transfer.Transfer, error) {
	t, ok := r.transfers[transferID]
	if !ok {
		return nil, apperror.NewNotFound("transfer", transferID)
	}
	cp := *t
	cp.Lines = append([]transfer.Line(nil), t.Lines...)
	return &cp, nil
}

func (r *fakeTransferRepo) GetByIDForUpdate(ctx context.Context, transferID id.ID) (*transfer.Transfer, error) {
	return r.GetByID(ctx, transferID)
}

func (r *fakeTransferRepo) Update(_ context.Context, t *transfer.Transfer) error {
	cp := *t
	cp.Lines = append([]transfer.Line(nil), t.Lines...)
	r.transfers[t.ID] = &cp
	return nil
}

func (r *fakeTransferRepo) List(_ context.Context, filter transfer.Filter) ([]transfer.Transfer, error) {
	var out []transfer.Transfer
	for _, t := range r.transfers {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
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
	engine ledger.Engine
	svc    *transfer.Service

	fromStore id.ID
	toStore   id.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, ledgerRepo, txm := ledgertest.NewHarness()
	engine := ledger.NewService(ledgerRepo, txm, nil, ledger.Config{})
	return &harness{
		store:     store,
		engine:    engine,
		svc:       transfer.NewService(newFakeTransferRepo(), engine, txm, &fakeNumbers{}),
		fromStore: id.New(),
		toStore:   id.New(),
	}
}

func (h *harness) seed(t *testing.T, variantID id.ID, n int64) {
	t.Helper()
	_, err := h.engine.Receive(context.Background(), ledger.ReceiveInput{
		StoreID: h.fromStore, VariantID: variantID, Qty: qty(n), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)
}

func (h *harness) totalOf(variantID id.ID) types.Quantity {
	var total types.Quantity
	if rec, ok := h.store.Record(h.fromStore, variantID); ok {
		total += rec.Quantity
	}
	if rec, ok := h.store.Record(h.toStore, variantID); ok {
		total += rec.Quantity
	}
	return total
}

func TestCreate_ReservesAtOrigin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()
	h.seed(t, variantID, 20)

	tr, err := h.svc.Create(ctx, transfer.CreateInput{
		FromStoreID: h.fromStore, ToStoreID: h.toStore,
		Lines: []transfer.LineInput{{VariantID: variantID, Qty: qty(8)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "TRF-000001", tr.Number)
	assert.Equal(t, transfer.StatusPending, tr.Status)

	rec, _ := h.store.Record(h.fromStore, variantID)
	assert.Equal(t, qty(20), rec.Quantity)
	assert.Equal(t, qty(8), rec.Reserved)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Create(ctx, transfer.CreateInput{
		FromStoreID: h.fromStore, ToStoreID: h.fromStore,
		Lines: []transfer.LineInput{{VariantID: id.New(), Qty: qty(1)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = h.svc.Create(ctx, transfer.CreateInput{
		FromStoreID: h.fromStore, ToStoreID: h.toStore,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestCreate_ShortfallAbortsAllLines(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantA, variantB := id.New(), id.New()
	h.seed(t, variantA, 10)
	h.seed(t, variantB, 2)

	_, err := h.svc.Create(ctx, transfer.CreateInput{
		FromStoreID: h.fromStore, ToStoreID: h.toStore,
		Lines: []transfer.LineInput{
			{VariantID: variantA, Qty: qty(5)},
			{VariantID: variantB, Qty: qty(5)},
		},
	})
	require.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	recA, _ := h.store.Record(h.fromStore, variantA)
	recB, _ := h.store.Record(h.fromStore, variantB)
	assert.True(t, recA.Reserved.IsZero(), "partial reservation must be rolled back")
	assert.True(t, recB.Reserved.IsZero())
}

func TestLifecycle_ConservesTotalStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()
	h.seed(t, variantID, 12)

	tr, err := h.svc.Create(ctx, transfer.CreateInput{
		FromStoreID: h.fromStore, ToStoreID: h.toStore,
		Lines: []transfer.LineInput{{VariantID: variantID, Qty: qty(7)}},
	})
	require.NoError(t, err)
	assert.Equal(t, qty(12), h.totalOf(variantID))

	tr, err = h.svc.Dispatch(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusInTransit, tr.Status)
	require.NotNil(t, tr.DispatchedAt)

	origin, _ := h.store.Record(h.fromStore, variantID)
	assert.Equal(t, qty(5), origin.Quantity)
	assert.True(t, origin.Reserved.IsZero())

	tr, err = h.svc.Receive(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCompleted, tr.Status)
	require.NotNil(t, tr.CompletedAt)

	dest, ok := h.store.Record(h.toStore, variantID)
	require.True(t, ok, "destination record is created on first transfer_in")
	assert.Equal(t, qty(7), dest.Quantity)
	assert.Equal(t, qty(12), h.totalOf(variantID))

	var outs, ins int
	for _, m := range h.store.Movements() {
		switch m.MovementType {
		case entity.MovementTransferOut:
			outs++
			assert.Equal(t, qty(7).Neg(), m.Change)
			assert.Equal(t, tr.Number, m.ReferenceID)
		case entity.MovementTransferIn:
			ins++
			assert.Equal(t, qty(7), m.Change)
		}
	}
	assert.Equal(t, 1, outs)
	assert.Equal(t, 1, ins)
}

func TestCancel_ReleasesReservationWithoutMovements(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()
	h.seed(t, variantID, 10)
	movementsBefore := len(h.store.Movements())

	tr, err := h.svc.Create(ctx, transfer.CreateInput{
		FromStoreID: h.fromStore, ToStoreID: h.toStore,
		Lines: []transfer.LineInput{{VariantID: variantID, Qty: qty(4)}},
	})
	require.NoError(t, err)

	tr, err = h.svc.Cancel(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCancelled, tr.Status)

	rec, _ := h.store.Record(h.fromStore, variantID)
	assert.True(t, rec.Reserved.IsZero())
	assert.Equal(t, qty(10), rec.Quantity)
	assert.Len(t, h.store.Movements(), movementsBefore)
}

func TestTransitions_RejectWrongStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()
	h.seed(t, variantID, 10)

	tr, err := h.svc.Create(ctx, transfer.CreateInput{
		FromStoreID: h.fromStore, ToStoreID: h.toStore,
		Lines: []transfer.LineInput{{VariantID: variantID, Qty: qty(2)}},
	})
	require.NoError(t, err)

	// Pending cannot be received.
	_, err = h.svc.Receive(ctx, tr.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))

	_, err = h.svc.Dispatch(ctx, tr.ID)
	require.NoError(t, err)

	// In transit cannot be cancelled or re-dispatched.
	_, err = h.svc.Cancel(ctx, tr.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
	_, err = h.svc.Dispatch(ctx, tr.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))

	_, err = h.svc.Receive(ctx, tr.ID)
	require.NoError(t, err)

	// Completed is terminal.
	_, err = h.svc.Receive(ctx, tr.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}
