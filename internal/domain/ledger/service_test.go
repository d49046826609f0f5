package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/entity"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/domain/ledger/ledgertest"
)

func qty(n int64) types.Quantity { return types.NewQuantityFromInt(n) }

func newEngine(t *testing.T) (*ledgertest.Store, *ledger.Service) {
	t.Helper()
	store, repo, txm := ledgertest.NewHarness()
	return store, ledger.NewService(repo, txm, nil, ledger.Config{})
}

func TestReceive_CreatesRecordAndMovement(t *testing.T) {
	store, engine := newEngine(t)
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	rec, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID:   storeID,
		VariantID: variantID,
		Qty:       qty(100),
		UnitCost:  types.MustMoney("5.00"),
		Reference: "PO-000001",
	})
	require.NoError(t, err)

	assert.Equal(t, qty(100), rec.Quantity)
	assert.Equal(t, qty(0), rec.Reserved)
	assert.True(t, rec.LastCost.Equal(types.MustMoney("5.00")))

	movements := store.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, qty(100), movements[0].Change)
	assert.Equal(t, entity.MovementReceive, movements[0].MovementType)
	assert.Equal(t, "PO-000001", movements[0].ReferenceID)
	assert.Equal(t, "system", movements[0].CreatedBy)
}

func TestReceive_RejectsNonPositiveQuantity(t *testing.T) {
	_, engine := newEngine(t)

	_, err := engine.Receive(context.Background(), ledger.ReceiveInput{
		StoreID: id.New(), VariantID: id.New(), Qty: qty(0),
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))

	_, err = engine.Receive(context.Background(), ledger.ReceiveInput{
		StoreID: id.New(), VariantID: id.New(), Qty: qty(-5),
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))
}

func TestReserve_FailsWhenAvailableExceeded(t *testing.T) {
	_, engine := newEngine(t)
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	_, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(100), UnitCost: types.MustMoney("5.00"),
	})
	require.NoError(t, err)

	rec, err := engine.Reserve(ctx, storeID, variantID, qty(30))
	require.NoError(t, err)
	assert.Equal(t, qty(30), rec.Reserved)
	assert.Equal(t, qty(70), rec.Available())

	_, err = engine.Reserve(ctx, storeID, variantID, qty(80))
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
}

func TestReserve_MissingRecord(t *testing.T) {
	_, engine := newEngine(t)

	_, err := engine.Reserve(context.Background(), id.New(), id.New(), qty(1))
	assert.True(t, apperror.HasCode(err, apperror.CodeRecordNotFound))
}

func TestReserve_LogsNoMovement(t *testing.T) {
	store, engine := newEngine(t)
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	_, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(10), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)
	before := len(store.Movements())

	_, err = engine.Reserve(ctx, storeID, variantID, qty(5))
	require.NoError(t, err)
	_, err = engine.Release(ctx, storeID, variantID, qty(5))
	require.NoError(t, err)

	assert.Len(t, store.Movements(), before, "reserve/release must not log movements")
}

func TestRelease_BelowZero(t *testing.T) {
	_, engine := newEngine(t)
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	_, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(10), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)

	_, err = engine.Release(ctx, storeID, variantID, qty(1))
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestCommit_ConsumesReservationAndLogsSale(t *testing.T) {
	store, engine := newEngine(t)
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	_, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(50), UnitCost: types.MustMoney("2.50"),
	})
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, storeID, variantID, qty(20))
	require.NoError(t, err)

	rec, err := engine.Commit(ctx, ledger.CommitInput{
		StoreID: storeID, VariantID: variantID,
		Qty: qty(20), ReservedQty: qty(20),
		MovementType: entity.MovementSale, Reference: "S1-20260829-000001",
	})
	require.NoError(t, err)
	assert.Equal(t, qty(30), rec.Quantity)
	assert.Equal(t, qty(0), rec.Reserved)

	movements := store.Movements()
	last := movements[len(movements)-1]
	assert.Equal(t, qty(20).Neg(), last.Change)
	assert.Equal(t, entity.MovementSale, last.MovementType)
}

func TestCommit_DirectSaleWithoutReservation(t *testing.T) {
	_, engine := newEngine(t)
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	_, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(10), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)

	rec, err := engine.Commit(ctx, ledger.CommitInput{
		StoreID: storeID, VariantID: variantID,
		Qty: qty(4), MovementType: entity.MovementSale,
	})
	require.NoError(t, err)
	assert.Equal(t, qty(6), rec.Quantity)
}

func TestCommit_Failures(t *testing.T) {
	_, engine := newEngine(t)
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	_, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(10), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, storeID, variantID, qty(4))
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       ledger.CommitInput
		wantCode string
	}{
		{
			name: "quantity would go negative",
			in: ledger.CommitInput{
				StoreID: storeID, VariantID: variantID,
				Qty: qty(11), MovementType: entity.MovementSale,
			},
			wantCode: apperror.CodeInsufficientStock,
		},
		{
			name: "declared reservation exceeds held",
			in: ledger.CommitInput{
				StoreID: storeID, VariantID: variantID,
				Qty: qty(6), ReservedQty: qty(6), MovementType: entity.MovementSale,
			},
			wantCode: apperror.CodeReservationMismatch,
		},
		{
			name: "unreserved commit eats into reservations",
			in: ledger.CommitInput{
				StoreID: storeID, VariantID: variantID,
				Qty: qty(8), MovementType: entity.MovementSale,
			},
			wantCode: apperror.CodeInsufficientStock,
		},
		{
			name: "invalid movement type",
			in: ledger.CommitInput{
				StoreID: storeID, VariantID: variantID,
				Qty: qty(1), MovementType: entity.MovementRefund,
			},
			wantCode: apperror.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Commit(ctx, tt.in)
			assert.True(t, apperror.HasCode(err, tt.wantCode),
				"want %s, got %v", tt.wantCode, err)
		})
	}
}

func TestRestock_CreatesRecordAtDestination(t *testing.T) {
	store, engine := newEngine(t)
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	rec, err := engine.Restock(ctx, ledger.RestockInput{
		StoreID: storeID, VariantID: variantID,
		Qty: qty(15), MovementType: entity.MovementTransferIn, Reference: "TRF-000001",
	})
	require.NoError(t, err)
	assert.Equal(t, qty(15), rec.Quantity)

	movements := store.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, entity.MovementTransferIn, movements[0].MovementType)
	assert.Equal(t, qty(15), movements[0].Change)
}

func TestAdjust(t *testing.T) {
	store, engine := newEngine(t)
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	_, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(20), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, storeID, variantID, qty(5))
	require.NoError(t, err)

	t.Run("requires exactly one of delta or setTo", func(t *testing.T) {
		_, err := engine.Adjust(ctx, ledger.AdjustInput{StoreID: storeID, VariantID: variantID})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

		d, target := qty(1), qty(1)
		_, err = engine.Adjust(ctx, ledger.AdjustInput{
			StoreID: storeID, VariantID: variantID, Delta: &d, SetTo: &target,
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})

	t.Run("cannot reduce below reserved", func(t *testing.T) {
		target := qty(3)
		_, err := engine.Adjust(ctx, ledger.AdjustInput{
			StoreID: storeID, VariantID: variantID, SetTo: &target,
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
	})

	t.Run("cannot go negative", func(t *testing.T) {
		d := qty(-100)
		_, err := engine.Adjust(ctx, ledger.AdjustInput{
			StoreID: storeID, VariantID: variantID, Delta: &d,
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
	})

	t.Run("logs signed effective delta", func(t *testing.T) {
		target := qty(12)
		rec, err := engine.Adjust(ctx, ledger.AdjustInput{
			StoreID: storeID, VariantID: variantID, SetTo: &target, Reason: "cycle count",
		})
		require.NoError(t, err)
		assert.Equal(t, qty(12), rec.Quantity)

		movements := store.Movements()
		last := movements[len(movements)-1]
		assert.Equal(t, entity.MovementAdjustment, last.MovementType)
		assert.Equal(t, qty(-8), last.Change)
		assert.Equal(t, "cycle count", last.Reason)
	})

	t.Run("zero effective delta is a no-op", func(t *testing.T) {
		before := len(store.Movements())
		d := qty(0)
		_, err := engine.Adjust(ctx, ledger.AdjustInput{
			StoreID: storeID, VariantID: variantID, Delta: &d,
		})
		require.NoError(t, err)
		assert.Len(t, store.Movements(), before)
	})
}

func TestFailedOperation_LeavesStateUnchanged(t *testing.T) {
	store, repo, txm := ledgertest.NewHarness()
	engine := ledger.NewService(repo, txm, nil, ledger.Config{})
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	_, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(40), UnitCost: types.MustMoney("3.00"),
	})
	require.NoError(t, err)

	recBefore, _ := store.Record(storeID, variantID)
	movementsBefore := store.Movements()

	// Balance write succeeds, movement append blows up mid-transaction.
	store.FailOnAppend = func([]entity.StockMovement) error {
		return errors.New("injected failure")
	}
	_, err = engine.Commit(ctx, ledger.CommitInput{
		StoreID: storeID, VariantID: variantID,
		Qty: qty(10), MovementType: entity.MovementSale,
	})
	require.Error(t, err)
	store.FailOnAppend = nil

	recAfter, _ := store.Record(storeID, variantID)
	assert.Equal(t, recBefore.Quantity, recAfter.Quantity)
	assert.Equal(t, recBefore.Reserved, recAfter.Reserved)
	assert.Equal(t, len(movementsBefore), len(store.Movements()))
}

func TestConcurrentReserve_ExactlyOneSucceeds(t *testing.T) {
	_, engine := newEngine(t)
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	_, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(5), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, want := range []types.Quantity{qty(3), qty(4)} {
		wg.Add(1)
		go func(i int, want types.Quantity) {
			defer wg.Done()
			_, errs[i] = engine.Reserve(ctx, storeID, variantID, want)
		}(i, want)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperror.HasCode(err, apperror.CodeInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one reserve must succeed")
	assert.Equal(t, 1, insufficient, "exactly one reserve must fail with InsufficientStock")
}

func TestIntegrityViolation_SurfacedNotCorrected(t *testing.T) {
	store, repo, txm := ledgertest.NewHarness()
	engine := ledger.NewService(repo, txm, nil, ledger.Config{})
	storeID, variantID := id.New(), id.New()

	// Corrupted upstream: reserved exceeds quantity.
	store.Put(entity.StockRecord{
		StoreID: storeID, VariantID: variantID,
		Quantity: qty(5), Reserved: qty(9), UpdatedAt: time.Now(),
	})

	_, err := engine.Reserve(context.Background(), storeID, variantID, qty(1))
	assert.True(t, apperror.HasCode(err, apperror.CodeIntegrityViolation))

	rec, _ := store.Record(storeID, variantID)
	assert.Equal(t, qty(9), rec.Reserved, "violation must not be silently corrected")
}

type captureNotifier struct {
	events chan ledger.LowStockEvent
}

func (n *captureNotifier) NotifyLowStock(_ context.Context, event ledger.LowStockEvent) {
	n.events <- event
}

func TestLowStockNotification_FiredOnCrossing(t *testing.T) {
	store, repo, txm := ledgertest.NewHarness()
	notifier := &captureNotifier{events: make(chan ledger.LowStockEvent, 4)}
	engine := ledger.NewService(repo, txm, notifier, ledger.Config{LowStockThreshold: qty(10)})
	_ = store
	ctx := context.Background()
	storeID, variantID := id.New(), id.New()

	_, err := engine.Receive(ctx, ledger.ReceiveInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(12), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)

	_, err = engine.Commit(ctx, ledger.CommitInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(5), MovementType: entity.MovementSale,
	})
	require.NoError(t, err)

	select {
	case event := <-notifier.events:
		assert.Equal(t, qty(7), event.Available)
		assert.Equal(t, qty(10), event.Threshold)
	case <-time.After(time.Second):
		t.Fatal("expected low stock notification")
	}

	// Already below threshold: no second notification for further drops.
	_, err = engine.Commit(ctx, ledger.CommitInput{
		StoreID: storeID, VariantID: variantID, Qty: qty(1), MovementType: entity.MovementSale,
	})
	require.NoError(t, err)

	select {
	case <-notifier.events:
		t.Fatal("crossing already happened, no repeat notification expected")
	case <-time.After(50 * time.Millisecond):
	}
}
