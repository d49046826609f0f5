package pos_test

import (
	"context"
	"fmt"
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
	"retailcore/internal/domain/pos"
	"retailcore/pkg/numerator"
)

type fakePosRepo struct {
	invoices map[id.ID]*pos.Invoice
	holds    map[id.ID]*pos.HeldCart
}

func newFakePosRepo() *fakePosRepo {
	return &fakePosRepo{
		invoices: make(map[id.ID]*pos.Invoice),
		holds:    make(map[id.ID]*pos.HeldCart),
	}
}

func (r *fakePosRepo) CreateInvoice(_ context.Context, invoice *pos.Invoice) error {
	cp := *invoice
	r.invoices[invoice.ID] = &cp
	return nil
}

func (r *fakePosRepo) GetInvoice(_ context.Context, invoiceID id.ID) (*pos.Invoice, error) {
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return nil, apperror.NewNotFound("invoice", invoiceID)
	}
	cp := *inv
	return &cp, nil
}

func (r *fakePosRepo) GetInvoiceForUpdate(ctx context.Context, invoiceID id.ID) (*pos.Invoice, error) {
	return r.GetInvoice(ctx, invoiceID)
}

func (r *fakePosRepo) ListInvoices(_ context.Context, _ pos.InvoiceFilter) ([]pos.Invoice, error) {
	var out []pos.Invoice
	for _, inv := range r.invoices {
		out = append(out, *inv)
	}
	return out, nil
}

func (r *fakePosRepo) CreateHold(_ context.Context, hold *pos.HeldCart) error {
	cp := *hold
	r.holds[hold.ID] = &cp
	return nil
}

func (r *fakePosRepo) GetHoldForUpdate(_ context.Context, holdID id.ID) (*pos.HeldCart, error) {
	hold, ok := r.holds[holdID]
	if !ok {
		return nil, apperror.NewNotFound("held cart", holdID)
	}
	cp := *hold
	cp.Lines = append([]pos.HeldLine(nil), hold.Lines...)
	return &cp, nil
}

func (r *fakePosRepo) UpdateHold(_ context.Context, hold *pos.HeldCart) error {
	cp := *hold
	cp.Lines = append([]pos.HeldLine(nil), hold.Lines...)
	r.holds[hold.ID] = &cp
	return nil
}

func (r *fakePosRepo) ListExpiredHoldIDs(_ context.Context, now time.Time, limit int) ([]id.ID, error) {
	var out []id.ID
	for _, hold := range r.holds {
		if hold.Status == pos.HoldStatusHeld && hold.ExpiredAt(now) {
			out = append(out, hold.ID)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) NextNumber(_ context.Context, cfg numerator.Config) (string, error) {
	f.n++
	return fmt.Sprintf("%s%s-%06d", cfg.Prefix, cfg.Scope, f.n), nil
}

func qty(n int64) types.Quantity { return types.NewQuantityFromInt(n) }

func cents(n int64) types.MinorUnits { return types.MinorUnits(n) }

type harness struct {
	store   *ledgertest.Store
	engine  ledger.Engine
	repo    *fakePosRepo
	svc     *pos.Service
	storeID id.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, ledgerRepo, txm := ledgertest.NewHarness()
	engine := ledger.NewService(ledgerRepo, txm, nil, ledger.Config{})
	repo := newFakePosRepo()
	return &harness{
		store:   store,
		engine:  engine,
		repo:    repo,
		svc:     pos.NewService(repo, engine, txm, &fakeNumbers{}, pos.Config{}),
		storeID: id.New(),
	}
}

func (h *harness) seed(t *testing.T, variantID id.ID, n int64) {
	t.Helper()
	_, err := h.engine.Receive(context.Background(), ledger.ReceiveInput{
		StoreID: h.storeID, VariantID: variantID, Qty: qty(n), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)
}

func TestCheckout_CommitsAllLines(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantA, variantB := id.New(), id.New()
	h.seed(t, variantA, 10)
	h.seed(t, variantB, 10)

	invoice, err := h.svc.Checkout(ctx, pos.CheckoutInput{
		StoreID:   h.storeID,
		StoreCode: "3",
		Lines: []pos.CartLine{
			{VariantID: variantA, Qty: qty(2), UnitPrice: cents(500)},
			{VariantID: variantB, Qty: qty(1), UnitPrice: cents(1250)},
		},
		Payments: []pos.PaymentInput{{Method: "card", Amount: cents(2250)}},
	})
	require.NoError(t, err)

	assert.Equal(t, cents(2250), invoice.Total)
	assert.Contains(t, invoice.Number, "S3-")

	recA, _ := h.store.Record(h.storeID, variantA)
	recB, _ := h.store.Record(h.storeID, variantB)
	assert.Equal(t, qty(8), recA.Quantity)
	assert.Equal(t, qty(9), recB.Quantity)

	var sales int
	for _, m := range h.store.Movements() {
		if m.MovementType == entity.MovementSale {
			sales++
			assert.Equal(t, invoice.Number, m.ReferenceID)
		}
	}
	assert.Equal(t, 2, sales)
}

func TestCheckout_ShortfallAbortsWholeSale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantA, variantB := id.New(), id.New()
	h.seed(t, variantA, 10)
	h.seed(t, variantB, 1)

	_, err := h.svc.Checkout(ctx, pos.CheckoutInput{
		StoreID:   h.storeID,
		StoreCode: "1",
		Lines: []pos.CartLine{
			{VariantID: variantA, Qty: qty(2), UnitPrice: cents(100)},
			{VariantID: variantB, Qty: qty(3), UnitPrice: cents(100)},
		},
		Payments: []pos.PaymentInput{{Method: "cash", Amount: cents(500)}},
	})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, variantB.String(), appErr.Details["variant_id"])

	recA, _ := h.store.Record(h.storeID, variantA)
	assert.Equal(t, qty(10), recA.Quantity, "no line may be sold from an aborted checkout")
	assert.Empty(t, listSales(h))
	assert.Empty(t, h.repo.invoices)
}

func TestCheckout_PaymentMustCoverTotal(t *testing.T) {
	h := newHarness(t)
	variantID := id.New()
	h.seed(t, variantID, 5)

	_, err := h.svc.Checkout(context.Background(), pos.CheckoutInput{
		StoreID:   h.storeID,
		StoreCode: "1",
		Lines:     []pos.CartLine{{VariantID: variantID, Qty: qty(2), UnitPrice: cents(700)}},
		Payments:  []pos.PaymentInput{{Method: "cash", Amount: cents(1000)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestHoldResume_RoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()
	h.seed(t, variantID, 10)

	hold, err := h.svc.Hold(ctx, pos.HoldInput{
		StoreID: h.storeID,
		Lines:   []pos.CartLine{{VariantID: variantID, Qty: qty(4), UnitPrice: cents(300)}},
	})
	require.NoError(t, err)
	assert.Equal(t, pos.HoldStatusHeld, hold.Status)

	rec, _ := h.store.Record(h.storeID, variantID)
	assert.Equal(t, qty(4), rec.Reserved)

	invoice, err := h.svc.Resume(ctx, pos.ResumeInput{
		HoldID:    hold.ID,
		StoreCode: "2",
		Payments:  []pos.PaymentInput{{Method: "card", Amount: cents(1200)}},
	})
	require.NoError(t, err)
	assert.Equal(t, cents(1200), invoice.Total)

	rec, _ = h.store.Record(h.storeID, variantID)
	assert.Equal(t, qty(6), rec.Quantity)
	assert.True(t, rec.Reserved.IsZero())

	// A finalized hold cannot be resumed again.
	_, err = h.svc.Resume(ctx, pos.ResumeInput{
		HoldID: hold.ID, StoreCode: "2",
		Payments: []pos.PaymentInput{{Method: "card", Amount: cents(1200)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeHoldNotFound))
}

func TestResume_ExpiredHoldReleasesLazily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()
	h.seed(t, variantID, 10)

	hold, err := h.svc.Hold(ctx, pos.HoldInput{
		StoreID:   h.storeID,
		Lines:     []pos.CartLine{{VariantID: variantID, Qty: qty(3), UnitPrice: cents(100)}},
		ExpiresIn: -time.Minute,
	})
	require.NoError(t, err)

	_, err = h.svc.Resume(ctx, pos.ResumeInput{
		HoldID: hold.ID, StoreCode: "1",
		Payments: []pos.PaymentInput{{Method: "cash", Amount: cents(300)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeHoldNotFound))

	// The lazy release must survive the failed resume.
	rec, _ := h.store.Record(h.storeID, variantID)
	assert.True(t, rec.Reserved.IsZero())
	assert.Equal(t, pos.HoldStatusExpired, h.repo.holds[hold.ID].Status)
}

func TestResume_MissingHold(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Resume(context.Background(), pos.ResumeInput{HoldID: id.New(), StoreCode: "1"})
	assert.True(t, apperror.HasCode(err, apperror.CodeHoldNotFound))
}

func TestResume_TamperedBalanceIsIntegrityViolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()
	h.seed(t, variantID, 5)

	hold, err := h.svc.Hold(ctx, pos.HoldInput{
		StoreID: h.storeID,
		Lines:   []pos.CartLine{{VariantID: variantID, Qty: qty(5), UnitPrice: cents(100)}},
	})
	require.NoError(t, err)

	// Drain the balance behind the engine's back.
	rec, _ := h.store.Record(h.storeID, variantID)
	rec.Quantity = qty(2)
	rec.Reserved = qty(2)
	h.store.Put(rec)

	_, err = h.svc.Resume(ctx, pos.ResumeInput{
		HoldID: hold.ID, StoreCode: "1",
		Payments: []pos.PaymentInput{{Method: "cash", Amount: cents(500)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeIntegrityViolation))
}

func TestCancelHold_ReleasesReservation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()
	h.seed(t, variantID, 10)

	hold, err := h.svc.Hold(ctx, pos.HoldInput{
		StoreID: h.storeID,
		Lines:   []pos.CartLine{{VariantID: variantID, Qty: qty(2), UnitPrice: cents(100)}},
	})
	require.NoError(t, err)

	require.NoError(t, h.svc.CancelHold(ctx, hold.ID))

	rec, _ := h.store.Record(h.storeID, variantID)
	assert.True(t, rec.Reserved.IsZero())
	assert.Equal(t, pos.HoldStatusCancelled, h.repo.holds[hold.ID].Status)

	err = h.svc.CancelHold(ctx, hold.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeHoldNotFound))
}

func TestSweepExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	variantID := id.New()
	h.seed(t, variantID, 10)

	expired, err := h.svc.Hold(ctx, pos.HoldInput{
		StoreID:   h.storeID,
		Lines:     []pos.CartLine{{VariantID: variantID, Qty: qty(2), UnitPrice: cents(100)}},
		ExpiresIn: -time.Minute,
	})
	require.NoError(t, err)

	live, err := h.svc.Hold(ctx, pos.HoldInput{
		StoreID: h.storeID,
		Lines:   []pos.CartLine{{VariantID: variantID, Qty: qty(3), UnitPrice: cents(100)}},
	})
	require.NoError(t, err)

	swept, err := h.svc.SweepExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	rec, _ := h.store.Record(h.storeID, variantID)
	assert.Equal(t, qty(3), rec.Reserved, "live hold keeps its reservation")
	assert.Equal(t, pos.HoldStatusExpired, h.repo.holds[expired.ID].Status)
	assert.Equal(t, pos.HoldStatusHeld, h.repo.holds[live.ID].Status)
}

func listSales(h *harness) []entity.StockMovement {
	var out []entity.StockMovement
	for _, m := range h.store.Movements() {
		if m.MovementType == entity.MovementSale {
			out = append(out, m)
		}
	}
	return out
}
