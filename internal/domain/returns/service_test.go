package returns_test

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
	"retailcore/internal/domain/returns"
	"retailcore/pkg/numerator"
)

type fakeRefundRepo struct {
	refunds map[id.ID]*returns.Refund

	// onRefundedQty observes claim summing, for lock-ordering checks.
	onRefundedQty func()
}

func newFakeRefundRepo() *fakeRefundRepo {
	return &fakeRefundRepo{refunds: make(map[id.ID]*returns.Refund)}
}

func (r *fakeRefundRepo) Create(_ context.Context, refund *returns.Refund) error {
	cp := *refund
	cp.Lines = append([]returns.Line(nil), refund.Lines...)
	r.refunds[refund.ID] = &cp
	return nil
}

func (r *fakeRefundRepo) GetByID(_ context.Context, refundID id.ID) (*returns.Refund, error) {
	refund, ok := r.refunds[refundID]
	if !ok {
		return nil, apperror.NewNotFound("refund", refundID)
	}
	cp := *refund
	cp.Lines = append([]returns.Line(nil), refund.Lines...)
	return &cp, nil
}

func (r *fakeRefundRepo) GetByIDForUpdate(ctx context.Context, refundID id.ID) (*returns.Refund, error) {
	return r.GetByID(ctx, refundID)
}

func (r *fakeRefundRepo) Update(_ context.Context, refund *returns.Refund) error {
	cp := *refund
	cp.Lines = append([]returns.Line(nil), refund.Lines...)
	r.refunds[refund.ID] = &cp
	return nil
}

func (r *fakeRefundRepo) List(_ context.Context, _ returns.Filter) ([]returns.Refund, error) {
	var out []returns.Refund
	for _, refund := range r.refunds {
		out = append(out, *refund)
	}
	return out, nil
}

func (r *fakeRefundRepo) RefundedQty(_ context.Context, invoiceLineID id.ID) (types.Quantity, error) {
	if r.onRefundedQty != nil {
		r.onRefundedQty()
	}
	var total types.Quantity
	for _, refund := range r.refunds {
		if refund.Status == returns.StatusRejected {
			continue
		}
		for _, line := range refund.Lines {
			if line.InvoiceLineID == invoiceLineID {
				total += line.Qty
			}
		}
	}
	return total, nil
}

type fakeInvoices struct {
	invoices map[id.ID]*pos.Invoice

	// lockCalls counts row-lock acquisitions.
	lockCalls int
}

func (f *fakeInvoices) GetInvoiceForUpdate(_ context.Context, invoiceID id.ID) (*pos.Invoice, error) {
	inv, ok := f.invoices[invoiceID]
	if !ok {
		return nil, apperror.NewNotFound("invoice", invoiceID)
	}
	f.lockCalls++
	return inv, nil
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) NextNumber(_ context.Context, cfg numerator.Config) (string, error) {
	f.n++
	return fmt.Sprintf("%s%s-%06d", cfg.Prefix, cfg.Scope, f.n), nil
}

func qty(n int64) types.Quantity { return types.NewQuantityFromInt(n) }

type harness struct {
	store    *ledgertest.Store
	refunds  *fakeRefundRepo
	invoices *fakeInvoices
	svc      *returns.Service
	storeID  id.ID
}

func newHarness(t *testing.T, cfg returns.Config, rule string) *harness {
	t.Helper()
	store, ledgerRepo, txm := ledgertest.NewHarness()
	engine := ledger.NewService(ledgerRepo, txm, nil, ledger.Config{})
	refunds := newFakeRefundRepo()
	invoices := &fakeInvoices{invoices: make(map[id.ID]*pos.Invoice)}
	policy, err := returns.NewApprovalPolicy(rule)
	require.NoError(t, err)
	return &harness{
		store:    store,
		refunds:  refunds,
		invoices: invoices,
		svc:      returns.NewService(refunds, engine, invoices, txm, &fakeNumbers{}, policy, cfg),
		storeID:  id.New(),
	}
}

// soldInvoice seeds an invoice with one line, aged by age.
func (h *harness) soldInvoice(qtySold types.Quantity, priceCents int64, age time.Duration) *pos.Invoice {
	line := pos.InvoiceLine{
		LineID:    id.New(),
		VariantID: id.New(),
		Qty:       qtySold,
		UnitPrice: types.MinorUnits(priceCents),
	}
	inv := &pos.Invoice{
		ID:        id.New(),
		Number:    "S1-20260829-000001",
		StoreID:   h.storeID,
		Lines:     []pos.InvoiceLine{line},
		CreatedAt: time.Now().UTC().Add(-age),
	}
	h.invoices.invoices[inv.ID] = inv
	return inv
}

func TestCreate_SmallRefundRestocksImmediately(t *testing.T) {
	h := newHarness(t, returns.Config{}, "")
	ctx := context.Background()
	inv := h.soldInvoice(qty(3), 500, time.Hour)

	refund, err := h.svc.Create(ctx, returns.CreateInput{
		InvoiceID: inv.ID,
		StoreCode: "1",
		Lines:     []returns.LineInput{{InvoiceLineID: inv.Lines[0].LineID, Qty: qty(2)}},
		Reason:    "damaged",
	})
	require.NoError(t, err)

	assert.Equal(t, returns.StatusCompleted, refund.Status)
	assert.Equal(t, types.MinorUnits(1000), refund.TotalAmount)
	assert.Contains(t, refund.Number, "R1-")

	rec, ok := h.store.Record(h.storeID, inv.Lines[0].VariantID)
	require.True(t, ok)
	assert.Equal(t, qty(2), rec.Quantity)

	movements := h.store.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, entity.MovementRefund, movements[0].MovementType)
	assert.Equal(t, refund.Number, movements[0].ReferenceID)
}

func TestCreate_LargeRefundParksPendingWithoutStockMutation(t *testing.T) {
	h := newHarness(t, returns.Config{}, "")
	ctx := context.Background()
	// 3 * 50.00 = 150.00, above the 100.00 default threshold.
	inv := h.soldInvoice(qty(3), 5000, time.Hour)

	refund, err := h.svc.Create(ctx, returns.CreateInput{
		InvoiceID: inv.ID,
		StoreCode: "1",
		Lines:     []returns.LineInput{{InvoiceLineID: inv.Lines[0].LineID, Qty: qty(3)}},
	})
	require.NoError(t, err)

	assert.Equal(t, returns.StatusPendingApproval, refund.Status)
	_, ok := h.store.Record(h.storeID, inv.Lines[0].VariantID)
	assert.False(t, ok, "pending refund must not touch stock")
	assert.Empty(t, h.store.Movements())
}

func TestCreate_UpfrontApprovalSkipsParking(t *testing.T) {
	h := newHarness(t, returns.Config{}, "")
	ctx := context.Background()
	inv := h.soldInvoice(qty(3), 5000, time.Hour)

	refund, err := h.svc.Create(ctx, returns.CreateInput{
		InvoiceID:  inv.ID,
		StoreCode:  "1",
		Lines:      []returns.LineInput{{InvoiceLineID: inv.Lines[0].LineID, Qty: qty(3)}},
		ApprovedBy: "manager-7",
	})
	require.NoError(t, err)

	assert.Equal(t, returns.StatusCompleted, refund.Status)
	assert.Equal(t, "manager-7", refund.ApprovedBy)
	rec, _ := h.store.Record(h.storeID, inv.Lines[0].VariantID)
	assert.Equal(t, qty(3), rec.Quantity)
}

func TestApprove_RunsRestockPath(t *testing.T) {
	h := newHarness(t, returns.Config{}, "")
	ctx := context.Background()
	inv := h.soldInvoice(qty(3), 5000, time.Hour)

	refund, err := h.svc.Create(ctx, returns.CreateInput{
		InvoiceID: inv.ID,
		StoreCode: "1",
		Lines:     []returns.LineInput{{InvoiceLineID: inv.Lines[0].LineID, Qty: qty(3)}},
	})
	require.NoError(t, err)
	require.Equal(t, returns.StatusPendingApproval, refund.Status)

	refund, err = h.svc.Approve(ctx, refund.ID, "manager-7")
	require.NoError(t, err)
	assert.Equal(t, returns.StatusCompleted, refund.Status)
	assert.Equal(t, "manager-7", refund.ApprovedBy)
	require.NotNil(t, refund.CompletedAt)

	rec, _ := h.store.Record(h.storeID, inv.Lines[0].VariantID)
	assert.Equal(t, qty(3), rec.Quantity)

	// Completed refunds cannot be approved again.
	_, err = h.svc.Approve(ctx, refund.ID, "manager-7")
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestReject_LeavesStockUntouched(t *testing.T) {
	h := newHarness(t, returns.Config{}, "")
	ctx := context.Background()
	inv := h.soldInvoice(qty(3), 5000, time.Hour)

	refund, err := h.svc.Create(ctx, returns.CreateInput{
		InvoiceID: inv.ID,
		StoreCode: "1",
		Lines:     []returns.LineInput{{InvoiceLineID: inv.Lines[0].LineID, Qty: qty(3)}},
	})
	require.NoError(t, err)

	refund, err = h.svc.Reject(ctx, refund.ID, "manager-7", "suspected abuse")
	require.NoError(t, err)
	assert.Equal(t, returns.StatusRejected, refund.Status)
	assert.Empty(t, h.store.Movements())

	// The rejected quantity becomes refundable again.
	again, err := h.svc.Create(ctx, returns.CreateInput{
		InvoiceID:  inv.ID,
		StoreCode:  "1",
		Lines:      []returns.LineInput{{InvoiceLineID: inv.Lines[0].LineID, Qty: qty(3)}},
		ApprovedBy: "manager-7",
	})
	require.NoError(t, err)
	assert.Equal(t, returns.StatusCompleted, again.Status)
}

func TestCreate_CannotExceedSoldQuantity(t *testing.T) {
	h := newHarness(t, returns.Config{}, "")
	ctx := context.Background()
	inv := h.soldInvoice(qty(3), 100, time.Hour)
	lineID := inv.Lines[0].LineID

	_, err := h.svc.Create(ctx, returns.CreateInput{
		InvoiceID: inv.ID, StoreCode: "1",
		Lines: []returns.LineInput{{InvoiceLineID: lineID, Qty: qty(4)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))

	// Refund 2, then only 1 remains refundable.
	_, err = h.svc.Create(ctx, returns.CreateInput{
		InvoiceID: inv.ID, StoreCode: "1",
		Lines: []returns.LineInput{{InvoiceLineID: lineID, Qty: qty(2)}},
	})
	require.NoError(t, err)

	_, err = h.svc.Create(ctx, returns.CreateInput{
		InvoiceID: inv.ID, StoreCode: "1",
		Lines: []returns.LineInput{{InvoiceLineID: lineID, Qty: qty(2)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))
}

func TestCreate_LocksInvoiceBeforeSummingClaims(t *testing.T) {
	h := newHarness(t, returns.Config{}, "")
	ctx := context.Background()
	inv := h.soldInvoice(qty(3), 500, time.Hour)

	// Two concurrent creates must serialize on the invoice row before
	// reading what was already refunded, or both see a stale sum and
	// together refund more than was sold.
	h.refunds.onRefundedQty = func() {
		require.Equal(t, 1, h.invoices.lockCalls,
			"claims summed without holding the invoice row lock")
	}

	_, err := h.svc.Create(ctx, returns.CreateInput{
		InvoiceID: inv.ID, StoreCode: "1",
		Lines: []returns.LineInput{{InvoiceLineID: inv.Lines[0].LineID, Qty: qty(1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, h.invoices.lockCalls)
}

func TestCreate_ReturnWindowElapsed(t *testing.T) {
	h := newHarness(t, returns.Config{}, "")
	inv := h.soldInvoice(qty(1), 100, 80*time.Hour)

	_, err := h.svc.Create(context.Background(), returns.CreateInput{
		InvoiceID: inv.ID, StoreCode: "1",
		Lines: []returns.LineInput{{InvoiceLineID: inv.Lines[0].LineID, Qty: qty(1)}},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestApprovalPolicy_CustomRule(t *testing.T) {
	// A rule that never requires approval.
	h := newHarness(t, returns.Config{}, "false")
	inv := h.soldInvoice(qty(3), 5000, time.Hour)

	refund, err := h.svc.Create(context.Background(), returns.CreateInput{
		InvoiceID: inv.ID, StoreCode: "1",
		Lines: []returns.LineInput{{InvoiceLineID: inv.Lines[0].LineID, Qty: qty(3)}},
	})
	require.NoError(t, err)
	assert.Equal(t, returns.StatusCompleted, refund.Status)
}

func TestApprovalPolicy_CompileErrors(t *testing.T) {
	_, err := returns.NewApprovalPolicy("amount_cents +")
	assert.Error(t, err)

	_, err = returns.NewApprovalPolicy("amount_cents + threshold_cents")
	assert.Error(t, err, "non-boolean rules are rejected at startup")
}
