package shifts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/ledger/ledgertest"
	"retailcore/internal/domain/shifts"
)

type fakeShiftRepo struct {
	shifts map[id.ID]*shifts.Shift
}

func newFakeShiftRepo() *fakeShiftRepo {
	return &fakeShiftRepo{shifts: make(map[id.ID]*shifts.Shift)}
}

func (r *fakeShiftRepo) Create(_ context.Context, shift *shifts.Shift) error {
	cp := *shift
	r.shifts[shift.ID] = &cp
	return nil
}

func (r *fakeShiftRepo) GetByID(_ context.Context, shiftID id.ID) (*shifts.Shift, error) {
	shift, ok := r.shifts[shiftID]
	if !ok {
		return nil, apperror.NewNotFound("shift", shiftID)
	}
	cp := *shift
	return &cp, nil
}

func (r *fakeShiftRepo) GetByIDForUpdate(ctx context.Context, shiftID id.ID) (*shifts.Shift, error) {
	return r.GetByID(ctx, shiftID)
}

func (r *fakeShiftRepo) Update(_ context.Context, shift *shifts.Shift) error {
	cp := *shift
	r.shifts[shift.ID] = &cp
	return nil
}

func (r *fakeShiftRepo) FindOpen(_ context.Context, storeID, cashierID id.ID) (*shifts.Shift, bool, error) {
	for _, shift := range r.shifts {
		if shift.StoreID == storeID && shift.CashierID == cashierID && shift.Status == shifts.StatusOpen {
			cp := *shift
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (r *fakeShiftRepo) List(_ context.Context, _ shifts.Filter) ([]shifts.Shift, error) {
	var out []shifts.Shift
	for _, shift := range r.shifts {
		out = append(out, *shift)
	}
	return out, nil
}

type fakeCash struct{ total types.MinorUnits }

func (f *fakeCash) CashPayments(_ context.Context, _ id.ID) (types.MinorUnits, error) {
	return f.total, nil
}

func newSvc(t *testing.T, cash *fakeCash) *shifts.Service {
	t.Helper()
	_, _, txm := ledgertest.NewHarness()
	return shifts.NewService(newFakeShiftRepo(), cash, txm)
}

func TestOpen_OnePerStoreAndCashier(t *testing.T) {
	svc := newSvc(t, &fakeCash{})
	ctx := context.Background()
	storeID, cashierID := id.New(), id.New()

	shift, err := svc.Open(ctx, shifts.OpenInput{
		StoreID: storeID, CashierID: cashierID, OpeningCash: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, shifts.StatusOpen, shift.Status)

	_, err = svc.Open(ctx, shifts.OpenInput{StoreID: storeID, CashierID: cashierID})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))

	// Same cashier at another store is fine.
	_, err = svc.Open(ctx, shifts.OpenInput{StoreID: id.New(), CashierID: cashierID})
	assert.NoError(t, err)
}

func TestClose_ComputesDiscrepancy(t *testing.T) {
	svc := newSvc(t, &fakeCash{total: 12_000})
	ctx := context.Background()

	shift, err := svc.Open(ctx, shifts.OpenInput{
		StoreID: id.New(), CashierID: id.New(), OpeningCash: 5000,
	})
	require.NoError(t, err)

	// Expected 5000 + 12000 = 17000, counted 16500 → short by 500.
	shift, err = svc.Close(ctx, shift.ID, shifts.CloseInput{ClosingCash: 16_500})
	require.NoError(t, err)

	assert.Equal(t, shifts.StatusClosed, shift.Status)
	assert.Equal(t, types.MinorUnits(17_000), shift.ExpectedCash)
	assert.Equal(t, types.MinorUnits(-500), shift.Discrepancy)
	require.NotNil(t, shift.ClosedAt)

	_, err = svc.Close(ctx, shift.ID, shifts.CloseInput{ClosingCash: 16_500})
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestOpen_RejectsNegativeOpeningCash(t *testing.T) {
	svc := newSvc(t, &fakeCash{})

	_, err := svc.Open(context.Background(), shifts.OpenInput{
		StoreID: id.New(), CashierID: id.New(), OpeningCash: -1,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
