// Package shift_repo provides PostgreSQL storage for cashier shifts.
package shift_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/shifts"
	"retailcore/internal/infrastructure/storage/postgres"
)

const shiftsTable = "shifts"

// ShiftRepo implements shifts.Repository. One-open-per-(store, cashier)
// is backed by a partial unique index on (store_id, cashier_id) WHERE
// status = 'open'.
type ShiftRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewShiftRepo creates the shift repository.
func NewShiftRepo(txManager *postgres.TxManager) *ShiftRepo {
	return &ShiftRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the shift.
func (r *ShiftRepo) Create(ctx context.Context, shift *shifts.Shift) error {
	q := r.builder.Insert(shiftsTable).
		Columns("id", "store_id", "cashier_id", "status", "opening_cash", "closing_cash",
			"expected_cash", "discrepancy", "notes", "opened_at", "closed_at").
		Values(shift.ID, shift.StoreID, shift.CashierID, string(shift.Status),
			int64(shift.OpeningCash), int64(shift.ClosingCash),
			int64(shift.ExpectedCash), int64(shift.Discrepancy),
			shift.Notes, shift.OpenedAt, shift.ClosedAt)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		// The FindOpen check locks nothing when no open shift exists,
		// so two concurrent opens can both reach the insert. The
		// partial unique index catches the loser; surface it the same
		// way the transactional check does.
		if isUniqueViolation(err) {
			return apperror.NewInvalidState("cashier already has an open shift at this store").
				WithDetail("store_id", shift.StoreID.String()).
				WithDetail("cashier_id", shift.CashierID.String())
		}
		return fmt.Errorf("insert shift: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether the error is a SQLSTATE 23505
// unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetByID loads the shift without locking.
func (r *ShiftRepo) GetByID(ctx context.Context, shiftID id.ID) (*shifts.Shift, error) {
	return r.get(ctx, shiftID, false)
}

// GetByIDForUpdate loads the shift with a pessimistic row lock.
func (r *ShiftRepo) GetByIDForUpdate(ctx context.Context, shiftID id.ID) (*shifts.Shift, error) {
	return r.get(ctx, shiftID, true)
}

func (r *ShiftRepo) get(ctx context.Context, shiftID id.ID, forUpdate bool) (*shifts.Shift, error) {
	sql := `
		SELECT id, store_id, cashier_id, status, opening_cash, closing_cash,
			   expected_cash, discrepancy, notes, opened_at, closed_at
		FROM shifts
		WHERE id = $1
	`
	if forUpdate {
		sql += " FOR UPDATE"
	}

	var shift shifts.Shift
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &shift, sql, shiftID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("shift", shiftID)
		}
		return nil, fmt.Errorf("get shift: %w", err)
	}
	return &shift, nil
}

// Update persists shift state.
func (r *ShiftRepo) Update(ctx context.Context, shift *shifts.Shift) error {
	q := r.builder.Update(shiftsTable).
		Set("status", string(shift.Status)).
		Set("closing_cash", int64(shift.ClosingCash)).
		Set("expected_cash", int64(shift.ExpectedCash)).
		Set("discrepancy", int64(shift.Discrepancy)).
		Set("notes", shift.Notes).
		Set("closed_at", shift.ClosedAt).
		Where(squirrel.Eq{"id": shift.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update shift: %w", err)
	}
	return nil
}

// FindOpen returns the open shift for the pair. Locks the row so two
// concurrent opens serialize on the existing shift.
func (r *ShiftRepo) FindOpen(ctx context.Context, storeID, cashierID id.ID) (*shifts.Shift, bool, error) {
	sql := `
		SELECT id, store_id, cashier_id, status, opening_cash, closing_cash,
			   expected_cash, discrepancy, notes, opened_at, closed_at
		FROM shifts
		WHERE store_id = $1 AND cashier_id = $2 AND status = $3
		FOR UPDATE
	`

	var shift shifts.Shift
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &shift, sql, storeID, cashierID, string(shifts.StatusOpen)); err != nil {
		if pgxscan.NotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find open shift: %w", err)
	}
	return &shift, true, nil
}

// List returns shifts matching the filter.
func (r *ShiftRepo) List(ctx context.Context, filter shifts.Filter) ([]shifts.Shift, error) {
	q := r.builder.Select(
		"id", "store_id", "cashier_id", "status", "opening_cash", "closing_cash",
		"expected_cash", "discrepancy", "notes", "opened_at", "closed_at",
	).From(shiftsTable)

	if filter.StoreID != nil {
		q = q.Where(squirrel.Eq{"store_id": *filter.StoreID})
	}
	if filter.CashierID != nil {
		q = q.Where(squirrel.Eq{"cashier_id": *filter.CashierID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": string(*filter.Status)})
	}
	q = q.OrderBy("opened_at DESC")
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

	var result []shifts.Shift
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select shifts: %w", err)
	}
	return result, nil
}

// Ensure interface compliance.
var _ shifts.Repository = (*ShiftRepo)(nil)
