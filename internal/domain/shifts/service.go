package shifts

import (
	"context"
	"fmt"
	"time"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/tx"
	"retailcore/internal/core/types"
	"retailcore/pkg/logger"
)

// Service manages the shift lifecycle.
type Service struct {
	repo      Repository
	cash      CashSource
	txManager tx.Manager
}

// NewService creates the shift service.
func NewService(repo Repository, cash CashSource, txManager tx.Manager) *Service {
	return &Service{repo: repo, cash: cash, txManager: txManager}
}

// OpenInput describes a new shift.
type OpenInput struct {
	StoreID     id.ID
	CashierID   id.ID
	OpeningCash types.MinorUnits
	Notes       string
}

// CloseInput reconciles a shift's cash drawer.
type CloseInput struct {
	ClosingCash types.MinorUnits
	Notes       string
}

// Open starts a shift. A cashier can hold only one open shift per store.
func (s *Service) Open(ctx context.Context, in OpenInput) (*Shift, error) {
	if in.OpeningCash.IsNegative() {
		return nil, apperror.NewValidation("opening cash cannot be negative")
	}

	var shift *Shift
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, found, err := s.repo.FindOpen(ctx, in.StoreID, in.CashierID)
		if err != nil {
			return fmt.Errorf("find open shift: %w", err)
		}
		if found {
			return apperror.NewInvalidState("cashier already has an open shift at this store").
				WithDetail("shift_id", existing.ID.String())
		}

		shift = &Shift{
			ID:          id.New(),
			StoreID:     in.StoreID,
			CashierID:   in.CashierID,
			Status:      StatusOpen,
			OpeningCash: in.OpeningCash,
			Notes:       in.Notes,
			OpenedAt:    time.Now().UTC(),
		}
		if err := s.repo.Create(ctx, shift); err != nil {
			return fmt.Errorf("create shift: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "shift opened",
		"shift_id", shift.ID, "store_id", shift.StoreID, "cashier_id", shift.CashierID)
	return shift, nil
}

// Close ends a shift, computing expected cash from the tenders taken
// during it and the discrepancy against the counted drawer.
func (s *Service) Close(ctx context.Context, shiftID id.ID, in CloseInput) (*Shift, error) {
	var shift *Shift
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		shift, err = s.repo.GetByIDForUpdate(ctx, shiftID)
		if err != nil {
			return err
		}
		if shift.Status != StatusOpen {
			return apperror.NewInvalidState("shift is already closed").
				WithDetail("shift_id", shiftID.String())
		}

		cashTaken, err := s.cash.CashPayments(ctx, shiftID)
		if err != nil {
			return fmt.Errorf("cash payments: %w", err)
		}

		now := time.Now().UTC()
		shift.Status = StatusClosed
		shift.ClosingCash = in.ClosingCash
		shift.ExpectedCash = shift.OpeningCash + cashTaken
		shift.Discrepancy = in.ClosingCash - shift.ExpectedCash
		shift.ClosedAt = &now
		if in.Notes != "" {
			shift.Notes = in.Notes
		}
		if err := s.repo.Update(ctx, shift); err != nil {
			return fmt.Errorf("update shift: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "shift closed",
		"shift_id", shift.ID, "expected", shift.ExpectedCash, "discrepancy", shift.Discrepancy)
	return shift, nil
}

// GetByID returns a shift.
func (s *Service) GetByID(ctx context.Context, shiftID id.ID) (*Shift, error) {
	return s.repo.GetByID(ctx, shiftID)
}

// List returns shifts matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Shift, error) {
	return s.repo.List(ctx, filter)
}
