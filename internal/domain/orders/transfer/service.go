package transfer

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"retailcore/internal/core/apperror"
	appctx "retailcore/internal/core/context"
	"retailcore/internal/core/entity"
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

// Service drives the transfer lifecycle. Total stock across both stores
// is conserved: dispatch removes exactly what receipt later adds.
type Service struct {
	repo      Repository
	engine    ledger.Engine
	txManager tx.Manager
	numbers   NumberSource
}

// NewService creates the transfer service.
func NewService(repo Repository, engine ledger.Engine, txManager tx.Manager, numbers NumberSource) *Service {
	return &Service{
		repo:      repo,
		engine:    engine,
		txManager: txManager,
		numbers:   numbers,
	}
}

// LineInput is one variant in a create request.
type LineInput struct {
	VariantID id.ID
	Qty       types.Quantity
}

// CreateInput describes a new transfer.
type CreateInput struct {
	FromStoreID id.ID
	ToStoreID   id.ID
	Lines       []LineInput
	Notes       string
}

// Create makes a pending transfer, reserving every line at the origin
// store in one transaction. Any shortfall aborts the whole creation.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Transfer, error) {
	if in.FromStoreID == in.ToStoreID {
		return nil, apperror.NewValidation("transfer requires two distinct stores")
	}
	lines, err := buildLines(in.Lines)
	if err != nil {
		return nil, err
	}

	var transfer *Transfer
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := s.numbers.NextNumber(ctx, numerator.TransferConfig())
		if err != nil {
			return fmt.Errorf("next transfer number: %w", err)
		}

		for _, line := range lines {
			if _, err := s.engine.Reserve(ctx, in.FromStoreID, line.VariantID, line.Qty); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		transfer = &Transfer{
			ID:          id.New(),
			Number:      number,
			FromStoreID: in.FromStoreID,
			ToStoreID:   in.ToStoreID,
			Status:      StatusPending,
			Lines:       lines,
			Notes:       in.Notes,
			CreatedBy:   appctx.ActorID(ctx),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Create(ctx, transfer); err != nil {
			return fmt.Errorf("create transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transfer created",
		"transfer_id", transfer.ID, "number", transfer.Number,
		"from_store", transfer.FromStoreID, "to_store", transfer.ToStoreID)
	return transfer, nil
}

// Dispatch ships a pending transfer: the origin reservations are
// committed as transfer_out movements.
func (s *Service) Dispatch(ctx context.Context, transferID id.ID) (*Transfer, error) {
	var transfer *Transfer
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		transfer, err = s.lockInStatus(ctx, transferID, StatusPending, "only pending transfers can be dispatched")
		if err != nil {
			return err
		}

		for _, line := range transfer.Lines {
			_, err := s.engine.Commit(ctx, ledger.CommitInput{
				StoreID:      transfer.FromStoreID,
				VariantID:    line.VariantID,
				Qty:          line.Qty,
				ReservedQty:  line.Qty,
				MovementType: entity.MovementTransferOut,
				Reference:    transfer.Number,
			})
			if err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		transfer.Status = StatusInTransit
		transfer.DispatchedAt = &now
		transfer.Touch()
		if err := s.repo.Update(ctx, transfer); err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transfer dispatched", "transfer_id", transfer.ID, "number", transfer.Number)
	return transfer, nil
}

// Receive books an in-transit transfer into the destination store as
// transfer_in movements, creating records the destination lacks.
func (s *Service) Receive(ctx context.Context, transferID id.ID) (*Transfer, error) {
	var transfer *Transfer
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		transfer, err = s.lockInStatus(ctx, transferID, StatusInTransit, "only in-transit transfers can be received")
		if err != nil {
			return err
		}

		for _, line := range transfer.Lines {
			_, err := s.engine.Restock(ctx, ledger.RestockInput{
				StoreID:      transfer.ToStoreID,
				VariantID:    line.VariantID,
				Qty:          line.Qty,
				MovementType: entity.MovementTransferIn,
				Reference:    transfer.Number,
			})
			if err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		transfer.Status = StatusCompleted
		transfer.CompletedAt = &now
		transfer.Touch()
		if err := s.repo.Update(ctx, transfer); err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transfer received", "transfer_id", transfer.ID, "number", transfer.Number)
	return transfer, nil
}

// Cancel aborts a pending transfer, releasing the origin reservations.
// Nothing was shipped yet, so no movements are logged.
func (s *Service) Cancel(ctx context.Context, transferID id.ID) (*Transfer, error) {
	var transfer *Transfer
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		transfer, err = s.lockInStatus(ctx, transferID, StatusPending, "only pending transfers can be cancelled")
		if err != nil {
			return err
		}

		for _, line := range transfer.Lines {
			if _, err := s.engine.Release(ctx, transfer.FromStoreID, line.VariantID, line.Qty); err != nil {
				return err
			}
		}

		transfer.Status = StatusCancelled
		transfer.Touch()
		if err := s.repo.Update(ctx, transfer); err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

// GetByID returns a transfer with its lines.
func (s *Service) GetByID(ctx context.Context, transferID id.ID) (*Transfer, error) {
	return s.repo.GetByID(ctx, transferID)
}

// List returns transfers matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Transfer, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) lockInStatus(ctx context.Context, transferID id.ID, want Status, message string) (*Transfer, error) {
	transfer, err := s.repo.GetByIDForUpdate(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if transfer.Status != want {
		return nil, apperror.NewInvalidState(message).
			WithDetail("transfer_id", transferID.String()).
			WithDetail("status", string(transfer.Status))
	}
	return transfer, nil
}

// buildLines validates input and fixes an ascending variant order, so
// every later pass over the lines acquires row locks deterministically.
func buildLines(in []LineInput) ([]Line, error) {
	if len(in) == 0 {
		return nil, apperror.NewValidation("transfer requires at least one line")
	}
	lines := make([]Line, 0, len(in))
	for _, l := range in {
		if !l.Qty.IsPositive() {
			return nil, apperror.NewInvalidQuantity("transfer quantity must be positive").
				WithDetail("variant_id", l.VariantID.String())
		}
		lines = append(lines, Line{LineID: id.New(), VariantID: l.VariantID, Qty: l.Qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return bytes.Compare(lines[i].VariantID[:], lines[j].VariantID[:]) < 0
	})
	return lines, nil
}
