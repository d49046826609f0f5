package ledger

import (
	"context"
	"fmt"

	"retailcore/internal/core/apperror"
	appctx "retailcore/internal/core/context"
	"retailcore/internal/core/entity"
	"retailcore/internal/core/id"
	"retailcore/internal/core/tx"
	"retailcore/internal/core/types"
	"retailcore/pkg/logger"
)

// Engine exposes the atomic ledger primitives. Workflow controllers
// (purchase orders, transfers, POS, refunds) depend on this interface;
// they decide when to move stock, the engine decides whether the move
// is legal and how it is recorded.
type Engine interface {
	Receive(ctx context.Context, in ReceiveInput) (entity.StockRecord, error)
	Reserve(ctx context.Context, storeID, variantID id.ID, qty types.Quantity) (entity.StockRecord, error)
	Release(ctx context.Context, storeID, variantID id.ID, qty types.Quantity) (entity.StockRecord, error)
	Commit(ctx context.Context, in CommitInput) (entity.StockRecord, error)
	Restock(ctx context.Context, in RestockInput) (entity.StockRecord, error)
	Adjust(ctx context.Context, in AdjustInput) (entity.StockRecord, error)

	GetRecord(ctx context.Context, storeID, variantID id.ID) (entity.StockRecord, error)
	ListByStore(ctx context.Context, storeID id.ID, filter BalanceFilter) ([]entity.StockRecord, error)
	MovementHistory(ctx context.Context, variantID id.ID, filter MovementFilter) ([]entity.StockMovement, error)
}

// ReceiveInput describes an incoming goods receipt.
type ReceiveInput struct {
	StoreID   id.ID
	VariantID id.ID
	Qty       types.Quantity
	UnitCost  types.Money
	Reference string
	Reason    string
}

// CommitInput consumes stock, converting any held reservation.
// ReservedQty declares how much of the consumed quantity was reserved
// by the caller beforehand (0 for direct sales).
type CommitInput struct {
	StoreID      id.ID
	VariantID    id.ID
	Qty          types.Quantity
	ReservedQty  types.Quantity
	MovementType entity.MovementType
	Reference    string
	Reason       string
}

// RestockInput returns stock to a store (refund or transfer-in).
type RestockInput struct {
	StoreID      id.ID
	VariantID    id.ID
	Qty          types.Quantity
	MovementType entity.MovementType
	Reference    string
	Reason       string
}

// AdjustInput corrects a balance. Exactly one of Delta or SetTo must be set.
type AdjustInput struct {
	StoreID   id.ID
	VariantID id.ID
	Delta     *types.Quantity
	SetTo     *types.Quantity
	Reference string
	Reason    string
}

// Config holds engine tuning values.
type Config struct {
	// LowStockThreshold triggers a notification when available quantity
	// crosses below it. Zero disables the hook.
	LowStockThreshold types.Quantity
}

// Service implements Engine. Every primitive runs inside a single
// transaction with the stock record row locked; nested calls join the
// caller's transaction, so multi-line workflows stay all-or-nothing.
type Service struct {
	repo      Repository
	txManager tx.Manager
	notifier  Notifier
	cfg       Config
}

// NewService creates the reservation engine.
func NewService(repo Repository, txManager tx.Manager, notifier Notifier, cfg Config) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// Receive increments quantity for a pair, creating the record on first
// receipt, and appends a receive movement.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (entity.StockRecord, error) {
	if !in.Qty.IsPositive() {
		return entity.StockRecord{}, apperror.NewInvalidQuantity("receive quantity must be positive")
	}

	var result entity.StockRecord
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		record, found, err := s.lockRecord(ctx, in.StoreID, in.VariantID)
		if err != nil {
			return err
		}
		if !found {
			record = entity.NewStockRecord(in.StoreID, in.VariantID)
		}

		before := record.Available()
		record.Quantity += in.Qty
		record.LastCost = in.UnitCost
		record.Touch()

		if err := s.saveRecord(ctx, &record, found); err != nil {
			return err
		}

		movement := entity.NewStockMovement(
			in.StoreID, in.VariantID, in.Qty,
			entity.MovementReceive, in.Reference, in.Reason, appctx.ActorID(ctx),
		)
		if err := s.repo.AppendMovements(ctx, []entity.StockMovement{movement}); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}

		result = record
		s.checkLowStock(ctx, record, before)
		return nil
	})
	if err != nil {
		return entity.StockRecord{}, err
	}

	logger.Debug(ctx, "stock received",
		"store_id", in.StoreID, "variant_id", in.VariantID, "qty", in.Qty.String())
	return result, nil
}

// Reserve places a provisional hold. No movement is logged; reservation
// reduces availability without being a committed change.
func (s *Service) Reserve(ctx context.Context, storeID, variantID id.ID, qty types.Quantity) (entity.StockRecord, error) {
	if !qty.IsPositive() {
		return entity.StockRecord{}, apperror.NewInvalidQuantity("reserve quantity must be positive")
	}

	var result entity.StockRecord
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		record, found, err := s.lockRecord(ctx, storeID, variantID)
		if err != nil {
			return err
		}
		if !found {
			return apperror.NewRecordNotFound(storeID.String(), variantID.String())
		}

		if record.Available() < qty {
			return apperror.NewInsufficientStock(variantID.String(), qty.Float64(), record.Available().Float64())
		}

		record.Reserved += qty
		record.Touch()
		if err := s.repo.UpdateRecord(ctx, &record); err != nil {
			return fmt.Errorf("update record: %w", err)
		}

		result = record
		return nil
	})
	if err != nil {
		return entity.StockRecord{}, err
	}
	return result, nil
}

// Release gives back a provisional hold. No movement is logged.
func (s *Service) Release(ctx context.Context, storeID, variantID id.ID, qty types.Quantity) (entity.StockRecord, error) {
	if !qty.IsPositive() {
		return entity.StockRecord{}, apperror.NewInvalidQuantity("release quantity must be positive")
	}

	var result entity.StockRecord
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		record, found, err := s.lockRecord(ctx, storeID, variantID)
		if err != nil {
			return err
		}
		if !found {
			return apperror.NewRecordNotFound(storeID.String(), variantID.String())
		}

		if record.Reserved < qty {
			return apperror.NewInvalidState("release would drive reserved quantity below zero").
				WithDetail("variant_id", variantID.String()).
				WithDetail("requested", qty.Float64()).
				WithDetail("reserved", record.Reserved.Float64())
		}

		record.Reserved -= qty
		record.Touch()
		if err := s.repo.UpdateRecord(ctx, &record); err != nil {
			return fmt.Errorf("update record: %w", err)
		}

		result = record
		return nil
	})
	if err != nil {
		return entity.StockRecord{}, err
	}
	return result, nil
}

// Commit consumes stock: decrements quantity and the declared portion of
// the reservation, appending a movement with a negative change.
func (s *Service) Commit(ctx context.Context, in CommitInput) (entity.StockRecord, error) {
	if !in.Qty.IsPositive() {
		return entity.StockRecord{}, apperror.NewInvalidQuantity("commit quantity must be positive")
	}
	if in.ReservedQty.IsNegative() || in.ReservedQty > in.Qty {
		return entity.StockRecord{}, apperror.NewReservationMismatch(
			in.VariantID.String(), in.ReservedQty.Float64(), in.Qty.Float64())
	}
	if in.MovementType != entity.MovementSale && in.MovementType != entity.MovementTransferOut {
		return entity.StockRecord{}, apperror.NewValidation("commit movement type must be sale or transfer_out")
	}

	var result entity.StockRecord
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		record, found, err := s.lockRecord(ctx, in.StoreID, in.VariantID)
		if err != nil {
			return err
		}
		if !found {
			return apperror.NewRecordNotFound(in.StoreID.String(), in.VariantID.String())
		}

		if in.ReservedQty > record.Reserved {
			return apperror.NewReservationMismatch(
				in.VariantID.String(), in.ReservedQty.Float64(), record.Reserved.Float64())
		}

		newQty := record.Quantity - in.Qty
		newReserved := record.Reserved - in.ReservedQty
		if newQty.IsNegative() {
			return apperror.NewInsufficientStock(in.VariantID.String(), in.Qty.Float64(), record.Quantity.Float64())
		}
		if newQty < newReserved {
			// The unreserved portion of the commit would eat into
			// stock promised to other reservations.
			unreserved := in.Qty - in.ReservedQty
			return apperror.NewInsufficientStock(in.VariantID.String(), unreserved.Float64(), record.Available().Float64())
		}

		before := record.Available()
		record.Quantity = newQty
		record.Reserved = newReserved
		record.Touch()
		if err := s.repo.UpdateRecord(ctx, &record); err != nil {
			return fmt.Errorf("update record: %w", err)
		}

		movement := entity.NewStockMovement(
			in.StoreID, in.VariantID, in.Qty.Neg(),
			in.MovementType, in.Reference, in.Reason, appctx.ActorID(ctx),
		)
		if err := s.repo.AppendMovements(ctx, []entity.StockMovement{movement}); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}

		result = record
		s.checkLowStock(ctx, record, before)
		return nil
	})
	if err != nil {
		return entity.StockRecord{}, err
	}
	return result, nil
}

// Restock returns goods to a store (refund or transfer-in), creating the
// record when the destination holds the variant for the first time.
func (s *Service) Restock(ctx context.Context, in RestockInput) (entity.StockRecord, error) {
	if !in.Qty.IsPositive() {
		return entity.StockRecord{}, apperror.NewInvalidQuantity("restock quantity must be positive")
	}
	if in.MovementType != entity.MovementRefund && in.MovementType != entity.MovementTransferIn {
		return entity.StockRecord{}, apperror.NewValidation("restock movement type must be refund or transfer_in")
	}

	var result entity.StockRecord
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		record, found, err := s.lockRecord(ctx, in.StoreID, in.VariantID)
		if err != nil {
			return err
		}
		if !found {
			record = entity.NewStockRecord(in.StoreID, in.VariantID)
		}

		record.Quantity += in.Qty
		record.Touch()
		if err := s.saveRecord(ctx, &record, found); err != nil {
			return err
		}

		movement := entity.NewStockMovement(
			in.StoreID, in.VariantID, in.Qty,
			in.MovementType, in.Reference, in.Reason, appctx.ActorID(ctx),
		)
		if err := s.repo.AppendMovements(ctx, []entity.StockMovement{movement}); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}

		result = record
		return nil
	})
	if err != nil {
		return entity.StockRecord{}, err
	}
	return result, nil
}

// Adjust corrects a balance by delta or to an absolute target. The result
// may not fall below the reserved quantity or below zero. A zero effective
// delta is a no-op and logs no movement.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (entity.StockRecord, error) {
	if (in.Delta == nil) == (in.SetTo == nil) {
		return entity.StockRecord{}, apperror.NewValidation("exactly one of delta or setTo must be given")
	}

	var result entity.StockRecord
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		record, found, err := s.lockRecord(ctx, in.StoreID, in.VariantID)
		if err != nil {
			return err
		}
		if !found {
			return apperror.NewRecordNotFound(in.StoreID.String(), in.VariantID.String())
		}

		target := record.Quantity
		if in.Delta != nil {
			target += *in.Delta
		} else {
			target = *in.SetTo
		}

		if target.IsNegative() {
			return apperror.NewInsufficientStock(in.VariantID.String(), target.Float64(), record.Quantity.Float64())
		}
		if target < record.Reserved {
			return apperror.NewInvalidState("adjustment cannot reduce quantity below reserved").
				WithDetail("variant_id", in.VariantID.String()).
				WithDetail("target", target.Float64()).
				WithDetail("reserved", record.Reserved.Float64())
		}

		effective := target - record.Quantity
		if effective.IsZero() {
			result = record
			return nil
		}

		before := record.Available()
		record.Quantity = target
		record.Touch()
		if err := s.repo.UpdateRecord(ctx, &record); err != nil {
			return fmt.Errorf("update record: %w", err)
		}

		movement := entity.NewStockMovement(
			in.StoreID, in.VariantID, effective,
			entity.MovementAdjustment, in.Reference, in.Reason, appctx.ActorID(ctx),
		)
		if err := s.repo.AppendMovements(ctx, []entity.StockMovement{movement}); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}

		result = record
		s.checkLowStock(ctx, record, before)
		return nil
	})
	if err != nil {
		return entity.StockRecord{}, err
	}
	return result, nil
}

// GetRecord returns the current balance for a pair.
func (s *Service) GetRecord(ctx context.Context, storeID, variantID id.ID) (entity.StockRecord, error) {
	record, found, err := s.repo.GetRecord(ctx, storeID, variantID)
	if err != nil {
		return entity.StockRecord{}, fmt.Errorf("get record: %w", err)
	}
	if !found {
		return entity.StockRecord{}, apperror.NewRecordNotFound(storeID.String(), variantID.String())
	}
	if err := record.CheckIntegrity(); err != nil {
		logger.Error(ctx, "stock record integrity violation",
			"store_id", storeID, "variant_id", variantID)
		return entity.StockRecord{}, err
	}
	return record, nil
}

// ListByStore returns balances for a store.
func (s *Service) ListByStore(ctx context.Context, storeID id.ID, filter BalanceFilter) ([]entity.StockRecord, error) {
	return s.repo.ListByStore(ctx, storeID, filter)
}

// MovementHistory returns the movement trail for a variant.
func (s *Service) MovementHistory(ctx context.Context, variantID id.ID, filter MovementFilter) ([]entity.StockMovement, error) {
	return s.repo.MovementHistory(ctx, variantID, filter)
}

// lockRecord loads the row with a pessimistic lock and verifies integrity.
func (s *Service) lockRecord(ctx context.Context, storeID, variantID id.ID) (entity.StockRecord, bool, error) {
	record, found, err := s.repo.GetRecordForUpdate(ctx, storeID, variantID)
	if err != nil {
		return entity.StockRecord{}, false, fmt.Errorf("lock record: %w", err)
	}
	if found {
		if err := record.CheckIntegrity(); err != nil {
			logger.Error(ctx, "stock record integrity violation",
				"store_id", storeID, "variant_id", variantID,
				"quantity", record.Quantity.String(), "reserved", record.Reserved.String())
			return entity.StockRecord{}, false, err
		}
	}
	return record, found, nil
}

func (s *Service) saveRecord(ctx context.Context, record *entity.StockRecord, existed bool) error {
	if existed {
		if err := s.repo.UpdateRecord(ctx, record); err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		return nil
	}
	if err := s.repo.CreateRecord(ctx, record); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// checkLowStock fires the notifier when availability crosses below the
// threshold. Runs detached so it can never block or fail the transaction.
func (s *Service) checkLowStock(ctx context.Context, record entity.StockRecord, availableBefore types.Quantity) {
	if s.notifier == nil || !s.cfg.LowStockThreshold.IsPositive() {
		return
	}
	available := record.Available()
	if available >= s.cfg.LowStockThreshold || availableBefore < s.cfg.LowStockThreshold {
		return
	}

	event := LowStockEvent{
		StoreID:   record.StoreID,
		VariantID: record.VariantID,
		Available: available,
		Threshold: s.cfg.LowStockThreshold,
	}
	go s.notifier.NotifyLowStock(context.WithoutCancel(ctx), event)
}

// Ensure interface compliance.
var _ Engine = (*Service)(nil)
