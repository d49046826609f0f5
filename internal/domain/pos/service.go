package pos

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

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

// DefaultHoldExpiry bounds a held cart's reservation lifetime.
const DefaultHoldExpiry = 30 * time.Minute

// NumberSource hands out document numbers. Satisfied by numerator.Service.
type NumberSource interface {
	NextNumber(ctx context.Context, cfg numerator.Config) (string, error)
}

// Config holds POS tuning values.
type Config struct {
	// HoldExpiry is the time box for held carts. Zero means DefaultHoldExpiry.
	HoldExpiry time.Duration
}

// Service orchestrates checkout and holds. It owns no stock arithmetic;
// every balance change goes through the reservation engine.
type Service struct {
	repo      Repository
	engine    ledger.Engine
	txManager tx.Manager
	numbers   NumberSource
	cfg       Config
}

// NewService creates the POS service.
func NewService(repo Repository, engine ledger.Engine, txManager tx.Manager, numbers NumberSource, cfg Config) *Service {
	if cfg.HoldExpiry <= 0 {
		cfg.HoldExpiry = DefaultHoldExpiry
	}
	return &Service{
		repo:      repo,
		engine:    engine,
		txManager: txManager,
		numbers:   numbers,
		cfg:       cfg,
	}
}

// CartLine is one item in a checkout or hold request.
type CartLine struct {
	VariantID id.ID
	Qty       types.Quantity
	UnitPrice types.MinorUnits
}

// PaymentInput is one tender in a checkout or resume request.
type PaymentInput struct {
	Method string
	Amount types.MinorUnits
}

// CheckoutInput describes a direct sale.
type CheckoutInput struct {
	StoreID id.ID
	// StoreCode is the short store designator used in sale numbers.
	StoreCode string
	ShiftID   *id.ID
	Lines     []CartLine
	Payments  []PaymentInput
}

// HoldInput describes a cart to park.
type HoldInput struct {
	StoreID id.ID
	Lines   []CartLine
	// ExpiresIn overrides the configured time box when non-zero.
	ExpiresIn time.Duration
	Note      string
}

// ResumeInput finalizes a previously held cart into a sale.
type ResumeInput struct {
	HoldID    id.ID
	StoreCode string
	ShiftID   *id.ID
	Payments  []PaymentInput
}

// Checkout sells the cart directly: every line is checked for
// availability, then committed in a single transaction. Any shortfall
// aborts the whole sale naming the offending variant.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*Invoice, error) {
	lines, total, err := buildLines(in.Lines)
	if err != nil {
		return nil, err
	}
	if err := checkPayment(in.Payments, total); err != nil {
		return nil, err
	}

	var invoice *Invoice
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, line := range lines {
			record, err := s.engine.GetRecord(ctx, in.StoreID, line.VariantID)
			if err != nil {
				return err
			}
			if record.Available() < line.Qty {
				return apperror.NewInsufficientStock(
					line.VariantID.String(), line.Qty.Float64(), record.Available().Float64())
			}
		}

		number, err := s.numbers.NextNumber(ctx, numerator.SaleConfig(in.StoreCode))
		if err != nil {
			return fmt.Errorf("next sale number: %w", err)
		}

		for _, line := range lines {
			_, err := s.engine.Commit(ctx, ledger.CommitInput{
				StoreID:      in.StoreID,
				VariantID:    line.VariantID,
				Qty:          line.Qty,
				MovementType: entity.MovementSale,
				Reference:    number,
			})
			if err != nil {
				return err
			}
		}

		invoice = s.newInvoice(ctx, number, in.StoreID, in.ShiftID, lines, total, in.Payments)
		if err := s.repo.CreateInvoice(ctx, invoice); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "sale completed",
		"invoice_id", invoice.ID, "number", invoice.Number, "total", invoice.Total)
	return invoice, nil
}

// Hold parks a cart: a durable row plus one reservation per line, all
// in a single transaction.
func (s *Service) Hold(ctx context.Context, in HoldInput) (*HeldCart, error) {
	lines, _, err := buildLines(in.Lines)
	if err != nil {
		return nil, err
	}

	expiresIn := in.ExpiresIn
	if expiresIn == 0 {
		expiresIn = s.cfg.HoldExpiry
	}

	var hold *HeldCart
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, line := range lines {
			if _, err := s.engine.Reserve(ctx, in.StoreID, line.VariantID, line.Qty); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		held := make([]HeldLine, 0, len(lines))
		for _, line := range lines {
			held = append(held, HeldLine{VariantID: line.VariantID, Qty: line.Qty, UnitPrice: line.UnitPrice})
		}
		hold = &HeldCart{
			ID:        id.New(),
			StoreID:   in.StoreID,
			Status:    HoldStatusHeld,
			Lines:     held,
			ExpiresAt: now.Add(expiresIn),
			Note:      in.Note,
			CreatedBy: appctx.ActorID(ctx),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.CreateHold(ctx, hold); err != nil {
			return fmt.Errorf("create hold: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "cart held", "hold_id", hold.ID, "expires_at", hold.ExpiresAt)
	return hold, nil
}

// Resume finalizes a held cart into a sale, converting its reservations
// into sale commits. Missing, finalized, cancelled or expired holds are
// all HoldNotFound to the caller; an expired hold releases its
// reservation right here rather than waiting for the sweeper.
func (s *Service) Resume(ctx context.Context, in ResumeInput) (*Invoice, error) {
	var invoice *Invoice
	var lapsed bool
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		hold, err := s.repo.GetHoldForUpdate(ctx, in.HoldID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewHoldNotFound(in.HoldID)
			}
			return err
		}
		if hold.Status != HoldStatusHeld {
			return apperror.NewHoldNotFound(in.HoldID)
		}
		if hold.ExpiredAt(time.Now().UTC()) {
			// Release lazily but let the transaction commit; returning
			// the error here would roll the release back.
			lapsed = true
			return s.expireHold(ctx, hold)
		}

		var total types.MinorUnits
		for _, line := range hold.Lines {
			total += lineTotal(line.Qty, line.UnitPrice)
		}
		if err := checkPayment(in.Payments, total); err != nil {
			return err
		}

		// The reservation guarantees availability; a shortfall here
		// means a balance was mutated behind the engine's back.
		for _, line := range hold.Lines {
			record, err := s.engine.GetRecord(ctx, hold.StoreID, line.VariantID)
			if err != nil {
				return err
			}
			if record.Quantity < line.Qty || record.Reserved < line.Qty {
				return apperror.NewIntegrityViolation("held reservation no longer backed by stock").
					WithDetail("hold_id", hold.ID.String()).
					WithDetail("variant_id", line.VariantID.String())
			}
		}

		number, err := s.numbers.NextNumber(ctx, numerator.SaleConfig(in.StoreCode))
		if err != nil {
			return fmt.Errorf("next sale number: %w", err)
		}

		invLines := make([]InvoiceLine, 0, len(hold.Lines))
		for _, line := range hold.Lines {
			_, err := s.engine.Commit(ctx, ledger.CommitInput{
				StoreID:      hold.StoreID,
				VariantID:    line.VariantID,
				Qty:          line.Qty,
				ReservedQty:  line.Qty,
				MovementType: entity.MovementSale,
				Reference:    number,
			})
			if err != nil {
				return err
			}
			invLines = append(invLines, InvoiceLine{
				LineID:    id.New(),
				VariantID: line.VariantID,
				Qty:       line.Qty,
				UnitPrice: line.UnitPrice,
				LineTotal: lineTotal(line.Qty, line.UnitPrice),
			})
		}

		invoice = s.newInvoiceFromLines(ctx, number, hold.StoreID, in.ShiftID, invLines, total, in.Payments)
		if err := s.repo.CreateInvoice(ctx, invoice); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}

		hold.Status = HoldStatusFinalized
		hold.InvoiceID = &invoice.ID
		hold.Touch()
		if err := s.repo.UpdateHold(ctx, hold); err != nil {
			return fmt.Errorf("update hold: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if lapsed {
		return nil, apperror.NewHoldNotFound(in.HoldID)
	}

	logger.Info(ctx, "hold resumed", "hold_id", in.HoldID, "invoice_id", invoice.ID)
	return invoice, nil
}

// CancelHold releases the cart's reservations and marks it cancelled.
func (s *Service) CancelHold(ctx context.Context, holdID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		hold, err := s.repo.GetHoldForUpdate(ctx, holdID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewHoldNotFound(holdID)
			}
			return err
		}
		if hold.Status != HoldStatusHeld {
			return apperror.NewHoldNotFound(holdID)
		}

		if err := s.releaseLines(ctx, hold); err != nil {
			return err
		}
		hold.Status = HoldStatusCancelled
		hold.Touch()
		if err := s.repo.UpdateHold(ctx, hold); err != nil {
			return fmt.Errorf("update hold: %w", err)
		}
		return nil
	})
}

// SweepExpired releases the reservations of all lapsed holds. Each hold
// is processed in its own transaction under the same lock discipline as
// Resume, so a sweep can never race a concurrent resume into a double
// release. Returns the number of holds expired.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ListExpiredHoldIDs(ctx, now, 100)
	if err != nil {
		return 0, fmt.Errorf("list expired holds: %w", err)
	}

	swept := 0
	for _, holdID := range ids {
		err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			hold, err := s.repo.GetHoldForUpdate(ctx, holdID)
			if err != nil {
				return err
			}
			// Re-check under the lock: a concurrent resume or cancel
			// may have finalized the hold since listing.
			if hold.Status != HoldStatusHeld || !hold.ExpiredAt(now) {
				return nil
			}
			return s.expireHold(ctx, hold)
		})
		if err != nil {
			logger.Error(ctx, "hold sweep failed", "hold_id", holdID, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}

// GetInvoice returns an invoice with its lines and payments.
func (s *Service) GetInvoice(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, invoiceID)
}

// GetInvoiceForUpdate returns the invoice with a pessimistic row lock.
// Callers claiming against invoice lines (refunds) take this lock so
// concurrent claims serialize on the invoice.
func (s *Service) GetInvoiceForUpdate(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return s.repo.GetInvoiceForUpdate(ctx, invoiceID)
}

// ListInvoices returns invoices matching the filter.
func (s *Service) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, filter)
}

func (s *Service) expireHold(ctx context.Context, hold *HeldCart) error {
	if err := s.releaseLines(ctx, hold); err != nil {
		return err
	}
	hold.Status = HoldStatusExpired
	hold.Touch()
	if err := s.repo.UpdateHold(ctx, hold); err != nil {
		return fmt.Errorf("update hold: %w", err)
	}
	return nil
}

func (s *Service) releaseLines(ctx context.Context, hold *HeldCart) error {
	for _, line := range hold.Lines {
		if _, err := s.engine.Release(ctx, hold.StoreID, line.VariantID, line.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) newInvoice(ctx context.Context, number string, storeID id.ID, shiftID *id.ID, lines []CartLine, total types.MinorUnits, payments []PaymentInput) *Invoice {
	invLines := make([]InvoiceLine, 0, len(lines))
	for _, line := range lines {
		invLines = append(invLines, InvoiceLine{
			LineID:    id.New(),
			VariantID: line.VariantID,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal(line.Qty, line.UnitPrice),
		})
	}
	return s.newInvoiceFromLines(ctx, number, storeID, shiftID, invLines, total, payments)
}

func (s *Service) newInvoiceFromLines(ctx context.Context, number string, storeID id.ID, shiftID *id.ID, lines []InvoiceLine, total types.MinorUnits, payments []PaymentInput) *Invoice {
	pays := make([]Payment, 0, len(payments))
	for _, p := range payments {
		pays = append(pays, Payment{Method: p.Method, Amount: p.Amount})
	}
	return &Invoice{
		ID:        id.New(),
		Number:    number,
		StoreID:   storeID,
		ShiftID:   shiftID,
		Lines:     lines,
		Payments:  pays,
		Total:     total,
		CreatedBy: appctx.ActorID(ctx),
		CreatedAt: time.Now().UTC(),
	}
}

// buildLines validates cart lines and fixes an ascending variant order
// for deterministic row locking.
func buildLines(in []CartLine) ([]CartLine, types.MinorUnits, error) {
	if len(in) == 0 {
		return nil, 0, apperror.NewValidation("cart requires at least one line")
	}
	lines := make([]CartLine, 0, len(in))
	var total types.MinorUnits
	for _, l := range in {
		if !l.Qty.IsPositive() {
			return nil, 0, apperror.NewInvalidQuantity("cart quantity must be positive").
				WithDetail("variant_id", l.VariantID.String())
		}
		if l.UnitPrice.IsNegative() {
			return nil, 0, apperror.NewValidation("unit price cannot be negative").
				WithDetail("variant_id", l.VariantID.String())
		}
		lines = append(lines, l)
		total += lineTotal(l.Qty, l.UnitPrice)
	}
	sort.Slice(lines, func(i, j int) bool {
		return bytes.Compare(lines[i].VariantID[:], lines[j].VariantID[:]) < 0
	})
	return lines, total, nil
}

func checkPayment(payments []PaymentInput, total types.MinorUnits) error {
	var paid types.MinorUnits
	for _, p := range payments {
		if p.Amount.IsNegative() {
			return apperror.NewValidation("payment amount cannot be negative")
		}
		paid += p.Amount
	}
	if paid < total {
		return apperror.NewValidation("payment does not cover the invoice total").
			WithDetail("total", int64(total)).
			WithDetail("paid", int64(paid))
	}
	return nil
}

// lineTotal multiplies a fixed-point quantity by a unit price in minor
// units, rounding half away from zero to the nearest cent.
func lineTotal(qty types.Quantity, price types.MinorUnits) types.MinorUnits {
	cents := qty.Decimal().Mul(decimal.New(int64(price), 0)).Round(0)
	return types.MinorUnits(cents.IntPart())
}
