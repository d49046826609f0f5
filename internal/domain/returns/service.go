package returns

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
	"retailcore/internal/domain/pos"
	"retailcore/pkg/logger"
	"retailcore/pkg/numerator"
)

const (
	// DefaultReturnWindow bounds how long after a sale a refund is accepted.
	DefaultReturnWindow = 72 * time.Hour

	// DefaultApprovalThreshold is the refund amount, in minor units,
	// from which manager approval is required.
	DefaultApprovalThreshold types.MinorUnits = 10_000
)

// NumberSource hands out document numbers. Satisfied by numerator.Service.
type NumberSource interface {
	NextNumber(ctx context.Context, cfg numerator.Config) (string, error)
}

// InvoiceSource looks up the invoice a refund reverses. Satisfied by
// pos.Service.
type InvoiceSource interface {
	// GetInvoiceForUpdate loads the invoice with a row lock so
	// concurrent refunds against the same invoice serialize before
	// their claims are summed.
	GetInvoiceForUpdate(ctx context.Context, invoiceID id.ID) (*pos.Invoice, error)
}

// Config holds refund tuning values.
type Config struct {
	// ReturnWindow bounds invoice age. Zero means DefaultReturnWindow.
	ReturnWindow time.Duration

	// ApprovalThreshold feeds the approval rule. Zero means
	// DefaultApprovalThreshold.
	ApprovalThreshold types.MinorUnits
}

// Service drives the refund workflow. Goods return to stock only when
// a refund completes, and always through the reservation engine.
type Service struct {
	repo      Repository
	engine    ledger.Engine
	invoices  InvoiceSource
	txManager tx.Manager
	numbers   NumberSource
	policy    *ApprovalPolicy
	cfg       Config
}

// NewService creates the refund service.
func NewService(
	repo Repository,
	engine ledger.Engine,
	invoices InvoiceSource,
	txManager tx.Manager,
	numbers NumberSource,
	policy *ApprovalPolicy,
	cfg Config,
) *Service {
	if cfg.ReturnWindow <= 0 {
		cfg.ReturnWindow = DefaultReturnWindow
	}
	if cfg.ApprovalThreshold <= 0 {
		cfg.ApprovalThreshold = DefaultApprovalThreshold
	}
	return &Service{
		repo:      repo,
		engine:    engine,
		invoices:  invoices,
		txManager: txManager,
		numbers:   numbers,
		policy:    policy,
		cfg:       cfg,
	}
}

// LineInput is one refunded item in a create request.
type LineInput struct {
	InvoiceLineID id.ID
	Qty           types.Quantity
}

// CreateInput describes a refund request against an invoice.
type CreateInput struct {
	InvoiceID id.ID
	// StoreCode is the short store designator used in refund numbers.
	StoreCode string
	Lines     []LineInput
	Reason    string
	// ApprovedBy carries an up-front manager approval. Without it,
	// refunds above the threshold park as pending_approval.
	ApprovedBy string
}

// Create validates a refund against its invoice and either completes
// it (restocking every line in one transaction) or parks it pending
// approval with zero stock mutation.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Refund, error) {
	if len(in.Lines) == 0 {
		return nil, apperror.NewValidation("refund requires at least one line")
	}

	var refund *Refund
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		// The invoice lock serializes concurrent refunds against the
		// same invoice, so the claim sums below cannot go stale
		// between validation and insert.
		invoice, err := s.invoices.GetInvoiceForUpdate(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if age := time.Since(invoice.CreatedAt); age > s.cfg.ReturnWindow {
			return apperror.NewInvalidState("return window has elapsed").
				WithDetail("invoice_id", in.InvoiceID.String()).
				WithDetail("sold_at", invoice.CreatedAt).
				WithDetail("window_hours", s.cfg.ReturnWindow.Hours())
		}

		lines, total, err := s.buildLines(ctx, invoice, in.Lines)
		if err != nil {
			return err
		}

		needsApproval, err := s.policy.RequiresApproval(total, s.cfg.ApprovalThreshold)
		if err != nil {
			return err
		}

		number, err := s.numbers.NextNumber(ctx, numerator.RefundConfig(in.StoreCode))
		if err != nil {
			return fmt.Errorf("next refund number: %w", err)
		}

		now := time.Now().UTC()
		refund = &Refund{
			ID:          id.New(),
			Number:      number,
			InvoiceID:   invoice.ID,
			StoreID:     invoice.StoreID,
			Status:      StatusPendingApproval,
			Lines:       lines,
			TotalAmount: total,
			Reason:      in.Reason,
			RequestedBy: appctx.ActorID(ctx),
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if !needsApproval || in.ApprovedBy != "" {
			refund.ApprovedBy = in.ApprovedBy
			if err := s.complete(ctx, refund); err != nil {
				return err
			}
		}

		if err := s.repo.Create(ctx, refund); err != nil {
			return fmt.Errorf("create refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "refund created",
		"refund_id", refund.ID, "number", refund.Number,
		"status", string(refund.Status), "total", refund.TotalAmount)
	return refund, nil
}

// Approve completes a parked refund, running the same restock path the
// small-refund case takes at creation.
func (s *Service) Approve(ctx context.Context, refundID id.ID, approver string) (*Refund, error) {
	if approver == "" {
		return nil, apperror.NewValidation("approver is required")
	}

	var refund *Refund
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		refund, err = s.lockPending(ctx, refundID)
		if err != nil {
			return err
		}

		refund.ApprovedBy = approver
		if err := s.complete(ctx, refund); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, refund); err != nil {
			return fmt.Errorf("update refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "refund approved",
		"refund_id", refund.ID, "number", refund.Number, "approved_by", approver)
	return refund, nil
}

// Reject declines a parked refund. Nothing was restocked, so nothing
// needs reversing.
func (s *Service) Reject(ctx context.Context, refundID id.ID, approver, reason string) (*Refund, error) {
	var refund *Refund
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		refund, err = s.lockPending(ctx, refundID)
		if err != nil {
			return err
		}

		refund.Status = StatusRejected
		refund.ApprovedBy = approver
		if reason != "" {
			refund.Reason = reason
		}
		refund.Touch()
		if err := s.repo.Update(ctx, refund); err != nil {
			return fmt.Errorf("update refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// GetByID returns a refund with its lines.
func (s *Service) GetByID(ctx context.Context, refundID id.ID) (*Refund, error) {
	return s.repo.GetByID(ctx, refundID)
}

// List returns refunds matching the filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]Refund, error) {
	return s.repo.List(ctx, filter)
}

// complete restocks every line and marks the refund completed. Runs
// inside the caller's transaction.
func (s *Service) complete(ctx context.Context, refund *Refund) error {
	for _, line := range refund.Lines {
		_, err := s.engine.Restock(ctx, ledger.RestockInput{
			StoreID:      refund.StoreID,
			VariantID:    line.VariantID,
			Qty:          line.Qty,
			MovementType: entity.MovementRefund,
			Reference:    refund.Number,
			Reason:       refund.Reason,
		})
		if err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	refund.Status = StatusCompleted
	refund.CompletedAt = &now
	refund.Touch()
	return nil
}

func (s *Service) lockPending(ctx context.Context, refundID id.ID) (*Refund, error) {
	refund, err := s.repo.GetByIDForUpdate(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.Status != StatusPendingApproval {
		return nil, apperror.NewInvalidState("refund is not pending approval").
			WithDetail("refund_id", refundID.String()).
			WithDetail("status", string(refund.Status))
	}
	return refund, nil
}

// buildLines validates requested lines against the invoice and what was
// already refunded, fixing an ascending variant order for restocking.
func (s *Service) buildLines(ctx context.Context, invoice *pos.Invoice, in []LineInput) ([]Line, types.MinorUnits, error) {
	lines := make([]Line, 0, len(in))
	var total types.MinorUnits
	for _, l := range in {
		invLine := invoice.LineByID(l.InvoiceLineID)
		if invLine == nil {
			return nil, 0, apperror.NewValidation("unknown invoice line").
				WithDetail("invoice_line_id", l.InvoiceLineID.String())
		}
		if !l.Qty.IsPositive() {
			return nil, 0, apperror.NewInvalidQuantity("refund quantity must be positive").
				WithDetail("invoice_line_id", l.InvoiceLineID.String())
		}

		refunded, err := s.repo.RefundedQty(ctx, l.InvoiceLineID)
		if err != nil {
			return nil, 0, fmt.Errorf("refunded qty: %w", err)
		}
		if l.Qty > invLine.Qty-refunded {
			return nil, 0, apperror.NewInvalidQuantity("refund quantity exceeds what remains refundable").
				WithDetail("invoice_line_id", l.InvoiceLineID.String()).
				WithDetail("requested", l.Qty.Float64()).
				WithDetail("refundable", (invLine.Qty - refunded).Float64())
		}

		amount := refundAmount(l.Qty, invLine.UnitPrice)
		lines = append(lines, Line{
			LineID:        id.New(),
			InvoiceLineID: l.InvoiceLineID,
			VariantID:     invLine.VariantID,
			Qty:           l.Qty,
			Amount:        amount,
		})
		total += amount
	}

	sort.Slice(lines, func(i, j int) bool {
		return bytes.Compare(lines[i].VariantID[:], lines[j].VariantID[:]) < 0
	})
	return lines, total, nil
}

// refundAmount prices a refunded quantity at the invoice unit price,
// rounding half away from zero to the nearest cent.
func refundAmount(qty types.Quantity, price types.MinorUnits) types.MinorUnits {
	cents := qty.Decimal().Mul(decimal.New(int64(price), 0)).Round(0)
	return types.MinorUnits(cents.IntPart())
}
