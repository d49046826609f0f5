package dto

import (
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/returns"
)

// RefundLineRequest is one refunded item.
type RefundLineRequest struct {
	InvoiceLineID id.ID          `json:"invoiceLineId" binding:"required"`
	Qty           types.Quantity `json:"qty"`
}

// CreateRefundRequest opens a refund against an invoice.
type CreateRefundRequest struct {
	InvoiceID id.ID               `json:"invoiceId" binding:"required"`
	StoreCode string              `json:"storeCode" binding:"required"`
	Lines     []RefundLineRequest `json:"lines" binding:"required"`
	Reason    string              `json:"reason"`
	// ApprovedBy carries an up-front manager approval.
	ApprovedBy string `json:"approvedBy"`
}

// ToInput converts the request to a service input.
func (r CreateRefundRequest) ToInput() returns.CreateInput {
	lines := make([]returns.LineInput, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, returns.LineInput{InvoiceLineID: l.InvoiceLineID, Qty: l.Qty})
	}
	return returns.CreateInput{
		InvoiceID:  r.InvoiceID,
		StoreCode:  r.StoreCode,
		Lines:      lines,
		Reason:     r.Reason,
		ApprovedBy: r.ApprovedBy,
	}
}

// RejectRefundRequest rejects a pending refund.
type RejectRefundRequest struct {
	Reason string `json:"reason"`
}
