package dto

import (
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/orders/transfer"
)

// TransferLineRequest is one variant to move.
type TransferLineRequest struct {
	VariantID id.ID          `json:"variantId" binding:"required"`
	Qty       types.Quantity `json:"qty"`
}

// CreateTransferRequest opens a pending transfer, reserving the goods
// at the origin store.
type CreateTransferRequest struct {
	FromStoreID id.ID                 `json:"fromStoreId" binding:"required"`
	ToStoreID   id.ID                 `json:"toStoreId" binding:"required"`
	Lines       []TransferLineRequest `json:"lines" binding:"required"`
	Notes       string                `json:"notes"`
}

// ToInput converts the request to a service input.
func (r CreateTransferRequest) ToInput() transfer.CreateInput {
	lines := make([]transfer.LineInput, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, transfer.LineInput{VariantID: l.VariantID, Qty: l.Qty})
	}
	return transfer.CreateInput{
		FromStoreID: r.FromStoreID,
		ToStoreID:   r.ToStoreID,
		Lines:       lines,
		Notes:       r.Notes,
	}
}
