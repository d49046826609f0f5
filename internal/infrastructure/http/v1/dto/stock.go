package dto

import (
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/ledger"
)

// ReceiveStockRequest books incoming goods outside a purchase order.
type ReceiveStockRequest struct {
	StoreID   id.ID          `json:"storeId" binding:"required"`
	VariantID id.ID          `json:"variantId" binding:"required"`
	Qty       types.Quantity `json:"qty"`
	UnitCost  types.Money    `json:"unitCost"`
	Reference string         `json:"reference"`
	Reason    string         `json:"reason"`
}

// ToInput converts the request to an engine input.
func (r ReceiveStockRequest) ToInput() ledger.ReceiveInput {
	return ledger.ReceiveInput{
		StoreID:   r.StoreID,
		VariantID: r.VariantID,
		Qty:       r.Qty,
		UnitCost:  r.UnitCost,
		Reference: r.Reference,
		Reason:    r.Reason,
	}
}

// AdjustStockRequest corrects a balance by delta or to an absolute
// target. Exactly one of delta or setTo must be given.
type AdjustStockRequest struct {
	StoreID   id.ID           `json:"storeId" binding:"required"`
	VariantID id.ID           `json:"variantId" binding:"required"`
	Delta     *types.Quantity `json:"delta,omitempty"`
	SetTo     *types.Quantity `json:"setTo,omitempty"`
	Reference string          `json:"reference"`
	Reason    string          `json:"reason"`
}

// ToInput converts the request to an engine input.
func (r AdjustStockRequest) ToInput() ledger.AdjustInput {
	return ledger.AdjustInput{
		StoreID:   r.StoreID,
		VariantID: r.VariantID,
		Delta:     r.Delta,
		SetTo:     r.SetTo,
		Reference: r.Reference,
		Reason:    r.Reason,
	}
}
