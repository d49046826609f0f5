package dto

import (
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/orders/purchase"
)

// PurchaseItemRequest is one ordered line.
type PurchaseItemRequest struct {
	VariantID id.ID          `json:"variantId" binding:"required"`
	Qty       types.Quantity `json:"qty"`
	UnitCost  types.Money    `json:"unitCost"`
}

// CreatePurchaseOrderRequest opens a draft order.
type CreatePurchaseOrderRequest struct {
	StoreID    id.ID                 `json:"storeId" binding:"required"`
	SupplierID id.ID                 `json:"supplierId" binding:"required"`
	Items      []PurchaseItemRequest `json:"items" binding:"required"`
	Notes      string                `json:"notes"`
}

// ToInput converts the request to a service input.
func (r CreatePurchaseOrderRequest) ToInput() purchase.CreateInput {
	return purchase.CreateInput{
		StoreID:    r.StoreID,
		SupplierID: r.SupplierID,
		Items:      toItemInputs(r.Items),
		Notes:      r.Notes,
	}
}

// UpdatePurchaseItemsRequest replaces the item set of an editable order.
type UpdatePurchaseItemsRequest struct {
	Items []PurchaseItemRequest `json:"items" binding:"required"`
}

// ToInput converts the request to service inputs.
func (r UpdatePurchaseItemsRequest) ToInput() []purchase.ItemInput {
	return toItemInputs(r.Items)
}

// ReceivePurchaseRequest directs a full or partial receipt. An empty
// line list receives every remaining quantity.
type ReceivePurchaseRequest struct {
	Lines []ReceivePurchaseLine `json:"lines"`
}

// ReceivePurchaseLine is one received line. Qty zero means the full
// remainder of the line.
type ReceivePurchaseLine struct {
	LineID id.ID          `json:"lineId" binding:"required"`
	Qty    types.Quantity `json:"qty"`
}

// ToInput converts the request to service inputs.
func (r ReceivePurchaseRequest) ToInput() []purchase.ReceiveLine {
	lines := make([]purchase.ReceiveLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, purchase.ReceiveLine{LineID: l.LineID, Qty: l.Qty})
	}
	return lines
}

func toItemInputs(items []PurchaseItemRequest) []purchase.ItemInput {
	inputs := make([]purchase.ItemInput, 0, len(items))
	for _, it := range items {
		inputs = append(inputs, purchase.ItemInput{
			VariantID: it.VariantID,
			Qty:       it.Qty,
			UnitCost:  it.UnitCost,
		})
	}
	return inputs
}
