package dto

import (
	"time"

	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/pos"
)

// CartLineRequest is one item in a checkout or hold request.
type CartLineRequest struct {
	VariantID id.ID            `json:"variantId" binding:"required"`
	Qty       types.Quantity   `json:"qty"`
	UnitPrice types.MinorUnits `json:"unitPrice"`
}

// PaymentRequest is one tender. Amount is in minor currency units.
type PaymentRequest struct {
	Method string           `json:"method" binding:"required"`
	Amount types.MinorUnits `json:"amount"`
}

// CheckoutRequest sells a cart directly.
type CheckoutRequest struct {
	StoreID   id.ID             `json:"storeId" binding:"required"`
	StoreCode string            `json:"storeCode" binding:"required"`
	ShiftID   *id.ID            `json:"shiftId,omitempty"`
	Lines     []CartLineRequest `json:"lines" binding:"required"`
	Payments  []PaymentRequest  `json:"payments" binding:"required"`
}

// ToInput converts the request to a service input.
func (r CheckoutRequest) ToInput() pos.CheckoutInput {
	return pos.CheckoutInput{
		StoreID:   r.StoreID,
		StoreCode: r.StoreCode,
		ShiftID:   r.ShiftID,
		Lines:     toCartLines(r.Lines),
		Payments:  toPayments(r.Payments),
	}
}

// HoldRequest parks a cart, reserving its goods.
type HoldRequest struct {
	StoreID id.ID             `json:"storeId" binding:"required"`
	Lines   []CartLineRequest `json:"lines" binding:"required"`
	// ExpiresInSeconds overrides the configured time box when positive.
	ExpiresInSeconds int    `json:"expiresInSeconds"`
	Note             string `json:"note"`
}

// ToInput converts the request to a service input.
func (r HoldRequest) ToInput() pos.HoldInput {
	return pos.HoldInput{
		StoreID:   r.StoreID,
		Lines:     toCartLines(r.Lines),
		ExpiresIn: time.Duration(r.ExpiresInSeconds) * time.Second,
		Note:      r.Note,
	}
}

// ResumeRequest finalizes a held cart into a sale.
type ResumeRequest struct {
	StoreCode string           `json:"storeCode" binding:"required"`
	ShiftID   *id.ID           `json:"shiftId,omitempty"`
	Payments  []PaymentRequest `json:"payments" binding:"required"`
}

// ToInput converts the request to a service input.
func (r ResumeRequest) ToInput(holdID id.ID) pos.ResumeInput {
	return pos.ResumeInput{
		HoldID:    holdID,
		StoreCode: r.StoreCode,
		ShiftID:   r.ShiftID,
		Payments:  toPayments(r.Payments),
	}
}

// SweepResponse reports how many lapsed holds were released.
type SweepResponse struct {
	Swept int `json:"swept"`
}

func toCartLines(lines []CartLineRequest) []pos.CartLine {
	out := make([]pos.CartLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, pos.CartLine{VariantID: l.VariantID, Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	return out
}

func toPayments(payments []PaymentRequest) []pos.PaymentInput {
	out := make([]pos.PaymentInput, 0, len(payments))
	for _, p := range payments {
		out = append(out, pos.PaymentInput{Method: p.Method, Amount: p.Amount})
	}
	return out
}
