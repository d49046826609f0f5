package dto

import (
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
	"retailcore/internal/domain/shifts"
)

// OpenShiftRequest starts a cashier shift.
type OpenShiftRequest struct {
	StoreID     id.ID            `json:"storeId" binding:"required"`
	CashierID   id.ID            `json:"cashierId" binding:"required"`
	OpeningCash types.MinorUnits `json:"openingCash"`
	Notes       string           `json:"notes"`
}

// ToInput converts the request to a service input.
func (r OpenShiftRequest) ToInput() shifts.OpenInput {
	return shifts.OpenInput{
		StoreID:     r.StoreID,
		CashierID:   r.CashierID,
		OpeningCash: r.OpeningCash,
		Notes:       r.Notes,
	}
}

// CloseShiftRequest reconciles and closes a shift.
type CloseShiftRequest struct {
	ClosingCash types.MinorUnits `json:"closingCash"`
	Notes       string           `json:"notes"`
}

// ToInput converts the request to a service input.
func (r CloseShiftRequest) ToInput() shifts.CloseInput {
	return shifts.CloseInput{
		ClosingCash: r.ClosingCash,
		Notes:       r.Notes,
	}
}
