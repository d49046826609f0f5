// Package entity provides core domain entities.
package entity

import (
	"time"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/core/types"
)

// MovementType classifies an actual (not provisional) change to quantity.
type MovementType string

const (
	MovementReceive     MovementType = "receive"
	MovementSale        MovementType = "sale"
	MovementAdjustment  MovementType = "adjustment"
	MovementRefund      MovementType = "refund"
	MovementTransferOut MovementType = "transfer_out"
	MovementTransferIn  MovementType = "transfer_in"
)

// IsValid reports whether the movement type is one of the known kinds.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementReceive, MovementSale, MovementAdjustment,
		MovementRefund, MovementTransferOut, MovementTransferIn:
		return true
	}
	return false
}

// StockRecord is the durable balance for one (store, variant) pair.
// Mutated only through the reservation engine; never deleted
// (zero-quantity rows persist for audit and lookup).
type StockRecord struct {
	// Dimensions
	StoreID   id.ID `db:"store_id" json:"storeId"`
	VariantID id.ID `db:"variant_id" json:"variantId"`

	// Balances. Invariant: 0 <= Reserved <= Quantity.
	Quantity types.Quantity `db:"quantity" json:"quantity"`
	Reserved types.Quantity `db:"reserved" json:"reserved"`

	// LastCost is the unit cost of the most recent receipt.
	LastCost types.Money `db:"last_cost" json:"lastCost"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewStockRecord creates an empty record for a pair that is receiving
// stock for the first time.
func NewStockRecord(storeID, variantID id.ID) StockRecord {
	return StockRecord{
		StoreID:   storeID,
		VariantID: variantID,
		UpdatedAt: time.Now().UTC(),
	}
}

// Available returns the amount that may still be reserved or sold.
func (r *StockRecord) Available() types.Quantity {
	return r.Quantity - r.Reserved
}

// CheckIntegrity verifies 0 <= reserved <= quantity. A violation means an
// invariant was broken upstream; it must be surfaced, never corrected.
func (r *StockRecord) CheckIntegrity() error {
	if r.Reserved < 0 || r.Reserved > r.Quantity {
		return apperror.NewIntegrityViolation("stock record violates 0 <= reserved <= quantity").
			WithDetail("store_id", r.StoreID.String()).
			WithDetail("variant_id", r.VariantID.String()).
			WithDetail("quantity", r.Quantity.String()).
			WithDetail("reserved", r.Reserved.String())
	}
	return nil
}

// Touch updates the modification timestamp.
func (r *StockRecord) Touch() {
	r.UpdatedAt = time.Now().UTC()
}

// StockMovement is one immutable entry in the append-only movement trail.
// Every quantity mutation produces exactly one movement in the same
// transaction; pure reserve/release is not logged.
type StockMovement struct {
	// LineID is the unique identifier for this trail entry (UUIDv7)
	LineID id.ID `db:"line_id" json:"lineId"`

	// Dimensions
	StoreID   id.ID `db:"store_id" json:"storeId"`
	VariantID id.ID `db:"variant_id" json:"variantId"`

	// Change is the signed quantity delta applied to the record.
	Change types.Quantity `db:"change" json:"change"`

	MovementType MovementType `db:"movement_type" json:"movementType"`

	// ReferenceID links the movement to its causing order/invoice/transfer.
	ReferenceID string `db:"reference_id" json:"referenceId"`

	Reason    string    `db:"reason" json:"reason,omitempty"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewStockMovement creates a movement with generated LineID.
func NewStockMovement(
	storeID, variantID id.ID,
	change types.Quantity,
	movementType MovementType,
	referenceID, reason, createdBy string,
) StockMovement {
	return StockMovement{
		LineID:       id.New(),
		StoreID:      storeID,
		VariantID:    variantID,
		Change:       change,
		MovementType: movementType,
		ReferenceID:  referenceID,
		Reason:       reason,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now().UTC(),
	}
}
