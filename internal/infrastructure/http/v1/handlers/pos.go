package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/audit"
	"retailcore/internal/domain/pos"
	"retailcore/internal/infrastructure/http/v1/dto"
)

const (
	entityInvoice  = "invoice"
	entityHeldCart = "held_cart"
)

// PosHandler exposes checkout, held carts and invoice lookup.
type PosHandler struct {
	*BaseHandler
	service *pos.Service
}

// NewPosHandler creates the POS handler.
func NewPosHandler(base *BaseHandler, service *pos.Service) *PosHandler {
	return &PosHandler{BaseHandler: base, service: service}
}

// Checkout handles POST /pos/checkout.
func (h *PosHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutRequest
	if !h.BindJSON(c, &req) {
		return
	}

	invoice, err := h.service.Checkout(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityInvoice, invoice.ID, audit.ActionCheckout, map[string]any{
		"number": invoice.Number,
		"total":  int64(invoice.Total),
		"lines":  len(invoice.Lines),
	})
	h.Created(c, invoice)
}

// Hold handles POST /pos/holds.
func (h *PosHandler) Hold(c *gin.Context) {
	var req dto.HoldRequest
	if !h.BindJSON(c, &req) {
		return
	}

	hold, err := h.service.Hold(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityHeldCart, hold.ID, audit.ActionHold, map[string]any{
		"store_id":   hold.StoreID,
		"lines":      len(hold.Lines),
		"expires_at": hold.ExpiresAt,
	})
	h.Created(c, hold)
}

// Resume handles POST /pos/holds/:id/resume.
func (h *PosHandler) Resume(c *gin.Context) {
	holdID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ResumeRequest
	if !h.BindJSON(c, &req) {
		return
	}

	invoice, err := h.service.Resume(c.Request.Context(), req.ToInput(holdID))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityHeldCart, holdID, audit.ActionResume, map[string]any{
		"invoice_id":     invoice.ID,
		"invoice_number": invoice.Number,
	})
	h.Created(c, invoice)
}

// CancelHold handles POST /pos/holds/:id/cancel.
func (h *PosHandler) CancelHold(c *gin.Context) {
	holdID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.CancelHold(c.Request.Context(), holdID); err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityHeldCart, holdID, audit.ActionCancel, nil)
	h.Success(c, "hold cancelled")
}

// SweepHolds handles POST /pos/holds/sweep - releases lapsed holds.
func (h *PosHandler) SweepHolds(c *gin.Context) {
	swept, err := h.service.SweepExpired(c.Request.Context(), time.Now().UTC())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.SweepResponse{Swept: swept})
}

// GetInvoice handles GET /pos/invoices/:id.
func (h *PosHandler) GetInvoice(c *gin.Context) {
	invoiceID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	invoice, err := h.service.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, invoice)
}

// ListInvoices handles GET /pos/invoices.
func (h *PosHandler) ListInvoices(c *gin.Context) {
	filter := pos.InvoiceFilter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("storeId"); raw != "" {
		storeID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid storeId filter"))
			return
		}
		filter.StoreID = &storeID
	}
	if raw := c.Query("shiftId"); raw != "" {
		shiftID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid shiftId filter"))
			return
		}
		filter.ShiftID = &shiftID
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid from date, expected RFC3339"))
			return
		}
		filter.FromDate = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid to date, expected RFC3339"))
			return
		}
		filter.ToDate = &t
	}

	invoices, err := h.service.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(invoices))
}
