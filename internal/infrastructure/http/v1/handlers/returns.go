package handlers

import (
	"github.com/gin-gonic/gin"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/audit"
	"retailcore/internal/domain/returns"
	"retailcore/internal/infrastructure/http/v1/dto"
)

const entityRefund = "refund"

// ReturnsHandler drives the refund workflow over HTTP.
type ReturnsHandler struct {
	*BaseHandler
	service *returns.Service
}

// NewReturnsHandler creates the returns handler.
func NewReturnsHandler(base *BaseHandler, service *returns.Service) *ReturnsHandler {
	return &ReturnsHandler{BaseHandler: base, service: service}
}

// Create handles POST /refunds.
func (h *ReturnsHandler) Create(c *gin.Context) {
	var req dto.CreateRefundRequest
	if !h.BindJSON(c, &req) {
		return
	}

	refund, err := h.service.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityRefund, refund.ID, audit.ActionCreate, map[string]any{
		"number": refund.Number,
		"status": string(refund.Status),
		"total":  int64(refund.TotalAmount),
	})
	h.Created(c, refund)
}

// Approve handles POST /refunds/:id/approve.
func (h *ReturnsHandler) Approve(c *gin.Context) {
	refundID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	refund, err := h.service.Approve(c.Request.Context(), refundID, h.GetUserID(c))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityRefund, refund.ID, audit.ActionApprove, map[string]any{
		"approved_by": refund.ApprovedBy,
	})
	h.OK(c, refund)
}

// Reject handles POST /refunds/:id/reject.
func (h *ReturnsHandler) Reject(c *gin.Context) {
	refundID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.RejectRefundRequest
	if !h.BindJSON(c, &req) {
		return
	}

	refund, err := h.service.Reject(c.Request.Context(), refundID, h.GetUserID(c), req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityRefund, refund.ID, audit.ActionReject, map[string]any{
		"reason": req.Reason,
	})
	h.OK(c, refund)
}

// Get handles GET /refunds/:id.
func (h *ReturnsHandler) Get(c *gin.Context) {
	refundID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	refund, err := h.service.GetByID(c.Request.Context(), refundID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, refund)
}

// List handles GET /refunds.
func (h *ReturnsHandler) List(c *gin.Context) {
	filter := returns.Filter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("invoiceId"); raw != "" {
		invoiceID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid invoiceId filter"))
			return
		}
		filter.InvoiceID = &invoiceID
	}
	if raw := c.Query("storeId"); raw != "" {
		storeID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid storeId filter"))
			return
		}
		filter.StoreID = &storeID
	}
	if raw := c.Query("status"); raw != "" {
		status := returns.Status(raw)
		filter.Status = &status
	}

	refunds, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(refunds))
}
