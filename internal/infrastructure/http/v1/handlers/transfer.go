package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/audit"
	"retailcore/internal/domain/orders/transfer"
	"retailcore/internal/infrastructure/http/v1/dto"
)

const entityTransfer = "transfer"

// TransferHandler drives the inter-store transfer workflow over HTTP.
type TransferHandler struct {
	*BaseHandler
	service *transfer.Service
}

// NewTransferHandler creates the transfer handler.
func NewTransferHandler(base *BaseHandler, service *transfer.Service) *TransferHandler {
	return &TransferHandler{BaseHandler: base, service: service}
}

// Create handles POST /transfers.
func (h *TransferHandler) Create(c *gin.Context) {
	var req dto.CreateTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	t, err := h.service.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityTransfer, t.ID, audit.ActionCreate, map[string]any{
		"number":        t.Number,
		"from_store_id": t.FromStoreID,
		"to_store_id":   t.ToStoreID,
		"lines":         len(t.Lines),
	})
	h.Created(c, t)
}

// Get handles GET /transfers/:id.
func (h *TransferHandler) Get(c *gin.Context) {
	transferID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	t, err := h.service.GetByID(c.Request.Context(), transferID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// List handles GET /transfers.
func (h *TransferHandler) List(c *gin.Context) {
	filter := transfer.Filter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("fromStoreId"); raw != "" {
		storeID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid fromStoreId filter"))
			return
		}
		filter.FromStoreID = &storeID
	}
	if raw := c.Query("toStoreId"); raw != "" {
		storeID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid toStoreId filter"))
			return
		}
		filter.ToStoreID = &storeID
	}
	if raw := c.Query("status"); raw != "" {
		status := transfer.Status(raw)
		filter.Status = &status
	}

	transfers, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(transfers))
}

// Dispatch handles POST /transfers/:id/dispatch.
func (h *TransferHandler) Dispatch(c *gin.Context) {
	h.transition(c, h.service.Dispatch, audit.ActionDispatch)
}

// Receive handles POST /transfers/:id/receive.
func (h *TransferHandler) Receive(c *gin.Context) {
	h.transition(c, h.service.Receive, audit.ActionReceive)
}

// Cancel handles POST /transfers/:id/cancel.
func (h *TransferHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel, audit.ActionCancel)
}

func (h *TransferHandler) transition(
	c *gin.Context,
	op func(ctx context.Context, transferID id.ID) (*transfer.Transfer, error),
	action audit.Action,
) {
	transferID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	t, err := op(c.Request.Context(), transferID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityTransfer, t.ID, action, map[string]any{
		"status": string(t.Status),
	})
	h.OK(c, t)
}
