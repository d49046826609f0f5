package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/audit"
	"retailcore/internal/domain/orders/purchase"
	"retailcore/internal/infrastructure/http/v1/dto"
)

const entityPurchaseOrder = "purchase_order"

// PurchaseHandler drives the purchase order workflow over HTTP.
type PurchaseHandler struct {
	*BaseHandler
	service *purchase.Service
}

// NewPurchaseHandler creates the purchase order handler.
func NewPurchaseHandler(base *BaseHandler, service *purchase.Service) *PurchaseHandler {
	return &PurchaseHandler{BaseHandler: base, service: service}
}

// Create handles POST /purchase-orders.
func (h *PurchaseHandler) Create(c *gin.Context) {
	var req dto.CreatePurchaseOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	order, err := h.service.Create(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityPurchaseOrder, order.ID, audit.ActionCreate, map[string]any{
		"number": order.Number,
		"items":  len(order.Items),
	})
	h.Created(c, order)
}

// Get handles GET /purchase-orders/:id.
func (h *PurchaseHandler) Get(c *gin.Context) {
	orderID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := h.service.GetByID(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// List handles GET /purchase-orders.
func (h *PurchaseHandler) List(c *gin.Context) {
	filter := purchase.Filter{
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
	if raw := c.Query("supplierId"); raw != "" {
		supplierID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid supplierId filter"))
			return
		}
		filter.SupplierID = &supplierID
	}
	if raw := c.Query("status"); raw != "" {
		status := purchase.Status(raw)
		filter.Status = &status
	}

	orders, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(orders))
}

// UpdateItems handles PUT /purchase-orders/:id/items.
func (h *PurchaseHandler) UpdateItems(c *gin.Context) {
	orderID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.UpdatePurchaseItemsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	order, err := h.service.UpdateItems(c.Request.Context(), orderID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityPurchaseOrder, order.ID, audit.ActionCreate, map[string]any{
		"items": len(order.Items),
	})
	h.OK(c, order)
}

// Submit handles POST /purchase-orders/:id/submit.
func (h *PurchaseHandler) Submit(c *gin.Context) {
	h.transition(c, h.service.Submit, audit.ActionSubmit)
}

// Approve handles POST /purchase-orders/:id/approve.
func (h *PurchaseHandler) Approve(c *gin.Context) {
	h.transition(c, h.service.Approve, audit.ActionApprove)
}

// Cancel handles POST /purchase-orders/:id/cancel.
func (h *PurchaseHandler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel, audit.ActionCancel)
}

// Receive handles POST /purchase-orders/:id/receive.
func (h *PurchaseHandler) Receive(c *gin.Context) {
	orderID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ReceivePurchaseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	order, err := h.service.Receive(c.Request.Context(), orderID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityPurchaseOrder, order.ID, audit.ActionReceive, map[string]any{
		"status": string(order.Status),
		"lines":  len(req.Lines),
	})
	h.OK(c, order)
}

func (h *PurchaseHandler) transition(
	c *gin.Context,
	op func(ctx context.Context, orderID id.ID) (*purchase.PurchaseOrder, error),
	action audit.Action,
) {
	orderID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := op(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, entityPurchaseOrder, order.ID, action, map[string]any{
		"status": string(order.Status),
	})
	h.OK(c, order)
}
