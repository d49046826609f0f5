package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/entity"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/audit"
	"retailcore/internal/domain/ledger"
	"retailcore/internal/infrastructure/http/v1/dto"
)

// StockHandler exposes balances, the movement trail and direct engine
// operations (receive outside a purchase order, adjustments).
type StockHandler struct {
	*BaseHandler
	engine ledger.Engine
}

// NewStockHandler creates the stock handler.
func NewStockHandler(base *BaseHandler, engine ledger.Engine) *StockHandler {
	return &StockHandler{BaseHandler: base, engine: engine}
}

// ListBalances handles GET /stock/:storeId/balances.
func (h *StockHandler) ListBalances(c *gin.Context) {
	storeID, ok := h.ParseIDParam(c, "storeId")
	if !ok {
		return
	}

	filter := ledger.BalanceFilter{
		ExcludeZero: c.Query("excludeZero") == "true",
	}
	for _, raw := range c.QueryArray("variantId") {
		variantID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid variantId filter"))
			return
		}
		filter.VariantIDs = append(filter.VariantIDs, variantID)
	}

	records, err := h.engine.ListByStore(c.Request.Context(), storeID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(records))
}

// GetBalance handles GET /stock/:storeId/balances/:variantId.
func (h *StockHandler) GetBalance(c *gin.Context) {
	storeID, ok := h.ParseIDParam(c, "storeId")
	if !ok {
		return
	}
	variantID, ok := h.ParseIDParam(c, "variantId")
	if !ok {
		return
	}

	record, err := h.engine.GetRecord(c.Request.Context(), storeID, variantID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, record)
}

// Movements handles GET /stock/movements/:variantId.
func (h *StockHandler) Movements(c *gin.Context) {
	variantID, ok := h.ParseIDParam(c, "variantId")
	if !ok {
		return
	}

	filter := ledger.MovementFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
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
	if raw := c.Query("movementType"); raw != "" {
		mt := entity.MovementType(raw)
		if !mt.IsValid() {
			h.Error(c, apperror.NewValidation("unknown movement type"))
			return
		}
		filter.MovementType = &mt
	}
	if raw := c.Query("referenceId"); raw != "" {
		filter.ReferenceID = &raw
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

	movements, err := h.engine.MovementHistory(c.Request.Context(), variantID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(movements))
}

// Receive handles POST /stock/receive - ad hoc goods receipt.
func (h *StockHandler) Receive(c *gin.Context) {
	var req dto.ReceiveStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	record, err := h.engine.Receive(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Audit(c, "stock", req.VariantID, audit.ActionReceive, map[string]any{
		"store_id": req.StoreID,
		"qty":      req.Qty.String(),
	})
	h.OK(c, record)
}

// Adjust handles POST /stock/adjust - manual balance correction.
func (h *StockHandler) Adjust(c *gin.Context) {
	var req dto.AdjustStockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	record, err := h.engine.Adjust(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}

	changes := map[string]any{"store_id": req.StoreID, "reason": req.Reason}
	if req.Delta != nil {
		changes["delta"] = req.Delta.String()
	}
	if req.SetTo != nil {
		changes["set_to"] = req.SetTo.String()
	}
	h.Audit(c, "stock", req.VariantID, audit.ActionAdjust, changes)
	h.OK(c, record)
}
