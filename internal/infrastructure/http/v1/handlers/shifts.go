package handlers

import (
	"github.com/gin-gonic/gin"

	"retailcore/internal/core/apperror"
	"retailcore/internal/core/id"
	"retailcore/internal/domain/shifts"
	"retailcore/internal/infrastructure/http/v1/dto"
)

// ShiftsHandler manages cashier shifts over HTTP.
type ShiftsHandler struct {
	*BaseHandler
	service *shifts.Service
}

// NewShiftsHandler creates the shifts handler.
func NewShiftsHandler(base *BaseHandler, service *shifts.Service) *ShiftsHandler {
	return &ShiftsHandler{BaseHandler: base, service: service}
}

// Open handles POST /shifts.
func (h *ShiftsHandler) Open(c *gin.Context) {
	var req dto.OpenShiftRequest
	if !h.BindJSON(c, &req) {
		return
	}

	shift, err := h.service.Open(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, shift)
}

// Close handles POST /shifts/:id/close.
func (h *ShiftsHandler) Close(c *gin.Context) {
	shiftID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.CloseShiftRequest
	if !h.BindJSON(c, &req) {
		return
	}

	shift, err := h.service.Close(c.Request.Context(), shiftID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, shift)
}

// Get handles GET /shifts/:id.
func (h *ShiftsHandler) Get(c *gin.Context) {
	shiftID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	shift, err := h.service.GetByID(c.Request.Context(), shiftID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, shift)
}

// List handles GET /shifts.
func (h *ShiftsHandler) List(c *gin.Context) {
	filter := shifts.Filter{
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
	if raw := c.Query("cashierId"); raw != "" {
		cashierID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid cashierId filter"))
			return
		}
		filter.CashierID = &cashierID
	}
	if raw := c.Query("status"); raw != "" {
		status := shifts.Status(raw)
		filter.Status = &status
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(result))
}
