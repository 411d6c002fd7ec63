package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"recordshop/internal/core/apperror"
	"recordshop/internal/core/id"
	"recordshop/internal/domain/orders"
	"recordshop/internal/infrastructure/http/v1/dto"
)

// OrderService is the ordering API the handler depends on.
type OrderService interface {
	PlaceOrder(ctx context.Context, recordID id.ID, qty int64) (*orders.Order, error)
	Get(ctx context.Context, rawID string) (*orders.Order, error)
}

// OrderHandler handles /orders.
type OrderHandler struct {
	*BaseHandler
	service OrderService
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(base *BaseHandler, service OrderService) *OrderHandler {
	return &OrderHandler{BaseHandler: base, service: service}
}

// Create handles POST /orders.
func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	recordID, err := id.Parse(req.RecordID)
	if err != nil {
		h.Error(c, apperror.NewInvalidIdentifier("record", req.RecordID))
		return
	}

	order, err := h.service.PlaceOrder(c.Request.Context(), recordID, req.Qty)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromOrder(order))
}

// Get handles GET /orders/:id.
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromOrder(order))
}
