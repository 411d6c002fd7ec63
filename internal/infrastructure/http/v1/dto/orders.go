package dto

import (
	"time"

	"recordshop/internal/domain/orders"
)

// CreateOrderRequest is the request body for placing an order. Quantity
// bounds beyond "present" are enforced by the order admission policy.
type CreateOrderRequest struct {
	RecordID string `json:"recordId" binding:"required"`
	Qty      int64  `json:"qty" binding:"required"`
}

// OrderResponse is the API representation of an order.
type OrderResponse struct {
	ID        string    `json:"id"`
	Number    string    `json:"number,omitempty"`
	RecordID  string    `json:"recordId"`
	Qty       int64     `json:"qty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FromOrder creates OrderResponse from a domain order.
func FromOrder(o *orders.Order) OrderResponse {
	return OrderResponse{
		ID:        o.ID.String(),
		Number:    o.Number,
		RecordID:  o.RecordID.String(),
		Qty:       o.Qty,
		CreatedAt: o.CreatedAt,
	}
}
