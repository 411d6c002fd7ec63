// Package events defines domain events written to the transactional outbox.
package events

import (
	"context"

	"recordshop/internal/core/id"
)

const (
	AggregateRecord = "record"
	AggregateOrder  = "order"

	RecordCreated = "record.created"
	RecordUpdated = "record.updated"
	OrderPlaced   = "order.placed"
)

// Event is a fact about an aggregate, published after its transaction commits.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// Publisher stores events in the outbox. Publish must be called inside the
// transaction that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// OrderPlacedPayload is the body of an OrderPlaced event.
type OrderPlacedPayload struct {
	OrderID        id.ID  `json:"order_id"`
	Number         string `json:"number,omitempty"`
	RecordID       id.ID  `json:"record_id"`
	Qty            int64  `json:"qty"`
	RemainingStock int64  `json:"remaining_stock"`
}

// RecordChangedPayload is the body of RecordCreated and RecordUpdated events.
type RecordChangedPayload struct {
	RecordID id.ID  `json:"record_id"`
	Version  int    `json:"version"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Format   string `json:"format"`
}
