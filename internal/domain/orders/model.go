// Package orders places single-item orders against the record catalog.
package orders

import (
	"context"
	"time"

	"recordshop/internal/core/id"
	"recordshop/internal/domain/records"
)

// Order is an immutable record of one successful stock decrement.
type Order struct {
	ID id.ID `db:"id" json:"id"`

	// Number is the human readable order number (ORD-2026-00001)
	Number string `db:"number" json:"number"`

	RecordID  id.ID     `db:"record_id" json:"recordId"`
	Qty       int64     `db:"qty" json:"qty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewOrder creates an order with a fresh identity.
func NewOrder(recordID id.ID, qty int64, number string) *Order {
	return &Order{
		ID:        id.New(),
		Number:    number,
		RecordID:  recordID,
		Qty:       qty,
		CreatedAt: time.Now().UTC(),
	}
}

// Ledger is the order store. Insert is only ever called inside the order
// transaction.
type Ledger interface {
	Insert(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)
	ListByRecord(ctx context.Context, recordID id.ID) ([]*Order, error)
}

// Stock is the part of the catalog store the coordinator needs.
// records.Repository satisfies it.
type Stock interface {
	GetByID(ctx context.Context, recordID id.ID) (*records.Record, error)
	DecrementStock(ctx context.Context, recordID id.ID, qty int64) (remaining int64, ok bool, err error)
}

// State is a step of one order attempt.
type State string

const (
	StateStarted          State = "started"
	StateStockVerified    State = "stock_verified"
	StateStockDecremented State = "stock_decremented"
	StateOrderInserted    State = "order_inserted"
	StateCommitted        State = "committed"
	StateAborted          State = "aborted"
)
